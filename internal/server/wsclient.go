package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsClient adapts a gorilla websocket connection to the bridge.Client
// interface. Gorilla connections permit one concurrent writer; the mutex
// serializes the device-reader loop against capture responses.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn}
}

func (c *wsClient) ReadMessage() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsClient) WriteText(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(data))
}

func (c *wsClient) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// CloseWith sends a close frame with the given code and reason before the
// connection is torn down.
func (c *wsClient) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
