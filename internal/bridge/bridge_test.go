package bridge

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"portmux/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient feeds scripted messages and records everything written back.
type mockClient struct {
	mu       sync.Mutex
	inbox    chan string
	text     []string
	jsonMsgs []interface{}
}

func newMockClient() *mockClient {
	return &mockClient{inbox: make(chan string, 16)}
}

func (c *mockClient) ReadMessage() (string, error) {
	msg, ok := <-c.inbox
	if !ok {
		return "", io.EOF
	}
	return msg, nil
}

func (c *mockClient) WriteText(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = append(c.text, data)
	return nil
}

func (c *mockClient) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jsonMsgs = append(c.jsonMsgs, v)
	return nil
}

func (c *mockClient) jsonCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jsonMsgs)
}

func (c *mockClient) lastJSON() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.jsonMsgs) == 0 {
		return nil
	}
	return c.jsonMsgs[len(c.jsonMsgs)-1]
}

// mockSession records writes and answers show commands with canned chunks.
type mockSession struct {
	mu      sync.Mutex
	pending []string
	sent    []string
	lines   []string
	replies map[string]string
}

func newMockSession() *mockSession {
	return &mockSession{replies: make(map[string]string)}
}

func (m *mockSession) ReadAvailable() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return "", nil
	}
	chunk := m.pending[0]
	m.pending = m.pending[1:]
	return chunk, nil
}

func (m *mockSession) Read(n int) (string, error) { return m.ReadAvailable() }

func (m *mockSession) Send(data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockSession) SendLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
	if response, ok := m.replies[line]; ok {
		m.pending = append(m.pending, response)
	}
	return nil
}

func (m *mockSession) Drain(window time.Duration) string { return "" }

func (m *mockSession) WaitFor(pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	buf := ""
	for {
		chunk, _ := m.ReadAvailable()
		if chunk == "" {
			break
		}
		buf += chunk
	}
	if pattern.MatchString(buf) {
		return buf, nil
	}
	return buf, api.NewTimeoutError(pattern.String(), buf)
}

func (m *mockSession) sentData() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

func runBridge(t *testing.T, client *mockClient, session *mockSession) func() {
	t.Helper()
	var lock sync.Mutex
	b := New(client, session, &lock, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(context.Background())
	}()

	return func() {
		close(client.inbox)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("bridge did not stop after client disconnect")
		}
	}
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		isControl bool
	}{
		{"capture request", `{"type":"capture","command":"show run"}`, true},
		{"legacy capture request", `{"action":"capture","command":"show run"}`, true},
		{"set backspace mode", `{"type":"set_backspace","mode":"CTRLH"}`, true},
		{"set backspace sequence", `{"type":"set_backspace","sequence":"\u007f"}`, true},
		{"plain keystrokes", "show version\r", false},
		{"json-looking keystrokes", "{not json}", false},
		{"unrecognized json", `{"type":"resize","cols":80}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseControl(tt.input)
			assert.Equal(t, tt.isControl, ok)
		})
	}
}

func TestBridge_ForwardsRawInput(t *testing.T) {
	client := newMockClient()
	session := newMockSession()
	stop := runBridge(t, client, session)

	client.inbox <- "show ver\r"

	require.Eventually(t, func() bool {
		return len(session.sentData()) > 0
	}, time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, []string{"show ver\r"}, session.sentData())
}

func TestBridge_BackspaceTranslation(t *testing.T) {
	client := newMockClient()
	session := newMockSession()
	stop := runBridge(t, client, session)

	// Default mode forwards DEL untouched.
	client.inbox <- "\x7f"
	require.Eventually(t, func() bool { return len(session.sentData()) == 1 }, time.Second, 10*time.Millisecond)

	// CTRLH mode rewrites DEL to 0x08.
	client.inbox <- `{"type":"set_backspace","mode":"CTRLH"}`
	client.inbox <- "\x7f"
	require.Eventually(t, func() bool { return len(session.sentData()) == 2 }, time.Second, 10*time.Millisecond)

	// And back to DEL via the legacy sequence form.
	client.inbox <- `{"type":"set_backspace","sequence":"\u007f"}`
	client.inbox <- "\x7f"
	require.Eventually(t, func() bool { return len(session.sentData()) == 3 }, time.Second, 10*time.Millisecond)
	stop()

	sent := session.sentData()
	assert.Equal(t, "\x7f", sent[0])
	assert.Equal(t, "\x08", sent[1])
	assert.Equal(t, "\x7f", sent[2])
}

func TestBridge_DeviceOutputForwarded(t *testing.T) {
	client := newMockClient()
	session := newMockSession()
	session.mu.Lock()
	session.pending = append(session.pending, "Switch> ")
	session.mu.Unlock()

	stop := runBridge(t, client, session)

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.text) > 0
	}, time.Second, 10*time.Millisecond)
	stop()

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, "Switch> ", client.text[0])
}

func TestBridge_Capture(t *testing.T) {
	client := newMockClient()
	session := newMockSession()
	session.replies["show run"] = "!\nhostname sw1\n!\nSwitch# "

	stop := runBridge(t, client, session)

	client.inbox <- `{"type":"capture","command":"show run"}`

	require.Eventually(t, func() bool { return client.jsonCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	stop()

	result, ok := client.lastJSON().(captureResult)
	require.True(t, ok, "expected a captureResult, got %T", client.lastJSON())
	assert.Equal(t, "capture_result", result.Type)
	assert.Equal(t, "show run", result.Command)
	assert.Contains(t, result.Output, "hostname sw1")

	// The incremental raw stream reached the terminal too.
	client.mu.Lock()
	defer client.mu.Unlock()
	require.NotEmpty(t, client.text)
}

func TestBridge_LegacyCaptureEvent(t *testing.T) {
	client := newMockClient()
	session := newMockSession()
	session.replies["show ver"] = "Version 15.2\nSwitch# "

	stop := runBridge(t, client, session)

	client.inbox <- `{"action":"capture","command":"show ver"}`

	require.Eventually(t, func() bool { return client.jsonCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	stop()

	event, ok := client.lastJSON().(legacyCaptureEvent)
	require.True(t, ok, "expected a legacyCaptureEvent, got %T", client.lastJSON())
	assert.Equal(t, "capture_complete", event.Event)
	assert.Contains(t, event.Output, "Version 15.2")
}

func TestBridge_CaptureFailure(t *testing.T) {
	client := newMockClient()
	session := newMockSession()
	// No reply scripted: the capture times out waiting for the prompt.

	var lock sync.Mutex
	b := New(client, session, &lock, nil)
	b.captureTimeout = 300 * time.Millisecond
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(context.Background())
	}()

	client.inbox <- `{"type":"capture","command":"show run"}`

	require.Eventually(t, func() bool { return client.jsonCount() > 0 }, 5*time.Second, 20*time.Millisecond)
	close(client.inbox)
	<-done

	errMsg, ok := client.lastJSON().(captureError)
	require.True(t, ok, "expected a captureError, got %T", client.lastJSON())
	assert.Equal(t, "error", errMsg.Type)
	assert.Contains(t, errMsg.Message, "timed out")
}

func TestControlMessageRoundTrip(t *testing.T) {
	// The wire shapes the front-end depends on.
	data, err := json.Marshal(captureResult{Type: "capture_result", Command: "show run", Output: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"capture_result","command":"show run","output":"x"}`, string(data))

	data, err = json.Marshal(captureError{Type: "error", Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"boom"}`, string(data))
}
