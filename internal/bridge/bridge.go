// Package bridge proxies an interactive client channel onto a serial session,
// with an in-band control protocol for structured capture and backspace
// translation.
package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"portmux/internal/api"
	"portmux/internal/arbiter"
	"portmux/internal/runner"
	"portmux/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Client is the duplex channel to the terminal front-end. Implementations
// must serialize concurrent writes.
type Client interface {
	// ReadMessage blocks until the next client message arrives.
	ReadMessage() (string, error)
	// WriteText forwards raw device output to the terminal.
	WriteText(data string) error
	// WriteJSON sends a control response.
	WriteJSON(v interface{}) error
}

// Backspace translation modes for the client's DEL (0x7F) byte.
const (
	BackspaceDEL   = "DEL"
	BackspaceCTRLH = "CTRLH"
)

const (
	deviceIdleSleep = 10 * time.Millisecond
	captureTimeout  = 60 * time.Second
)

// controlMessage is the in-band JSON control envelope. The legacy "action"
// key is accepted alongside "type".
type controlMessage struct {
	Type     string `json:"type"`
	Action   string `json:"action"`
	Command  string `json:"command"`
	Mode     string `json:"mode"`
	Sequence string `json:"sequence"`
}

// captureResult is the reply to a successful capture.
type captureResult struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Output  string `json:"output"`
}

// captureError is the reply to a failed capture.
type captureError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// legacyCaptureEvent mirrors the older wire shape for clients that still
// speak "action"/"event".
type legacyCaptureEvent struct {
	Event   string `json:"event"`
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Bridge runs the two cooperative directions of one console session. The
// caller owns arbiter acquisition and session connect/disconnect; the bridge
// owns everything in between.
type Bridge struct {
	client  Client
	session runner.Console
	lock    *sync.Mutex // per-port I/O lock shared with capture
	profile *api.DeviceProfile

	mu        sync.Mutex
	backspace string
	capturing bool

	captureTimeout time.Duration
}

// New creates a bridge over an acquired, connected session. lock must be the
// arbiter's lock for this port.
func New(client Client, session runner.Console, portLock *sync.Mutex, profile *api.DeviceProfile) *Bridge {
	return &Bridge{
		client:         client,
		session:        session,
		lock:           portLock,
		profile:        profile,
		backspace:      BackspaceDEL,
		captureTimeout: captureTimeout,
	}
}

// ForPort is a convenience constructor resolving the port lock from the
// arbiter.
func ForPort(client Client, session runner.Console, ports *arbiter.Arbiter, portPath string, profile *api.DeviceProfile) *Bridge {
	return New(client, session, ports.PortLock(portPath), profile)
}

// Run proxies until the client disconnects or the context is canceled.
// Client disconnect is treated as cancellation for both directions.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.deviceToClient(ctx) })
	g.Go(func() error { return b.clientToDevice(ctx) })

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		logging.Debug("ConsoleBridge", "bridge ended: %v", err)
	}
	return err
}

// deviceToClient forwards raw device output to the terminal. Paused while a
// capture holds the port, so the capture's on-data stream is the only reader.
func (b *Bridge) deviceToClient(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if b.isCapturing() {
			time.Sleep(deviceIdleSleep)
			continue
		}

		b.lock.Lock()
		data, err := b.session.ReadAvailable()
		b.lock.Unlock()
		if err != nil {
			return err
		}

		if data != "" {
			if err := b.client.WriteText(data); err != nil {
				return err
			}
		}
		time.Sleep(deviceIdleSleep)
	}
}

func (b *Bridge) clientToDevice(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := b.client.ReadMessage()
		if err != nil {
			return err
		}
		if msg == "" {
			continue
		}

		if ctl, ok := parseControl(msg); ok {
			b.handleControl(ctl)
			continue
		}

		// Raw keystrokes. Suppressed while a capture owns the port.
		if b.isCapturing() {
			continue
		}

		data := b.translateBackspace(msg)
		b.lock.Lock()
		err = b.session.Send(data)
		b.lock.Unlock()
		if err != nil {
			return err
		}
	}
}

// parseControl recognizes an in-band control message: a JSON object carrying
// a known "type" (or legacy "action") value. Anything else is raw input.
func parseControl(msg string) (controlMessage, bool) {
	trimmed := strings.TrimSpace(msg)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return controlMessage{}, false
	}

	var ctl controlMessage
	if err := json.Unmarshal([]byte(trimmed), &ctl); err != nil {
		return controlMessage{}, false
	}

	switch {
	case ctl.Type == "capture", ctl.Action == "capture":
		return ctl, true
	case ctl.Type == "set_backspace":
		return ctl, true
	}
	return controlMessage{}, false
}

func (b *Bridge) handleControl(ctl controlMessage) {
	switch {
	case ctl.Type == "capture" || ctl.Action == "capture":
		if ctl.Command == "" {
			return
		}
		b.startCapture(ctl.Command, ctl.Action == "capture")

	case ctl.Type == "set_backspace":
		b.setBackspace(ctl)
	}
}

func (b *Bridge) setBackspace(ctl controlMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case ctl.Mode == BackspaceCTRLH, ctl.Sequence == "\b":
		b.backspace = BackspaceCTRLH
	case ctl.Mode == BackspaceDEL, ctl.Sequence == "\x7f":
		b.backspace = BackspaceDEL
	}
}

// startCapture runs a structured show capture on the shared session. The
// capture holds the port lock for its whole run, so console keystrokes and
// the device reader stay out of the conversation. Incremental raw chunks are
// streamed to the client so the terminal keeps rendering live output.
func (b *Bridge) startCapture(command string, legacy bool) {
	b.mu.Lock()
	if b.capturing {
		b.mu.Unlock()
		return
	}
	b.capturing = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.capturing = false
			b.mu.Unlock()
		}()

		b.lock.Lock()
		defer b.lock.Unlock()

		r, err := runner.New(b.session, b.profile)
		if err != nil {
			b.sendCaptureError(err.Error(), legacy)
			return
		}

		output, err := r.RunShow(command, b.captureTimeout, func(chunk string) {
			b.client.WriteText(chunk)
		})
		if err != nil {
			b.sendCaptureError(err.Error(), legacy)
			return
		}

		if legacy {
			b.client.WriteJSON(legacyCaptureEvent{Event: "capture_complete", Command: command, Output: output})
			return
		}
		b.client.WriteJSON(captureResult{Type: "capture_result", Command: command, Output: output})
	}()
}

func (b *Bridge) sendCaptureError(msg string, legacy bool) {
	if legacy {
		b.client.WriteJSON(legacyCaptureEvent{Event: "capture_failed", Error: msg})
		return
	}
	b.client.WriteJSON(captureError{Type: "error", Message: msg})
}

func (b *Bridge) isCapturing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capturing
}

// translateBackspace rewrites the client's DEL bytes according to the
// configured mode before they reach the device.
func (b *Bridge) translateBackspace(data string) string {
	b.mu.Lock()
	mode := b.backspace
	b.mu.Unlock()

	if mode == BackspaceCTRLH {
		return strings.ReplaceAll(data, "\x7f", "\x08")
	}
	return data
}
