// Package serial provides the thread-safe envelope over a character-device
// serial line that the rest of the core drives.
package serial

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"time"

	"portmux/internal/api"
	"portmux/pkg/logging"

	"go.bug.st/serial"
)

const (
	// DefaultBaud is used when settings carry no per-port override.
	DefaultBaud = 9600
	// DefaultReadTimeout bounds a single read so polling loops stay live.
	DefaultReadTimeout = 200 * time.Millisecond
	// DefaultWriteDelay lets slow UARTs settle after each write.
	DefaultWriteDelay = 20 * time.Millisecond

	readChunkSize = 4096
	pollInterval  = 50 * time.Millisecond
)

// Session owns the OS handle to a serial device and exposes byte-oriented
// read/write with a short I/O timeout, plus draining and timed pattern-wait
// helpers.
//
// All reads and writes take an internal mutex, so the session is safe under
// contention but not fair. Callers that need read+write composites to be
// atomic must hold a higher-level lock (the port arbiter's per-port mutex).
type Session struct {
	PortPath string
	Baud     int

	timeout    time.Duration
	writeDelay time.Duration

	mu   sync.Mutex
	port serial.Port
}

// Option adjusts session construction.
type Option func(*Session)

// WithReadTimeout overrides the per-read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithWriteDelay overrides the post-write settle delay.
func WithWriteDelay(d time.Duration) Option {
	return func(s *Session) { s.writeDelay = d }
}

// New creates a session for the given device path. The port is not opened
// until Connect.
func New(portPath string, baud int, opts ...Option) *Session {
	if baud <= 0 {
		baud = DefaultBaud
	}
	s := &Session{
		PortPath:   portPath,
		Baud:       baud,
		timeout:    DefaultReadTimeout,
		writeDelay: DefaultWriteDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the device at 8N1 with no flow control.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: s.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.PortPath, mode)
	if err != nil {
		return classifyOpenError(s.PortPath, err)
	}
	if err := port.SetReadTimeout(s.timeout); err != nil {
		port.Close()
		return &api.SerialOpenError{Path: s.PortPath, Err: err}
	}

	s.port = port
	logging.Debug("SerialSession", "Opened %s at %d baud", s.PortPath, s.Baud)
	return nil
}

// Disconnect closes the device. Safe to call more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		if err := s.port.Close(); err != nil {
			logging.Warn("SerialSession", "Close of %s failed: %v", s.PortPath, err)
		}
		s.port = nil
	}
}

func classifyOpenError(path string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return api.NewFileNotFoundError(path)
		case serial.PermissionDenied:
			return &api.PermissionDeniedError{Path: path, Err: err}
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return api.NewFileNotFoundError(path)
	}
	if strings.Contains(strings.ToLower(err.Error()), "permission denied") {
		return &api.PermissionDeniedError{Path: path, Err: err}
	}
	return &api.SerialOpenError{Path: path, Err: err}
}

// ReadAvailable reads up to 4096 bytes, decoding with lossy UTF-8
// replacement. Returns "" when nothing arrives within the read timeout.
func (s *Session) ReadAvailable() (string, error) {
	return s.Read(readChunkSize)
}

// Read reads up to n bytes.
func (s *Session) Read(n int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return "", fmt.Errorf("serial port %s not open", s.PortPath)
	}

	buf := make([]byte, n)
	read, err := s.port.Read(buf)
	if err != nil {
		return "", fmt.Errorf("read from %s: %w", s.PortPath, err)
	}
	if read == 0 {
		return "", nil
	}
	return decode(buf[:read]), nil
}

// Send writes raw bytes, then sleeps the write delay.
func (s *Session) Send(data string) error {
	s.mu.Lock()
	if s.port == nil {
		s.mu.Unlock()
		return fmt.Errorf("serial port %s not open", s.PortPath)
	}
	_, err := s.port.Write([]byte(data))
	if err == nil {
		err = s.port.Drain()
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("write to %s: %w", s.PortPath, err)
	}
	time.Sleep(s.writeDelay)
	return nil
}

// SendLine writes the line with a CRLF terminator, then sleeps the write
// delay.
func (s *Session) SendLine(line string) error {
	return s.Send(line + "\r\n")
}

// Drain collects and returns whatever arrives during the window, discarding
// nothing. Used to swallow boot noise and syslog chatter before issuing
// commands.
func (s *Session) Drain(window time.Duration) string {
	deadline := time.Now().Add(window)
	var out strings.Builder
	for time.Now().Before(deadline) {
		chunk, err := s.ReadAvailable()
		if err != nil {
			break
		}
		out.WriteString(chunk)
		time.Sleep(pollInterval)
	}
	return out.String()
}

// WaitFor accumulates incoming bytes until the pattern matches the
// accumulated buffer or the timeout expires. On timeout the error includes a
// tail of the buffer.
func (s *Session) WaitFor(pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	var buf strings.Builder
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		chunk, err := s.ReadAvailable()
		if err != nil {
			return buf.String(), err
		}
		buf.WriteString(chunk)
		if pattern.MatchString(buf.String()) {
			return buf.String(), nil
		}
		time.Sleep(pollInterval)
	}
	return buf.String(), api.NewTimeoutError(pattern.String(), tail(buf.String(), 2000))
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
