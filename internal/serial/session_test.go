package serial

import (
	"regexp"
	"testing"
	"time"

	"portmux/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	s := New("/dev/ttyUSB0", 0)
	assert.Equal(t, DefaultBaud, s.Baud)
	assert.Equal(t, DefaultReadTimeout, s.timeout)
	assert.Equal(t, DefaultWriteDelay, s.writeDelay)
}

func TestNew_Options(t *testing.T) {
	s := New("/dev/ttyUSB0", 115200,
		WithReadTimeout(100*time.Millisecond),
		WithWriteDelay(5*time.Millisecond),
	)
	assert.Equal(t, 115200, s.Baud)
	assert.Equal(t, 100*time.Millisecond, s.timeout)
	assert.Equal(t, 5*time.Millisecond, s.writeDelay)
}

func TestConnect_MissingDevice(t *testing.T) {
	s := New("/nonexistent/port1", 9600)

	err := s.Connect()
	require.Error(t, err)
	assert.True(t, api.IsFileNotFound(err), "expected FileNotFoundError, got %v", err)
}

func TestUnconnectedOperationsFail(t *testing.T) {
	s := New("/dev/ttyUSB0", 9600)

	_, err := s.ReadAvailable()
	assert.Error(t, err)

	_, err = s.Read(16)
	assert.Error(t, err)

	assert.Error(t, s.Send("x"))
	assert.Error(t, s.SendLine("x"))
}

func TestDrain_UnconnectedReturnsEmpty(t *testing.T) {
	s := New("/dev/ttyUSB0", 9600)
	assert.Equal(t, "", s.Drain(50*time.Millisecond))
}

func TestWaitFor_UnconnectedFails(t *testing.T) {
	s := New("/dev/ttyUSB0", 9600)

	_, err := s.WaitFor(regexp.MustCompile("#"), 100*time.Millisecond)
	assert.Error(t, err)
}

func TestDisconnect_Idempotent(t *testing.T) {
	s := New("/dev/ttyUSB0", 9600)
	s.Disconnect()
	s.Disconnect()
}

func TestDecode_ReplacesInvalidUTF8(t *testing.T) {
	assert.Equal(t, "ok", decode([]byte("ok")))
	decoded := decode([]byte{'a', 0xff, 'b'})
	assert.Contains(t, decoded, "a")
	assert.Contains(t, decoded, "b")
	assert.True(t, len(decoded) >= 3)
}
