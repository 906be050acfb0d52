package api

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsFileNotFound(NewFileNotFoundError("~/port1")))
	assert.True(t, IsPortBusy(NewPortBusyError("~/port1")))
	assert.True(t, IsTimeout(NewTimeoutError("prompt", "tail")))
	assert.True(t, IsNoPrompt(&NoPromptError{Tail: "x"}))
	assert.True(t, IsEnablePasswordRequired(&EnablePasswordRequiredError{}))
	assert.True(t, IsNotFound(NewNotFoundError("template", "x")))
	assert.True(t, IsPermissionDenied(&PermissionDeniedError{Path: "p"}))

	assert.False(t, IsTimeout(NewFileNotFoundError("x")))
	assert.False(t, IsPortBusy(nil))
}

func TestErrorPredicates_Wrapped(t *testing.T) {
	err := fmt.Errorf("running target: %w", NewTimeoutError("prompt", ""))
	assert.True(t, IsTimeout(err))
}

func TestErrorMessages(t *testing.T) {
	// The failure categorizer keys on these substrings.
	assert.Contains(t, NewFileNotFoundError("~/port1").Error(), "does not exist")
	assert.Contains(t, (&PermissionDeniedError{Path: "p"}).Error(), "permission denied")
	assert.Contains(t, (&EnablePasswordRequiredError{}).Error(), "enable password")
	assert.Contains(t, NewTimeoutError("prompt", "").Error(), "timed out")
	assert.Contains(t, (&NoPromptError{Tail: "x"}).Error(), "could not determine prompt")
}

func TestTimeoutError_IncludesTail(t *testing.T) {
	err := NewTimeoutError("final prompt", "Switch con0 is now available")
	assert.Contains(t, err.Error(), "Switch con0 is now available")
}

func TestSettings_BaudFor(t *testing.T) {
	var s *Settings
	assert.Equal(t, 9600, s.BaudFor("1"))

	settings := &Settings{PortBaudRates: map[string]int{"3": 115200, "4": 0}}
	assert.Equal(t, 115200, settings.BaudFor("3"))
	assert.Equal(t, 9600, settings.BaudFor("4"))
	assert.Equal(t, 9600, settings.BaudFor("9"))
}
