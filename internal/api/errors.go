package api

import (
	"errors"
	"fmt"
)

// FileNotFoundError indicates a target port path that does not exist.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("port %s does not exist", e.Path)
}

// IsFileNotFound checks if an error is a FileNotFoundError
func IsFileNotFound(err error) bool {
	var fnf *FileNotFoundError
	return errors.As(err, &fnf)
}

// NewFileNotFoundError creates a new FileNotFoundError
func NewFileNotFoundError(path string) *FileNotFoundError {
	return &FileNotFoundError{Path: path}
}

// PermissionDeniedError indicates an OS-level open failure due to permissions.
type PermissionDeniedError struct {
	Path string
	Err  error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied opening %s: %v", e.Path, e.Err)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// IsPermissionDenied checks if an error is a PermissionDeniedError
func IsPermissionDenied(err error) bool {
	var pd *PermissionDeniedError
	return errors.As(err, &pd)
}

// SerialOpenError indicates the device refused the open (bad baud, in use by
// the kernel, unsupported mode).
type SerialOpenError struct {
	Path string
	Err  error
}

func (e *SerialOpenError) Error() string {
	return fmt.Sprintf("could not open %s: %v", e.Path, e.Err)
}

func (e *SerialOpenError) Unwrap() error { return e.Err }

// TimeoutError indicates a bounded wait that expired. Tail carries the last
// portion of the buffer seen before the deadline, for diagnosis.
type TimeoutError struct {
	What string
	Tail string
}

func (e *TimeoutError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("timed out waiting for %s", e.What)
	}
	return fmt.Sprintf("timed out waiting for %s\n--- buffer ---\n%s", e.What, e.Tail)
}

// IsTimeout checks if an error is a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(what, tail string) *TimeoutError {
	return &TimeoutError{What: what, Tail: tail}
}

// NoPromptError indicates the wake sequence exhausted all retries without
// observing any recognizable prompt.
type NoPromptError struct {
	Tail string
}

func (e *NoPromptError) Error() string {
	return fmt.Sprintf("could not determine prompt state. Buffer tail:\n%s", e.Tail)
}

// IsNoPrompt checks if an error is a NoPromptError
func IsNoPrompt(err error) bool {
	var np *NoPromptError
	return errors.As(err, &np)
}

// EnablePasswordRequiredError indicates the device answered privilege
// escalation with a password prompt. The dialog is detected and reported,
// not answered.
type EnablePasswordRequiredError struct{}

func (e *EnablePasswordRequiredError) Error() string {
	return "enable password prompt detected; add password handling"
}

// IsEnablePasswordRequired checks if an error is an EnablePasswordRequiredError
func IsEnablePasswordRequired(err error) bool {
	var ep *EnablePasswordRequiredError
	return errors.As(err, &ep)
}

// UnexpectedPromptError indicates the privilege-escalation reply matched
// neither the privileged prompt nor a password prompt.
type UnexpectedPromptError struct {
	Command string
	Tail    string
}

func (e *UnexpectedPromptError) Error() string {
	return fmt.Sprintf("unexpected response after %q:\n%s", e.Command, e.Tail)
}

// PortBusyError indicates the arbiter rejected an acquisition because another
// consumer holds the port.
type PortBusyError struct {
	Path string
}

func (e *PortBusyError) Error() string {
	return fmt.Sprintf("port %s busy", e.Path)
}

// IsPortBusy checks if an error is a PortBusyError
func IsPortBusy(err error) bool {
	var pb *PortBusyError
	return errors.As(err, &pb)
}

// NewPortBusyError creates a new PortBusyError
func NewPortBusyError(path string) *PortBusyError {
	return &PortBusyError{Path: path}
}

// NotFoundError represents a named resource (profile, template, macro, job)
// that is not known to the store.
type NotFoundError struct {
	ResourceType string
	ResourceName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}
