package job

import "strings"

// Failure categories surfaced on a failed target alongside a remediation
// hint.
const (
	CategoryPortBusy           = "port_busy"
	CategoryPermissionDenied   = "permission_denied"
	CategoryNoPrompt           = "no_prompt"
	CategoryEnablePassword     = "enable_password_required"
	CategoryCommandTimeout     = "command_timeout"
	CategoryDeviceError        = "device_error"
	CategoryVerificationFailed = "verification_failed"
	CategoryFileNotFound       = "file_not_found"
	CategoryTemplateError      = "template_error"
	CategoryUnknown            = "unknown"
)

// Categorize maps an error message plus the accumulated target log onto a
// failure category. First match in priority order wins.
func Categorize(errMsg, log string) string {
	errLower := strings.ToLower(errMsg)
	logLower := strings.ToLower(log)

	switch {
	case strings.Contains(errLower, "does not exist") || strings.Contains(errLower, "filenotfound"):
		return CategoryFileNotFound
	case strings.Contains(errLower, "permission denied"):
		return CategoryPermissionDenied
	case strings.Contains(errLower, "enable password"):
		return CategoryEnablePassword
	case strings.Contains(errLower, "timeout") || strings.Contains(errLower, "timed out"):
		return CategoryCommandTimeout
	case strings.Contains(errLower, "could not determine prompt"):
		return CategoryNoPrompt
	case strings.Contains(logLower, "% invalid input") || strings.Contains(logLower, "% ambiguous command"):
		return CategoryDeviceError
	case strings.Contains(errLower, "undefined") || strings.Contains(errLower, "is undefined"):
		return CategoryTemplateError
	}
	return CategoryUnknown
}

var remediations = map[string]string{
	CategoryFileNotFound:       "Verify that the serial port path is correct and the device is connected. Check ~/portX symlinks.",
	CategoryPermissionDenied:   "Ensure the application has permission to access the serial device. Add user to 'dialout' group on Linux.",
	CategoryEnablePassword:     "Configure enable password handling in the template or ensure the device doesn't require one.",
	CategoryCommandTimeout:     "Check serial connection stability. Increase timeout values if device is slow to respond.",
	CategoryNoPrompt:           "Verify correct baud rate (9600/115200). Check cabling and ensure device is powered on.",
	CategoryDeviceError:        "Review the configuration commands for syntax errors. Check device documentation.",
	CategoryTemplateError:      "Ensure all template variables are provided in the job submission.",
	CategoryVerificationFailed: "Review the verification checks and ensure expected values match actual configuration.",
	CategoryPortBusy:           "Another job may be using this port. Wait and retry.",
	CategoryUnknown:            "Review the error log for details. Contact support if issue persists.",
}

// Remediation returns the fixed remediation hint for a failure category.
func Remediation(category string) string {
	if r, ok := remediations[category]; ok {
		return r
	}
	return remediations[CategoryUnknown]
}
