// Package prompt classifies CLI prompt states from raw device output.
//
// Device output is noisy: boot banners, syslog lines, ANSI escape sequences
// and pager artifacts arrive interleaved with the prompt the state machine is
// waiting for. This package normalizes raw output into a canonical text form
// and classifies the tail of a buffer as one of the known prompt states,
// parameterized by a device profile's patterns.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"portmux/internal/api"
)

// State is the classified prompt state at the end of a buffer.
type State int

const (
	Unknown State = iota
	User          // e.g. "Switch>"
	Priv          // e.g. "Switch#"
	Config        // e.g. "Switch(config-if)#"
)

// String makes State satisfy the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case User:
		return "USER"
	case Priv:
		return "PRIV"
	case Config:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// Default Cisco-style patterns, used when a profile leaves a slot empty.
// All prompt patterns anchor at the end of the buffer and tolerate trailing
// whitespace.
const (
	DefaultUserPattern     = `(?m)^.*?>\s*\z`
	DefaultPrivPattern     = `(?m)^.*?#\s*\z`
	DefaultConfigPattern   = `(?m)^.*?\(config[^)]*\)#\s*\z`
	DefaultAnyPattern      = `(?m)^.*?[>#]\s*\z`
	DefaultPasswordPattern = `(?m)^[Pp]assword:\s*\z`

	// The pagination pattern is searched inside a tail window rather than
	// anchored, since devices append pager artifacts mid-stream.
	DefaultPaginationPattern = `(?i)(--\s?more\s?--|more:|press any key|press enter|hit any key|q = quit|space bar to continue|next page|\[more\])`
)

var (
	ansiCSI = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
)

// Detector classifies prompt states based on configurable patterns.
// Supports device-specific profiles for multi-vendor compatibility.
type Detector struct {
	User           *regexp.Regexp
	Priv           *regexp.Regexp
	Config         *regexp.Regexp
	Any            *regexp.Regexp
	Password       *regexp.Regexp
	PrivOrPassword *regexp.Regexp
	Pagination     *regexp.Regexp
}

// NewDetector compiles a detector from profile patterns. Empty slots fall
// back to the defaults.
func NewDetector(patterns api.PromptPatterns) (*Detector, error) {
	pick := func(override, fallback string) string {
		if override != "" {
			return override
		}
		return fallback
	}

	userPat := pick(patterns.User, DefaultUserPattern)
	privPat := pick(patterns.Priv, DefaultPrivPattern)
	configPat := pick(patterns.Config, DefaultConfigPattern)
	anyPat := pick(patterns.Any, DefaultAnyPattern)
	passwordPat := pick(patterns.Password, DefaultPasswordPattern)
	paginationPat := pick(patterns.Pagination, DefaultPaginationPattern)

	d := &Detector{}
	var err error
	if d.User, err = regexp.Compile(userPat); err != nil {
		return nil, fmt.Errorf("invalid user prompt pattern: %w", err)
	}
	if d.Priv, err = regexp.Compile(privPat); err != nil {
		return nil, fmt.Errorf("invalid priv prompt pattern: %w", err)
	}
	if d.Config, err = regexp.Compile(configPat); err != nil {
		return nil, fmt.Errorf("invalid config prompt pattern: %w", err)
	}
	if d.Any, err = regexp.Compile(anyPat); err != nil {
		return nil, fmt.Errorf("invalid any prompt pattern: %w", err)
	}
	if d.Password, err = regexp.Compile(passwordPat); err != nil {
		return nil, fmt.Errorf("invalid password prompt pattern: %w", err)
	}
	if d.Pagination, err = regexp.Compile(paginationPat); err != nil {
		return nil, fmt.Errorf("invalid pagination pattern: %w", err)
	}

	// Combined pattern disambiguates the device's reply to privilege
	// escalation in a single wait.
	combined := fmt.Sprintf("(%s)|(%s)", privPat, passwordPat)
	if d.PrivOrPassword, err = regexp.Compile(combined); err != nil {
		return nil, fmt.Errorf("invalid priv-or-password pattern: %w", err)
	}

	return d, nil
}

// MustDetector compiles a detector and panics on bad patterns. For the
// built-in defaults this cannot fail.
func MustDetector(patterns api.PromptPatterns) *Detector {
	d, err := NewDetector(patterns)
	if err != nil {
		panic(err)
	}
	return d
}

// Detect analyzes the end of the buffer to determine the current prompt
// state. The config prompt superficially looks like priv, so it is tested
// first.
func (d *Detector) Detect(buffer string) State {
	if d.Config.MatchString(buffer) {
		return Config
	}
	if d.Priv.MatchString(buffer) {
		return Priv
	}
	if d.User.MatchString(buffer) {
		return User
	}
	return Unknown
}

// Normalize converts raw device output into its canonical text form:
// ANSI CSI sequences stripped, backspaces applied, line endings folded to \n.
// Applied before any classification and to final captures, never to the raw
// bytes forwarded to interactive consumers. Idempotent.
func Normalize(s string) string {
	s = ansiCSI.ReplaceAllString(s, "")

	if strings.ContainsRune(s, '\x08') {
		s = applyBackspaces(s)
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// applyBackspaces erases the character preceding each \x08. Backspaces with
// nothing left to erase are dropped.
func applyBackspaces(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\x08' {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Tail returns the last n characters of s, or s itself when shorter.
func Tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
