// Package runner implements the protocol state machine that drives a
// text-oriented half-duplex CLI over a serial session.
//
// The runner never stores the prompt state it believes the device is in; it
// re-detects on every call boundary. Asynchronous device output (syslog,
// link-flaps) can move the device between modes without runner action, so a
// cached state variable could lie.
package runner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"portmux/internal/api"
	"portmux/internal/prompt"
	"portmux/pkg/logging"
)

// Console is the slice of the serial session the runner needs. Satisfied by
// *serial.Session; tests substitute scripted mocks.
type Console interface {
	ReadAvailable() (string, error)
	Read(n int) (string, error)
	Send(data string) error
	SendLine(line string) error
	Drain(window time.Duration) string
	WaitFor(pattern *regexp.Regexp, timeout time.Duration) (string, error)
}

// Default CLI verbs, overridden by the device profile's commands.
const (
	defaultEnableCmd      = "en"
	defaultEnterConfigCmd = "conf t"
	defaultExitConfigCmd  = "end"
	defaultNoPagingCmd    = "terminal length 0"
)

// Fallback error markers scraped from command output when the profile
// supplies none.
var defaultErrorMarkers = []string{
	`% Invalid input detected`,
	`% Incomplete command`,
	`% Ambiguous command`,
	`Error:`,
}

const (
	wakeAttempts  = 5
	wakeSettle    = 300 * time.Millisecond
	wakeWait      = 8 * time.Second
	escalateWait  = 10 * time.Second
	configWait    = 10 * time.Second
	deconfigWait  = 5 * time.Second
	noPagingWait  = 3 * time.Second
	pagerSettle   = 200 * time.Millisecond
	idleSleep     = 100 * time.Millisecond
	tailWindow    = 256
	pagerTrimSpan = 128
)

// Runner drives wake, privilege escalation, mode transitions, paged show
// capture and error scraping over a single console.
type Runner struct {
	session  Console
	detector *prompt.Detector
	commands api.ProfileCommands
	markers  []*regexp.Regexp
}

// New builds a runner parameterized by an optional device profile. A nil
// profile selects the built-in Cisco-style defaults.
func New(session Console, profile *api.DeviceProfile) (*Runner, error) {
	var patterns api.PromptPatterns
	var commands api.ProfileCommands
	var markerSpecs []string

	if profile != nil {
		patterns = profile.PromptPatterns
		commands = profile.Commands
		markerSpecs = profile.ErrorMarkers
	}
	if len(markerSpecs) == 0 {
		markerSpecs = defaultErrorMarkers
	}

	detector, err := prompt.NewDetector(patterns)
	if err != nil {
		return nil, fmt.Errorf("profile prompt patterns: %w", err)
	}

	// Error markers are compiled as case-insensitive regexes. A marker that
	// does not compile is treated as a literal substring.
	markers := make([]*regexp.Regexp, 0, len(markerSpecs))
	for _, marker := range markerSpecs {
		re, err := regexp.Compile("(?i)" + marker)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(marker))
		}
		markers = append(markers, re)
	}

	return &Runner{
		session:  session,
		detector: detector,
		commands: commands,
		markers:  markers,
	}, nil
}

// Detector exposes the compiled prompt detector for callers that classify
// output themselves.
func (r *Runner) Detector() *prompt.Detector {
	return r.detector
}

// Wake nudges the console until a prompt appears and returns the accumulated
// output. Returns NoPromptError when the device stays silent.
func (r *Runner) Wake() (string, error) {
	var out strings.Builder
	for i := 0; i < wakeAttempts; i++ {
		if err := r.session.SendLine(""); err != nil {
			return out.String(), err
		}
		time.Sleep(wakeSettle)
		chunk, err := r.session.ReadAvailable()
		if err != nil {
			return out.String(), err
		}
		out.WriteString(chunk)
		if r.detector.Any.MatchString(prompt.Normalize(out.String())) {
			return out.String(), nil
		}
	}

	// Still nothing; one bounded wait before giving up.
	buf, err := r.session.WaitFor(r.detector.Any, wakeWait)
	out.WriteString(buf)
	if err != nil {
		return out.String(), &api.NoPromptError{Tail: prompt.Tail(prompt.Normalize(out.String()), 400)}
	}
	return out.String(), nil
}

// EnsurePriv takes the device to the privileged exec prompt. customCommand
// overrides the profile's enable verb for this call.
func (r *Runner) EnsurePriv(customCommand string) error {
	buf, err := r.Wake()
	if err != nil {
		return err
	}

	switch r.detector.Detect(prompt.Normalize(buf)) {
	case prompt.Priv:
		return nil

	case prompt.Config:
		if err := r.session.SendLine(r.exitConfigCmd("")); err != nil {
			return err
		}
		_, err := r.session.WaitFor(r.detector.Priv, deconfigWait)
		return err

	case prompt.User:
		cmd := customCommand
		if cmd == "" {
			cmd = r.enableCmd()
		}
		if err := r.session.SendLine(cmd); err != nil {
			return err
		}
		// Wait for either the priv prompt or a password challenge, then
		// disambiguate.
		out, err := r.session.WaitFor(r.detector.PrivOrPassword, escalateWait)
		if err != nil {
			return err
		}
		normalized := prompt.Normalize(out)
		if r.detector.Password.MatchString(normalized) {
			return &api.EnablePasswordRequiredError{}
		}
		if !r.detector.Priv.MatchString(normalized) {
			return &api.UnexpectedPromptError{Command: cmd, Tail: prompt.Tail(normalized, 400)}
		}
		return nil

	default:
		return &api.NoPromptError{Tail: prompt.Tail(prompt.Normalize(buf), 400)}
	}
}

// EnterConfig transitions to configuration mode. customCommand overrides the
// profile's enter-config verb.
func (r *Runner) EnterConfig(customCommand string) error {
	if err := r.EnsurePriv(""); err != nil {
		return err
	}
	cmd := customCommand
	if cmd == "" {
		cmd = r.enterConfigCmd()
	}
	if err := r.session.SendLine(cmd); err != nil {
		return err
	}
	_, err := r.session.WaitFor(r.detector.Config, configWait)
	return err
}

// ExitConfig leaves configuration mode. customCommand overrides the profile's
// exit-config verb.
func (r *Runner) ExitConfig(customCommand string) error {
	if err := r.session.SendLine(r.exitConfigCmd(customCommand)); err != nil {
		return err
	}
	_, err := r.session.WaitFor(r.detector.Priv, configWait)
	return err
}

// RunShow executes a show command and returns exactly the device's answer
// with pagination prompts removed.
//
// Pager detection runs before final-prompt detection on every chunk: devices
// exist whose pager prompt ends in '#', and testing for the end prompt first
// would terminate the capture mid-output. Both tests anchor on the last 256
// normalized characters so shell prompts embedded in output do not match.
// onData, when set, receives each raw unnormalized chunk as it arrives.
func (r *Runner) RunShow(cmd string, timeout time.Duration, onData func(string)) (string, error) {
	if err := r.session.SendLine(cmd); err != nil {
		return "", err
	}

	var raw string
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		chunk, err := r.session.ReadAvailable()
		if err != nil {
			return "", err
		}
		if chunk == "" {
			time.Sleep(idleSleep)
			continue
		}

		if onData != nil {
			onData(chunk)
		}

		raw += chunk
		normalized := prompt.Normalize(raw)
		tail := prompt.Tail(normalized, tailWindow)

		// Pager first.
		if r.detector.Pagination.MatchString(tail) {
			if err := r.session.Send(" "); err != nil {
				return "", err
			}

			// Drop the visible pager artifact from the capture: truncate the
			// raw buffer at the last pager match, but only when it sits near
			// the end, so earlier legitimate output is never discarded.
			if locs := r.detector.Pagination.FindAllStringIndex(raw, -1); len(locs) > 0 {
				last := locs[len(locs)-1]
				if last[0] > len(raw)-pagerTrimSpan {
					raw = raw[:last[0]]
				}
			}

			time.Sleep(pagerSettle)
			continue
		}

		// Final prompt second.
		if r.detector.Priv.MatchString(tail) {
			return prompt.Normalize(raw), nil
		}
	}

	return "", api.NewTimeoutError(fmt.Sprintf("final prompt after %q", cmd), prompt.Tail(raw, 500))
}

// WaitForPrompt follows the same pager-first discipline as RunShow but
// returns on any prompt, for command steps that need no collected output.
func (r *Runner) WaitForPrompt(timeout time.Duration, onData func(string)) (string, error) {
	var raw string
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		chunk, err := r.session.ReadAvailable()
		if err != nil {
			return "", err
		}
		if chunk == "" {
			time.Sleep(idleSleep)
			continue
		}

		if onData != nil {
			onData(chunk)
		}

		raw += chunk
		normalized := prompt.Normalize(raw)
		tail := prompt.Tail(normalized, tailWindow)

		if r.detector.Pagination.MatchString(tail) {
			if err := r.session.Send(" "); err != nil {
				return "", err
			}
			time.Sleep(pagerSettle)
			continue
		}

		if r.detector.Any.MatchString(tail) {
			return normalized, nil
		}
	}

	return "", api.NewTimeoutError("prompt", prompt.Tail(raw, 500))
}

// DisablePaging sends "terminal length 0" (profiles do not override it) and
// waits briefly for a prompt. Best-effort: failures are swallowed, the dynamic pager handling in
// RunShow covers devices where it does not stick.
func (r *Runner) DisablePaging() {
	if err := r.session.SendLine(defaultNoPagingCmd); err != nil {
		logging.Debug("CommandRunner", "disable paging write failed: %v", err)
		return
	}
	if _, err := r.WaitForPrompt(noPagingWait, nil); err != nil {
		r.session.Drain(500 * time.Millisecond)
	}
}

// CheckForErrors scans output for the profile's error markers and returns the
// line containing the first hit, or "" when the output is clean. The runner
// itself never aborts on a scraped error; the caller decides.
func (r *Runner) CheckForErrors(buffer string) string {
	for _, marker := range r.markers {
		loc := marker.FindStringIndex(buffer)
		if loc == nil {
			continue
		}
		start := strings.LastIndexAny(buffer[:loc[0]], "\r\n") + 1
		line := buffer[start:]
		if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
			line = line[:idx]
		}
		if line == "" {
			return "unknown error"
		}
		return line
	}
	return ""
}

func (r *Runner) enableCmd() string {
	if r.commands.Enable != "" {
		return r.commands.Enable
	}
	return defaultEnableCmd
}

func (r *Runner) enterConfigCmd() string {
	if r.commands.EnterConfig != "" {
		return r.commands.EnterConfig
	}
	return defaultEnterConfigCmd
}

func (r *Runner) exitConfigCmd(override string) string {
	if override != "" {
		return override
	}
	if r.commands.ExitConfig != "" {
		return r.commands.ExitConfig
	}
	return defaultExitConfigCmd
}
