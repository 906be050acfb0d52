// Package verify evaluates verification checks against captured command
// output and extracts line-contextual evidence for human review.
package verify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"portmux/internal/api"
	"portmux/internal/template"
)

// ShowRunner is the slice of the command runner the evaluator needs.
type ShowRunner interface {
	RunShow(cmd string, timeout time.Duration, onData func(string)) (string, error)
}

const (
	defaultCommand       = "show run"
	defaultEvidenceLines = 3
	showTimeout          = 60 * time.Second
)

// Evaluator runs checks of kinds regex_match, regex_not_present and contains.
// Command output is cached per run, so several checks against the same
// command cost one device round-trip.
type Evaluator struct {
	engine *template.Engine
}

// New creates a new evaluator
func New() *Evaluator {
	return &Evaluator{engine: template.New()}
}

// Options adjusts a single evaluation run.
type Options struct {
	// Log receives progress lines; nil disables logging.
	Log func(string)
	// Cache maps command -> captured output across the run. A nil cache is
	// allocated internally.
	Cache map[string]string
	// IncludeFullOutput attaches the full capture to the last check per
	// command. Defaults to true via Run; RunWithOptions takes it verbatim.
	IncludeFullOutput bool
}

// Run evaluates checks in order with full-output attachment enabled.
func (e *Evaluator) Run(r ShowRunner, checks []api.Check, variables map[string]interface{}, logf func(string)) []api.VerificationResult {
	return e.RunWithOptions(r, checks, variables, Options{Log: logf, IncludeFullOutput: true})
}

// RunWithOptions evaluates checks in order.
func (e *Evaluator) RunWithOptions(r ShowRunner, checks []api.Check, variables map[string]interface{}, opts Options) []api.VerificationResult {
	results := make([]api.VerificationResult, 0, len(checks))

	cache := opts.Cache
	if cache == nil {
		cache = make(map[string]string)
	}

	logf := opts.Log
	if logf == nil {
		logf = func(string) {}
	}

	// Last check index per command, so only the final consumer of a capture
	// carries the full output (size control on persisted results).
	lastIndices := make(map[string]int)
	if opts.IncludeFullOutput {
		for idx, check := range checks {
			lastIndices[commandOf(check)] = idx
		}
	}

	for idx, check := range checks {
		checkName := check.Name
		if checkName == "" {
			checkName = "Unnamed Check"
		}
		command := commandOf(check)
		checkType := check.Type
		if checkType == "" {
			checkType = api.CheckTypeRegexMatch
		}
		evidenceLines := check.EvidenceLines
		if evidenceLines <= 0 {
			evidenceLines = defaultEvidenceLines
		}

		pattern, err := e.engine.Render(check.Pattern, variables)
		if err != nil {
			logf(fmt.Sprintf("Error rendering pattern for '%s': %v", checkName, err))
			results = append(results, api.VerificationResult{
				CheckName: checkName,
				Status:    api.CheckStatusError,
				Message:   fmt.Sprintf("Pattern render error: %v", err),
			})
			continue
		}

		logf(fmt.Sprintf("Running check '%s': cmd='%s', type='%s', pattern='%s'", checkName, command, checkType, pattern))

		output, ok := cache[command]
		if !ok {
			var err error
			output, err = r.RunShow(command, showTimeout, nil)
			if err != nil {
				results = append(results, api.VerificationResult{
					CheckName: checkName,
					Status:    api.CheckStatusError,
					Message:   fmt.Sprintf("Check execution error: %v", err),
				})
				continue
			}
			cache[command] = output
		}

		res := api.VerificationResult{
			CheckName: checkName,
			Status:    api.CheckStatusError,
			Message:   fmt.Sprintf("unknown check type %q", checkType),
		}

		switch checkType {
		case api.CheckTypeRegexMatch:
			res = evalRegexMatch(checkName, pattern, output, evidenceLines)
		case api.CheckTypeRegexNotPresent:
			res = evalRegexNotPresent(checkName, pattern, output, evidenceLines)
		case api.CheckTypeContains:
			res = evalContains(checkName, pattern, output)
		}

		if opts.IncludeFullOutput && lastIndices[command] == idx && res.Status != api.CheckStatusError {
			res.FullOutput = output
		}

		results = append(results, res)
		logf(fmt.Sprintf("Check '%s' result: %s", checkName, res.Status))
	}

	return results
}

func commandOf(check api.Check) string {
	if check.Command != "" {
		return check.Command
	}
	return defaultCommand
}

// compileCheckPattern compiles a verification pattern in multi-line mode,
// enabling DOTALL when the pattern itself spans lines.
func compileCheckPattern(pattern string) (*regexp.Regexp, error) {
	flags := "(?m)"
	if strings.Contains(pattern, "\n") {
		flags = "(?ms)"
	}
	return regexp.Compile(flags + pattern)
}

func evalRegexMatch(checkName, pattern, output string, evidenceLines int) api.VerificationResult {
	re, err := compileCheckPattern(pattern)
	if err != nil {
		return api.VerificationResult{
			CheckName: checkName,
			Status:    api.CheckStatusError,
			Message:   fmt.Sprintf("Check execution error: %v", err),
		}
	}

	if loc := re.FindStringIndex(output); loc != nil {
		return api.VerificationResult{
			CheckName: checkName,
			Status:    api.CheckStatusPass,
			Evidence:  evidenceAround(output, loc[0], evidenceLines),
			Message:   fmt.Sprintf("Pattern matched: %s", pattern),
		}
	}

	// Relaxed fallback: whitespace-normalize both sides and retry
	// case-insensitively. Tolerates device formatting variance like
	// "13   MGMT" against a pattern of "13 MGMT".
	if relaxedMatches(pattern, output) {
		evidence := "(Relaxed match successful)"
		if tokens := strings.Fields(pattern); len(tokens) > 0 {
			escaped := make([]string, len(tokens))
			for i, t := range tokens {
				escaped[i] = regexp.QuoteMeta(t)
			}
			if tolerant, err := regexp.Compile(`(?is)` + strings.Join(escaped, `\s+`)); err == nil {
				if loc := tolerant.FindStringIndex(output); loc != nil {
					evidence = evidenceAround(output, loc[0], evidenceLines)
				} else {
					evidence = "(Relaxed match successful - lines found but context extraction failed)"
				}
			}
		}
		return api.VerificationResult{
			CheckName: checkName,
			Status:    api.CheckStatusPass,
			Evidence:  evidence,
			Message:   fmt.Sprintf("Pattern matched (relaxed conformance): %s", pattern),
		}
	}

	return api.VerificationResult{
		CheckName: checkName,
		Status:    api.CheckStatusFail,
		Evidence:  lastChars(output, 500),
		Message:   fmt.Sprintf("Pattern not found: %s", pattern),
	}
}

func relaxedMatches(pattern, output string) bool {
	normPattern := strings.Join(strings.Fields(pattern), " ")
	normOutput := strings.Join(strings.Fields(output), " ")
	re, err := regexp.Compile("(?i)" + normPattern)
	if err != nil {
		// Normalization broke a complex regex; the strict result stands.
		return false
	}
	return re.MatchString(normOutput)
}

func evalRegexNotPresent(checkName, pattern, output string, evidenceLines int) api.VerificationResult {
	re, err := compileCheckPattern(pattern)
	if err != nil {
		return api.VerificationResult{
			CheckName: checkName,
			Status:    api.CheckStatusError,
			Message:   fmt.Sprintf("Check execution error: %v", err),
		}
	}

	loc := re.FindStringIndex(output)
	if loc == nil {
		return api.VerificationResult{
			CheckName: checkName,
			Status:    api.CheckStatusPass,
			Message:   fmt.Sprintf("Pattern correctly absent: %s", pattern),
		}
	}

	return api.VerificationResult{
		CheckName: checkName,
		Status:    api.CheckStatusFail,
		Evidence:  evidenceAround(output, loc[0], evidenceLines),
		Message:   fmt.Sprintf("Unwanted pattern found: %s", pattern),
	}
}

func evalContains(checkName, pattern, output string) api.VerificationResult {
	idx := strings.Index(output, pattern)
	if idx < 0 {
		return api.VerificationResult{
			CheckName: checkName,
			Status:    api.CheckStatusFail,
			Evidence:  lastChars(output, 500),
			Message:   fmt.Sprintf("Text not found: %s", pattern),
		}
	}

	start := idx - 100
	if start < 0 {
		start = 0
	}
	end := idx + 100
	if end > len(output) {
		end = len(output)
	}

	return api.VerificationResult{
		CheckName: checkName,
		Status:    api.CheckStatusPass,
		Evidence:  output[start:end],
		Message:   fmt.Sprintf("Text found: %s", pattern),
	}
}

// evidenceAround extracts the lines surrounding the match location, spanning
// contextLines above and below.
func evidenceAround(output string, matchStart int, contextLines int) string {
	lines := strings.Split(output, "\n")
	matchLine := strings.Count(output[:matchStart], "\n")

	start := matchLine - contextLines
	if start < 0 {
		start = 0
	}
	end := matchLine + contextLines + 1
	if end > len(lines) {
		end = len(lines)
	}

	return strings.Join(lines[start:end], "\n")
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
