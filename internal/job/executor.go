// Package job drives submitted jobs to a terminal state, producing per-target
// status, log, verification results, and categorized failures.
package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"portmux/internal/api"
	"portmux/internal/arbiter"
	"portmux/internal/runner"
	"portmux/internal/serial"
	"portmux/internal/template"
	"portmux/internal/verify"
	"portmux/pkg/logging"
)

// TargetSession is the session surface the executor drives. Satisfied by
// *serial.Session; tests substitute scripted devices.
type TargetSession interface {
	runner.Console
	Connect() error
	Disconnect()
}

// SessionFactory builds the serial session for one target run.
type SessionFactory func(portPath string, baud int) TargetSession

// Definitions resolves the entity definitions a job snapshots at start.
type Definitions interface {
	Template(name string) (*api.Template, error)
	Macro(name string) (*api.Macro, error)
	Profile(name string) (*api.DeviceProfile, error)
	Settings() api.Settings
}

const (
	defaultExpectTimeout = 30 * time.Second
	defaultPromptTimeout = 15 * time.Second

	connectDrain  = 500 * time.Millisecond
	syslogDrain   = 2 * time.Second
	bodyLineDelay = 200 * time.Millisecond
)

// Commands operators habitually paste into config bodies that the executor
// already issues itself.
var redundantBodyCommands = map[string]struct{}{
	"en":                 {},
	"enable":             {},
	"conf":               {},
	"configure":          {},
	"conf t":             {},
	"configure terminal": {},
}

var portIDPattern = regexp.MustCompile(`port(\d+)`)

// Executor consumes queued jobs and processes their targets sequentially.
type Executor struct {
	store      *Store
	ports      *arbiter.Arbiter
	defs       Definitions
	engine     *template.Engine
	evaluator  *verify.Evaluator
	newSession SessionFactory

	expectTimeout time.Duration
	promptTimeout time.Duration

	queue chan string
}

// Option adjusts executor construction.
type Option func(*Executor)

// WithSessionFactory substitutes the serial session constructor.
func WithSessionFactory(f SessionFactory) Option {
	return func(e *Executor) { e.newSession = f }
}

// WithExpectTimeout overrides the bounded wait of expect steps.
func WithExpectTimeout(d time.Duration) Option {
	return func(e *Executor) { e.expectTimeout = d }
}

// WithPromptTimeout overrides the post-command prompt wait of send steps.
func WithPromptTimeout(d time.Duration) Option {
	return func(e *Executor) { e.promptTimeout = d }
}

// NewExecutor creates a new executor
func NewExecutor(store *Store, ports *arbiter.Arbiter, defs Definitions, opts ...Option) *Executor {
	e := &Executor{
		store:     store,
		ports:     ports,
		defs:      defs,
		engine:    template.New(),
		evaluator: verify.New(),
		newSession: func(portPath string, baud int) TargetSession {
			return serial.New(portPath, baud)
		},
		expectTimeout: defaultExpectTimeout,
		promptTimeout: defaultPromptTimeout,
		queue:         make(chan string, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit enqueues a job for background execution.
func (e *Executor) Submit(jobID string) {
	e.queue <- jobID
}

// Start runs the background worker until the context is canceled. One job
// executes at a time; targets within a job run sequentially.
func (e *Executor) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case jobID := <-e.queue:
				if err := e.ExecuteJob(jobID); err != nil {
					logging.Error("JobExecutor", err, "Job %s failed to execute", jobID)
				}
			}
		}
	}()
}

// ExecuteJob drives one job to a terminal state.
func (e *Executor) ExecuteJob(jobID string) error {
	j, err := e.store.Get(jobID)
	if err != nil {
		return err
	}

	if err := e.store.SetJobStatus(jobID, api.JobStatusRunning); err != nil {
		return err
	}
	logging.Info("JobExecutor", "Job %s running (%d targets)", jobID, len(j.Targets))

	// Snapshot definitions once; a job never observes mid-run edits.
	var tmpl *api.Template
	var macro *api.Macro
	var profile *api.DeviceProfile

	if j.Template != "" {
		if tmpl, err = e.defs.Template(j.Template); err != nil {
			e.failAllQueued(j, fmt.Sprintf("template %s: %v", j.Template, err))
			e.store.SetJobStatus(jobID, api.JobStatusFailed)
			return err
		}
	}
	if j.Macro != "" {
		if macro, err = e.defs.Macro(j.Macro); err != nil {
			e.failAllQueued(j, fmt.Sprintf("macro %s: %v", j.Macro, err))
			e.store.SetJobStatus(jobID, api.JobStatusFailed)
			return err
		}
	}
	if tmpl != nil && tmpl.Profile != "" {
		if profile, err = e.defs.Profile(tmpl.Profile); err != nil {
			logging.Warn("JobExecutor", "Profile %s not found, using defaults: %v", tmpl.Profile, err)
			profile = nil
		}
	}
	settings := e.defs.Settings()

	for i := range j.Targets {
		e.processTarget(jobID, &j.Targets[i], tmpl, macro, profile, settings)
	}

	final, err := e.store.Get(jobID)
	if err != nil {
		return err
	}
	status := api.JobStatusCompleted
	for _, t := range final.Targets {
		if t.Status == api.TargetStatusFailed {
			status = api.JobStatusFailed
			break
		}
	}
	logging.Info("JobExecutor", "Job %s %s", jobID, status)
	return e.store.SetJobStatus(jobID, status)
}

func (e *Executor) failAllQueued(j *api.Job, msg string) {
	for _, t := range j.Targets {
		e.store.SetTargetStatus(j.ID, t.ID, api.TargetStatusFailed)
		e.store.AppendTargetLog(j.ID, t.ID, fmt.Sprintf("[%s] Error: %s", logging.Timestamp(), msg))
		category := Categorize(msg, "")
		e.store.SetTargetFailure(j.ID, t.ID, category, Remediation(category))
	}
}

func (e *Executor) processTarget(jobID string, t *api.JobTarget, tmpl *api.Template, macro *api.Macro, profile *api.DeviceProfile, settings api.Settings) {
	e.store.SetTargetStatus(jobID, t.ID, api.TargetStatusRunning)

	log := func(msg string) {
		e.store.AppendTargetLog(jobID, t.ID, fmt.Sprintf("[%s] %s", logging.Timestamp(), msg))
	}

	if err := e.runTarget(jobID, t, tmpl, macro, profile, settings, log); err != nil {
		e.store.SetTargetStatus(jobID, t.ID, api.TargetStatusFailed)
		log(fmt.Sprintf("Error: %v", err))

		category := CategoryUnknown
		if api.IsPortBusy(err) {
			category = CategoryPortBusy
		} else if snapshot, serr := e.store.Get(jobID); serr == nil {
			if target := findTarget(snapshot, t.ID); target != nil {
				category = Categorize(err.Error(), target.Log)
			}
		}
		e.store.SetTargetFailure(jobID, t.ID, category, Remediation(category))
	}
}

func findTarget(j *api.Job, targetID string) *api.JobTarget {
	for i := range j.Targets {
		if j.Targets[i].ID == targetID {
			return &j.Targets[i]
		}
	}
	return nil
}

// runTarget performs the full serial conversation for one target. Any
// returned error fails the target; verification failures are recorded inside
// and return nil.
func (e *Executor) runTarget(jobID string, t *api.JobTarget, tmpl *api.Template, macro *api.Macro, profile *api.DeviceProfile, settings api.Settings, log func(string)) error {
	portPath, err := expandUser(t.Port)
	if err != nil {
		return err
	}
	if _, err := os.Stat(portPath); err != nil {
		return api.NewFileNotFoundError(portPath)
	}

	log(fmt.Sprintf("Connecting to %s...", portPath))

	if profile != nil {
		log(fmt.Sprintf("Using device profile: %s (%s)", profile.Name, profile.Vendor))
	}

	baud := settings.BaudFor(portID(t.Port))

	// The target holds the port exclusively for the whole run.
	if err := e.ports.Acquire(portPath); err != nil {
		return err
	}
	defer e.ports.Release(portPath)
	lock := e.ports.PortLock(portPath)
	lock.Lock()
	defer lock.Unlock()

	session := e.newSession(portPath, baud)
	if err := session.Connect(); err != nil {
		return err
	}
	defer session.Disconnect()

	// Swallow boot noise before talking.
	session.Drain(connectDrain)

	r, err := runner.New(session, profile)
	if err != nil {
		return err
	}

	r.DisablePaging()
	log("Interactive pagination handler active.")

	// A macro's steps override the template's; the legacy body is the
	// fallback when neither defines steps.
	var steps []api.Step
	if macro != nil && len(macro.Steps) > 0 {
		steps = macro.Steps
	} else if tmpl != nil && len(tmpl.Steps) > 0 {
		steps = tmpl.Steps
	}

	if len(steps) > 0 {
		return e.runSteps(jobID, t, steps, session, r, log)
	}
	if tmpl != nil && tmpl.Body != "" {
		return e.runBody(jobID, t, tmpl, session, r, log)
	}
	return fmt.Errorf("job defines neither steps nor a template body")
}

func (e *Executor) runSteps(jobID string, t *api.JobTarget, steps []api.Step, session TargetSession, r *runner.Runner, log func(string)) error {
	var execution, verification []api.Step
	for _, step := range steps {
		if step.Type == api.StepTypeVerify {
			verification = append(verification, step)
		} else {
			execution = append(execution, step)
		}
	}

	log(fmt.Sprintf("Executing %d configuration steps...", len(execution)))
	e.store.SetTargetResults(jobID, t.ID, []api.VerificationResult{})

	for i, step := range execution {
		stepType := step.Type
		if stepType == "" {
			stepType = api.StepTypeSend
		}
		log(fmt.Sprintf("Step %d: %s", i+1, stepType))

		switch stepType {
		case api.StepTypeSend, api.StepTypeCommand:
			cmdTemplate := step.Cmd
			if cmdTemplate == "" {
				cmdTemplate = step.Content
			}
			rendered, err := e.engine.Render(cmdTemplate, t.Variables)
			if err != nil {
				return err
			}
			if err := session.SendLine(rendered); err != nil {
				return err
			}
			if step.ShouldWaitPrompt() {
				out, err := r.WaitForPrompt(e.promptTimeout, nil)
				if err != nil {
					return err
				}
				log(fmt.Sprintf("Sent: %s", rendered))
				if errMsg := r.CheckForErrors(out); errMsg != "" {
					log(fmt.Sprintf("WARNING: %s", errMsg))
				}
			} else {
				log(fmt.Sprintf("Sent (no wait): %s", rendered))
			}

		case api.StepTypeExpect:
			if err := e.runExpect(step, t.Variables, session, log); err != nil {
				return err
			}

		case api.StepTypePrivMode:
			cmd := step.ModeOverride()
			if err := r.EnsurePriv(cmd); err != nil {
				return err
			}
			log(fmt.Sprintf("Acquired privileged mode (using: %s).", orDefault(cmd)))

		case api.StepTypeConfigMode:
			cmd := step.ModeOverride()
			if err := r.EnterConfig(cmd); err != nil {
				return err
			}
			log(fmt.Sprintf("Entered config mode (using: %s).", orDefault(cmd)))

		case api.StepTypeExitConfig:
			cmd := step.ModeOverride()
			if err := r.ExitConfig(cmd); err != nil {
				return err
			}
			log(fmt.Sprintf("Exited config mode (using: %s).", orDefault(cmd)))

		default:
			return fmt.Errorf("unknown step type %q", stepType)
		}
	}

	if len(verification) > 0 {
		// Let trailing syslog chatter (e.g. %SYS-5-CONFIG_I) clear before
		// capturing evidence.
		log("Draining buffer (2s) to clear Syslog messages...")
		session.Drain(syslogDrain)

		log(fmt.Sprintf("Running %d verification steps...", len(verification)))
		checks := make([]api.Check, 0, len(verification))
		for i, step := range verification {
			name := step.Name
			if name == "" {
				name = fmt.Sprintf("Check %d", i+1)
			}
			checks = append(checks, api.Check{
				Name:          name,
				Command:       step.Command,
				Type:          step.CheckType,
				Pattern:       step.Pattern,
				EvidenceLines: step.EvidenceLines,
			})
		}
		results := e.evaluator.Run(r, checks, t.Variables, log)
		e.store.SetTargetResults(jobID, t.ID, results)

		failedCount := 0
		for _, res := range results {
			if res.Status == api.CheckStatusFail || res.Status == api.CheckStatusError {
				failedCount++
			}
		}
		if failedCount > 0 {
			log(fmt.Sprintf("Verification FAILED: %d/%d checks failed.", failedCount, len(results)))
			e.store.SetTargetStatus(jobID, t.ID, api.TargetStatusFailed)
			e.store.SetTargetFailure(jobID, t.ID, CategoryVerificationFailed, "One or more verification checks failed.")
			return nil
		}
		log("Verification PASSED: All checks passed.")
	}

	e.store.SetTargetStatus(jobID, t.ID, api.TargetStatusSuccess)
	log("All steps completed successfully.")
	return nil
}

func (e *Executor) runExpect(step api.Step, variables map[string]interface{}, session TargetSession, log func(string)) error {
	pattern, err := e.engine.Render(step.Pattern, variables)
	if err != nil {
		return err
	}
	response, err := e.engine.Render(step.Response, variables)
	if err != nil {
		return err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("expect pattern %q: %w", pattern, err)
	}

	log(fmt.Sprintf("Waiting for pattern: %s", pattern))

	var buf strings.Builder
	deadline := time.Now().Add(e.expectTimeout)
	for time.Now().Before(deadline) {
		chunk, err := session.ReadAvailable()
		if err != nil {
			return err
		}
		if chunk == "" {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		buf.WriteString(chunk)
		if re.MatchString(buf.String()) {
			log(fmt.Sprintf("Found pattern. Sending response: %s", response))
			return session.SendLine(response)
		}
	}

	return api.NewTimeoutError(fmt.Sprintf("pattern: %s", pattern), tailOf(buf.String(), 500))
}

func (e *Executor) runBody(jobID string, t *api.JobTarget, tmpl *api.Template, session TargetSession, r *runner.Runner, log func(string)) error {
	log("Executing deprecated body-based template...")

	rendered, err := e.engine.Render(tmpl.Body, t.Variables)
	if err != nil {
		return err
	}
	// Bodies with control structures go through the full template engine
	// after flat substitution.
	if strings.Contains(rendered, "{{") {
		rendered, err = e.engine.RenderGoTemplate(rendered, t.Variables)
		if err != nil {
			return fmt.Errorf("template body render failed, a referenced variable is undefined or the template is invalid: %v", err)
		}
	}
	log("Template rendered successfully.")

	if err := r.EnsurePriv(""); err != nil {
		return err
	}
	log("Acquired privileged mode.")

	if err := r.EnterConfig(""); err != nil {
		return err
	}
	log("Entered config mode.")

	for _, line := range strings.Split(rendered, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if _, redundant := redundantBodyCommands[strings.ToLower(stripped)]; redundant {
			log(fmt.Sprintf("Skipping redundant command: %s", stripped))
			continue
		}

		if err := session.SendLine(stripped); err != nil {
			return err
		}
		// No prompt wait between lines; the fixed delay keeps throughput
		// high and the opportunistic scrape still surfaces CLI errors.
		time.Sleep(bodyLineDelay)

		out, err := session.ReadAvailable()
		if err != nil {
			return err
		}
		if errMsg := r.CheckForErrors(out); errMsg != "" {
			log(fmt.Sprintf("WARNING: Error after '%s': %s", stripped, errMsg))
		}
	}

	log("Config sent.")
	if err := r.ExitConfig(""); err != nil {
		return err
	}

	if len(tmpl.Verification) == 0 {
		e.store.SetTargetStatus(jobID, t.ID, api.TargetStatusSuccess)
		log("No verification checks defined. Execution completed successfully.")
		return nil
	}

	log("Draining buffer (2s) to clear Syslog messages...")
	session.Drain(syslogDrain)

	log(fmt.Sprintf("Running %d verification check(s)...", len(tmpl.Verification)))
	results := e.evaluator.Run(r, tmpl.Verification, t.Variables, log)
	e.store.SetTargetResults(jobID, t.ID, results)

	failedCount := 0
	for _, res := range results {
		if res.Status == api.CheckStatusFail || res.Status == api.CheckStatusError {
			failedCount++
		}
	}
	if failedCount > 0 {
		log(fmt.Sprintf("Verification FAILED: %d/%d checks failed.", failedCount, len(results)))
		e.store.SetTargetStatus(jobID, t.ID, api.TargetStatusFailed)
		e.store.SetTargetFailure(jobID, t.ID, CategoryVerificationFailed, "One or more verification checks failed.")
		return nil
	}

	e.store.SetTargetStatus(jobID, t.ID, api.TargetStatusSuccess)
	log(fmt.Sprintf("Verification PASSED: All %d checks passed.", len(results)))
	return nil
}

func orDefault(cmd string) string {
	if cmd == "" {
		return "default"
	}
	return cmd
}

func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// portID extracts the numeric port identifier from a path like "~/port3".
func portID(port string) string {
	m := portIDPattern.FindStringSubmatch(port)
	if m == nil {
		return ""
	}
	return m[1]
}

// expandUser resolves a leading ~ against the current user's home directory.
func expandUser(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
