package api

import "time"

// Job status values.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobTarget status values.
const (
	TargetStatusQueued  = "queued"
	TargetStatusRunning = "running"
	TargetStatusSuccess = "success"
	TargetStatusFailed  = "failed"
)

// VerificationResult status values.
const (
	CheckStatusPass  = "pass"
	CheckStatusFail  = "fail"
	CheckStatusError = "error"
)

// Step types understood by the job executor.
const (
	StepTypeSend       = "send"
	StepTypeCommand    = "command"
	StepTypeExpect     = "expect"
	StepTypePrivMode   = "priv_mode"
	StepTypeConfigMode = "config_mode"
	StepTypeExitConfig = "exit_config"
	StepTypeVerify     = "verify"
)

// Check types understood by the verification evaluator.
const (
	CheckTypeRegexMatch      = "regex_match"
	CheckTypeRegexNotPresent = "regex_not_present"
	CheckTypeContains        = "contains"
)

// PromptPatterns parameterizes the prompt detector for a vendor/OS family.
// Empty fields fall back to the built-in Cisco-style defaults.
type PromptPatterns struct {
	User       string `yaml:"user,omitempty" json:"user,omitempty"`
	Priv       string `yaml:"priv,omitempty" json:"priv,omitempty"`
	Config     string `yaml:"config,omitempty" json:"config,omitempty"`
	Any        string `yaml:"any,omitempty" json:"any,omitempty"`
	Password   string `yaml:"password,omitempty" json:"password,omitempty"`
	Pagination string `yaml:"pagination,omitempty" json:"pagination,omitempty"`
}

// ProfileCommands holds the CLI verbs a profile uses for mode transitions and
// well-known show commands.
type ProfileCommands struct {
	ShowVersion string `yaml:"show_version,omitempty" json:"show_version,omitempty"`
	ShowRun     string `yaml:"show_run,omitempty" json:"show_run,omitempty"`
	SaveConfig  string `yaml:"save_config,omitempty" json:"save_config,omitempty"`
	EnterConfig string `yaml:"enter_config,omitempty" json:"enter_config,omitempty"`
	ExitConfig  string `yaml:"exit_config,omitempty" json:"exit_config,omitempty"`
	Enable      string `yaml:"enable,omitempty" json:"enable,omitempty"`
}

// DeviceProfile is a named collection of CLI patterns and verbs that
// parameterizes the protocol state machine for a device family.
type DeviceProfile struct {
	Name             string          `yaml:"name" json:"name"`
	Vendor           string          `yaml:"vendor" json:"vendor"`
	Description      string          `yaml:"description,omitempty" json:"description,omitempty"`
	PromptPatterns   PromptPatterns  `yaml:"prompt_patterns" json:"prompt_patterns"`
	Commands         ProfileCommands `yaml:"commands" json:"commands"`
	ErrorMarkers     []string        `yaml:"error_markers,omitempty" json:"error_markers,omitempty"`
	DetectionCommand string          `yaml:"detection_command,omitempty" json:"detection_command,omitempty"`
}

// Step is one interaction in a template or macro program. Fields are
// type-specific; see the step type constants.
type Step struct {
	Type string `yaml:"type" json:"type"`

	// send / command
	Cmd        string `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Content    string `yaml:"content,omitempty" json:"content,omitempty"`
	WaitPrompt *bool  `yaml:"wait_prompt,omitempty" json:"wait_prompt,omitempty"`

	// expect
	Pattern  string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Response string `yaml:"response,omitempty" json:"response,omitempty"`

	// priv_mode / config_mode / exit_config override of the default verb.
	// Content doubles as the override and takes precedence; Command is used
	// when Content is empty.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// verify
	Name          string `yaml:"name,omitempty" json:"name,omitempty"`
	CheckType     string `yaml:"check_type,omitempty" json:"check_type,omitempty"`
	EvidenceLines int    `yaml:"evidence_lines,omitempty" json:"evidence_lines,omitempty"`
}

// ShouldWaitPrompt reports whether a send/command step waits for a prompt
// after sending. Defaults to true when unset.
func (s *Step) ShouldWaitPrompt() bool {
	return s.WaitPrompt == nil || *s.WaitPrompt
}

// ModeOverride returns the CLI verb override for mode-transition steps, or ""
// when the profile default applies.
func (s *Step) ModeOverride() string {
	if s.Content != "" {
		return s.Content
	}
	return s.Command
}

// Check is one verification check run against captured command output.
type Check struct {
	Name          string `yaml:"name,omitempty" json:"name,omitempty"`
	Command       string `yaml:"command,omitempty" json:"command,omitempty"`
	Type          string `yaml:"type,omitempty" json:"type,omitempty"`
	Pattern       string `yaml:"pattern" json:"pattern"`
	EvidenceLines int    `yaml:"evidence_lines,omitempty" json:"evidence_lines,omitempty"`
}

// Template binds a program (steps, or a legacy body) to an optional device
// profile and a list of verification checks. When both Body and Steps are
// present, Steps drive execution.
type Template struct {
	Name         string                 `yaml:"name" json:"name"`
	Body         string                 `yaml:"body,omitempty" json:"body,omitempty"`
	Steps        []Step                 `yaml:"steps,omitempty" json:"steps,omitempty"`
	ConfigSchema map[string]interface{} `yaml:"config_schema,omitempty" json:"config_schema,omitempty"`
	Verification []Check                `yaml:"verification,omitempty" json:"verification,omitempty"`
	Profile      string                 `yaml:"profile,omitempty" json:"profile,omitempty"`
}

// Macro is a named step sequence interchangeable with Template.Steps at
// execution time. A macro on a job overrides the template's steps.
type Macro struct {
	Name         string                 `yaml:"name" json:"name"`
	Steps        []Step                 `yaml:"steps" json:"steps"`
	ConfigSchema map[string]interface{} `yaml:"config_schema,omitempty" json:"config_schema,omitempty"`
}

// JobTarget is one (port, variables) pair within a job; the unit of execution.
type JobTarget struct {
	ID                  string                 `json:"id"`
	JobID               string                 `json:"job_id"`
	Port                string                 `json:"port"`
	Variables           map[string]interface{} `json:"variables"`
	Status              string                 `json:"status"`
	Log                 string                 `json:"log"`
	VerificationResults []VerificationResult   `json:"verification_results"`
	FailureCategory     string                 `json:"failure_category,omitempty"`
	Remediation         string                 `json:"remediation,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// Job drives a template or macro against one or more targets.
type Job struct {
	ID        string      `json:"id"`
	Template  string      `json:"template,omitempty"`
	Macro     string      `json:"macro,omitempty"`
	Status    string      `json:"status"`
	Targets   []JobTarget `json:"targets"`
	CreatedAt time.Time   `json:"created_at"`
}

// VerificationResult is the outcome of a single check against captured output.
type VerificationResult struct {
	CheckName  string `json:"check_name"`
	Status     string `json:"status"`
	Evidence   string `json:"evidence"`
	FullOutput string `json:"full_output,omitempty"`
	Message    string `json:"message"`
}

// Settings holds operator-tunable runtime settings consumed by the core.
type Settings struct {
	// PortBaudRates maps port-id strings ("1".."16") to baud overrides.
	PortBaudRates map[string]int `yaml:"port_baud_rates,omitempty" json:"port_baud_rates,omitempty"`
}

// BaudFor returns the configured baud for a port id, or the 9600 default.
func (s *Settings) BaudFor(portID string) int {
	if s == nil || s.PortBaudRates == nil {
		return 9600
	}
	if baud, ok := s.PortBaudRates[portID]; ok && baud > 0 {
		return baud
	}
	return 9600
}
