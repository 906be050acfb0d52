package verify

import (
	"testing"
	"time"

	"portmux/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockShowRunner returns canned output per command and counts executions.
type mockShowRunner struct {
	outputs map[string]string
	calls   map[string]int
}

func newMockShowRunner() *mockShowRunner {
	return &mockShowRunner{
		outputs: make(map[string]string),
		calls:   make(map[string]int),
	}
}

func (m *mockShowRunner) RunShow(cmd string, timeout time.Duration, onData func(string)) (string, error) {
	m.calls[cmd]++
	return m.outputs[cmd], nil
}

func TestEvaluator_RegexMatch_Pass(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "!\nhostname sw-lab-01\n!\ninterface Gi0/1\n"

	results := New().Run(r, []api.Check{
		{Name: "hostname set", Command: "show run", Type: api.CheckTypeRegexMatch, Pattern: `hostname {{ hostname }}`},
	}, map[string]interface{}{"hostname": "sw-lab-01"}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, api.CheckStatusPass, results[0].Status)
	assert.Contains(t, results[0].Evidence, "hostname sw-lab-01")
	assert.Contains(t, results[0].Message, "Pattern matched")
}

func TestEvaluator_RegexMatch_RelaxedConformance(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show vlan"] = "VLAN Name\n---- ----\n13   MGMT\n20   USERS\n"

	results := New().Run(r, []api.Check{
		{Name: "mgmt vlan", Command: "show vlan", Type: api.CheckTypeRegexMatch, Pattern: "13 MGMT"},
	}, nil, nil)

	require.Len(t, results, 1)
	// The strict search fails on the column spacing; the whitespace-relaxed
	// fallback must pass and still locate line-level evidence.
	assert.Equal(t, api.CheckStatusPass, results[0].Status)
	assert.Contains(t, results[0].Message, "relaxed conformance")
	assert.Contains(t, results[0].Evidence, "13   MGMT")
}

func TestEvaluator_RegexMatch_Fail(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "!\nhostname other\n!"

	results := New().Run(r, []api.Check{
		{Name: "hostname", Command: "show run", Type: api.CheckTypeRegexMatch, Pattern: "hostname sw-lab-01"},
	}, nil, nil)

	require.Len(t, results, 1)
	assert.Equal(t, api.CheckStatusFail, results[0].Status)
	assert.Contains(t, results[0].Message, "Pattern not found")
	// On failure the evidence is the output tail.
	assert.Contains(t, results[0].Evidence, "hostname other")
}

func TestEvaluator_RegexNotPresent(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "interface Gi0/1\n shutdown\n"

	results := New().Run(r, []api.Check{
		{Name: "no vlan 99", Command: "show run", Type: api.CheckTypeRegexNotPresent, Pattern: "vlan 99"},
		{Name: "not shut", Command: "show run", Type: api.CheckTypeRegexNotPresent, Pattern: "shutdown"},
	}, nil, nil)

	require.Len(t, results, 2)
	assert.Equal(t, api.CheckStatusPass, results[0].Status)
	assert.Equal(t, api.CheckStatusFail, results[1].Status)
	assert.Contains(t, results[1].Evidence, "shutdown")
	assert.Contains(t, results[1].Message, "Unwanted pattern found")
}

func TestEvaluator_Contains(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show version"] = "Cisco IOS Software, Version 15.2(4)E7\nUptime: 4 weeks"

	results := New().Run(r, []api.Check{
		{Name: "version", Command: "show version", Type: api.CheckTypeContains, Pattern: "15.2(4)E7"},
		{Name: "absent", Command: "show version", Type: api.CheckTypeContains, Pattern: "12.2(55)SE"},
	}, nil, nil)

	require.Len(t, results, 2)
	assert.Equal(t, api.CheckStatusPass, results[0].Status)
	assert.Contains(t, results[0].Evidence, "15.2(4)E7")
	assert.Equal(t, api.CheckStatusFail, results[1].Status)
}

func TestEvaluator_OutputCachePerRun(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "hostname x\nvlan 10\n"

	New().Run(r, []api.Check{
		{Name: "a", Command: "show run", Type: api.CheckTypeContains, Pattern: "hostname"},
		{Name: "b", Command: "show run", Type: api.CheckTypeContains, Pattern: "vlan 10"},
		{Name: "c", Command: "show run", Type: api.CheckTypeRegexMatch, Pattern: "vlan 10"},
	}, nil, nil)

	// Three checks against the same command cost one device round-trip.
	assert.Equal(t, 1, r.calls["show run"])
}

func TestEvaluator_FullOutputOnlyOnLastCheckPerCommand(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "hostname x\n"
	r.outputs["show vlan"] = "10 USERS\n"

	results := New().Run(r, []api.Check{
		{Name: "a", Command: "show run", Type: api.CheckTypeContains, Pattern: "hostname"},
		{Name: "b", Command: "show vlan", Type: api.CheckTypeContains, Pattern: "USERS"},
		{Name: "c", Command: "show run", Type: api.CheckTypeContains, Pattern: "x"},
	}, nil, nil)

	require.Len(t, results, 3)
	assert.Empty(t, results[0].FullOutput)
	assert.Equal(t, "10 USERS\n", results[1].FullOutput)
	assert.Equal(t, "hostname x\n", results[2].FullOutput)
}

func TestEvaluator_PatternRenderError(t *testing.T) {
	r := newMockShowRunner()

	results := New().Run(r, []api.Check{
		{Name: "bad", Command: "show run", Type: api.CheckTypeRegexMatch, Pattern: "hostname {{ missing }}"},
		{Name: "good", Command: "show run", Type: api.CheckTypeContains, Pattern: "x"},
	}, map[string]interface{}{}, nil)

	require.Len(t, results, 2)
	assert.Equal(t, api.CheckStatusError, results[0].Status)
	assert.Contains(t, results[0].Message, "Pattern render error")
	// A render error does not run the command; only the second check does.
	assert.Equal(t, 1, r.calls["show run"])
	// Subsequent checks still run.
	assert.NotEqual(t, api.CheckStatusError, results[1].Status)
}

func TestEvaluator_DefaultsApplied(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "line1\nline2\nline3\nline4\nneedle here\nline6\nline7\nline8\nline9\n"

	results := New().Run(r, []api.Check{
		{Pattern: "needle"},
	}, nil, nil)

	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, "Unnamed Check", res.CheckName)
	assert.Equal(t, api.CheckStatusPass, res.Status)
	// Default evidence window is 3 lines either side of the match.
	assert.Contains(t, res.Evidence, "line2")
	assert.Contains(t, res.Evidence, "line8")
	assert.NotContains(t, res.Evidence, "line1\n")
	assert.NotContains(t, res.Evidence, "line9")
}

func TestEvaluator_MultilinePatternEnablesDotAll(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "interface Gi0/1\n description uplink\n no shutdown\n"

	results := New().Run(r, []api.Check{
		{Name: "iface block", Command: "show run", Type: api.CheckTypeRegexMatch,
			Pattern: "interface Gi0/1\n.*no shutdown"},
	}, nil, nil)

	require.Len(t, results, 1)
	assert.Equal(t, api.CheckStatusPass, results[0].Status)
}

func TestEvaluator_InvalidCheckPattern(t *testing.T) {
	r := newMockShowRunner()
	r.outputs["show run"] = "whatever"

	results := New().Run(r, []api.Check{
		{Name: "broken", Command: "show run", Type: api.CheckTypeRegexMatch, Pattern: "(["},
	}, nil, nil)

	require.Len(t, results, 1)
	assert.Equal(t, api.CheckStatusError, results[0].Status)
	assert.Contains(t, results[0].Message, "Check execution error")
}
