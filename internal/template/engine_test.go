package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Render(t *testing.T) {
	engine := New()

	variables := map[string]interface{}{
		"hostname": "sw-lab-01",
		"vlan_id":  42,
		"iface": map[string]interface{}{
			"name": "Gi0/1",
		},
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple variable", "hostname {{ hostname }}", "hostname sw-lab-01"},
		{"integer variable", "vlan {{ vlan_id }}", "vlan 42"},
		{"no spaces", "vlan {{vlan_id}}", "vlan 42"},
		{"dot prefix", "vlan {{ .vlan_id }}", "vlan 42"},
		{"nested path", "interface {{ iface.name }}", "interface Gi0/1"},
		{"repeated variable", "{{ hostname }}-{{ hostname }}", "sw-lab-01-sw-lab-01"},
		{"no placeholders", "show running-config", "show running-config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Render(tt.input, variables)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEngine_Render_UndefinedVariable(t *testing.T) {
	engine := New()

	_, err := engine.Render("hostname {{ hostname }}", map[string]interface{}{})
	require.Error(t, err)
	// The failure categorizer keys on this wording.
	assert.Contains(t, err.Error(), "is undefined")
	assert.Contains(t, err.Error(), "hostname")
}

func TestEngine_Render_MultipleUndefined(t *testing.T) {
	engine := New()

	_, err := engine.Render("{{ a }} {{ b }}", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined")
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestEngine_Render_MissingNestedProperty(t *testing.T) {
	engine := New()

	_, err := engine.Render("{{ iface.speed }}", map[string]interface{}{
		"iface": map[string]interface{}{"name": "Gi0/1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined")
}

func TestEngine_ExtractVariables(t *testing.T) {
	engine := New()

	vars := engine.ExtractVariables("hostname {{ hostname }}\nvlan {{ vlan_id }}\nvlan {{ vlan_id }}")
	assert.ElementsMatch(t, []string{"hostname", "vlan_id"}, vars)
}

func TestEngine_ValidateVariables(t *testing.T) {
	engine := New()

	err := engine.ValidateVariables("{{ hostname }}", map[string]interface{}{"hostname": "x"})
	assert.NoError(t, err)

	err = engine.ValidateVariables("{{ hostname }} {{ domain }}", map[string]interface{}{"hostname": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain")
}

func TestEngine_RenderGoTemplate(t *testing.T) {
	engine := New()

	result, err := engine.RenderGoTemplate(
		`{{ if eq .role "core" }}spanning-tree mode rapid-pvst{{ end }}`,
		map[string]interface{}{"role": "core"},
	)
	require.NoError(t, err)
	assert.Equal(t, "spanning-tree mode rapid-pvst", result)
}

func TestEngine_RenderGoTemplate_SprigFunctions(t *testing.T) {
	engine := New()

	result, err := engine.RenderGoTemplate(
		`hostname {{ .site | upper }}-{{ .unit }}`,
		map[string]interface{}{"site": "fra", "unit": "01"},
	)
	require.NoError(t, err)
	assert.Equal(t, "hostname FRA-01", result)
}

func TestEngine_RenderGoTemplate_MissingKey(t *testing.T) {
	engine := New()

	_, err := engine.RenderGoTemplate(`{{ .nope }}`, map[string]interface{}{})
	require.Error(t, err)
}

func TestEngine_RenderGoTemplate_InvalidTemplate(t *testing.T) {
	engine := New()

	_, err := engine.RenderGoTemplate(`{{ if }}`, map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid template")
}
