package template

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders {{ variable }} placeholders in command lines, expect
// patterns, and verification patterns against per-target variables.
// Rendering is strict: any placeholder without a matching variable is an
// error, never silently dropped.
type Engine struct {
	// Pattern to match template variables like {{ vlan_id }} or {{ iface.name }}
	templatePattern *regexp.Regexp
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		templatePattern: regexp.MustCompile(`\{\{\s*\.?([a-zA-Z_][a-zA-Z0-9_.-]*)\s*\}\}`),
	}
}

// Render replaces all template variables in a string with values from the
// variables map. It fails when any referenced variable is undefined.
func (e *Engine) Render(text string, variables map[string]interface{}) (string, error) {
	matches := e.templatePattern.FindAllStringSubmatch(text, -1)

	var missingVars []string

	result := text
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}

		varPath := match[1]

		replacement, err := e.resolvePath(varPath, variables)
		if err != nil {
			missingVars = append(missingVars, varPath)
			continue
		}

		replacementStr := stringify(replacement)

		// Replace every spelling of this placeholder (with/without spaces,
		// with/without the dot prefix).
		for _, placeholder := range []string{
			fmt.Sprintf("{{ %s }}", varPath),
			fmt.Sprintf("{{ .%s }}", varPath),
			fmt.Sprintf("{{%s}}", varPath),
			fmt.Sprintf("{{.%s}}", varPath),
		} {
			result = strings.ReplaceAll(result, placeholder, replacementStr)
		}
	}

	if len(missingVars) > 0 {
		if len(missingVars) == 1 {
			return "", fmt.Errorf("variable '%s' is undefined", missingVars[0])
		}
		return "", fmt.Errorf("variables %s are undefined", strings.Join(missingVars, ", "))
	}

	return result, nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExtractVariables extracts all template variable names referenced by a string.
func (e *Engine) ExtractVariables(text string) []string {
	variables := make(map[string]bool)
	matches := e.templatePattern.FindAllStringSubmatch(text, -1)
	for _, match := range matches {
		if len(match) >= 2 {
			variables[match[1]] = true
		}
	}

	result := make([]string, 0, len(variables))
	for varName := range variables {
		result = append(result, varName)
	}
	return result
}

// ValidateVariables ensures all variables referenced by a string are present.
func (e *Engine) ValidateVariables(text string, variables map[string]interface{}) error {
	var missingVars []string
	for _, varName := range e.ExtractVariables(text) {
		root := strings.SplitN(varName, ".", 2)[0]
		if _, exists := variables[root]; !exists {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("variables %s are undefined", strings.Join(missingVars, ", "))
	}
	return nil
}

// resolvePath resolves a dot-notation path like "iface.name" against the
// variables map.
func (e *Engine) resolvePath(path string, variables map[string]interface{}) (interface{}, error) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty template path")
	}

	currentValue, exists := variables[parts[0]]
	if !exists {
		return nil, fmt.Errorf("variable '%s' is undefined", parts[0])
	}

	for i, part := range parts[1:] {
		var err error
		currentValue, err = e.getProperty(currentValue, part)
		if err != nil {
			return nil, fmt.Errorf("failed to access property '%s' at position %d in path '%s': %w", part, i+1, path, err)
		}
	}

	return currentValue, nil
}

// getProperty extracts a property from an object
func (e *Engine) getProperty(obj interface{}, property string) (interface{}, error) {
	switch v := obj.(type) {
	case map[string]interface{}:
		if value, exists := v[property]; exists {
			return value, nil
		}
		return nil, fmt.Errorf("property '%s' not found in object", property)
	default:
		return nil, fmt.Errorf("cannot access property '%s' on non-object type %T", property, obj)
	}
}

// RenderGoTemplate renders a full Go template with Sprig template functions.
// This is used for template bodies that need more than flat substitution
// (loops over interface lists, default values, upper/lower).
func (e *Engine) RenderGoTemplate(templateStr string, variables map[string]interface{}) (string, error) {
	tmpl, err := template.New("template").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}
