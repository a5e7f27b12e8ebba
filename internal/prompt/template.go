package prompt

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ScanVariables are the placeholders a bot prompt may use. The scan
// pipeline fills them in before handing the prompt to a scanner.
var ScanVariables = []string{"repo", "branch", "extensions"}

// UnknownVariableError lists placeholders outside ScanVariables.
type UnknownVariableError struct {
	Names []string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown template variables: %s (allowed: %s)",
		strings.Join(e.Names, ", "), strings.Join(ScanVariables, ", "))
}

// ValidateTemplate rejects placeholders the scan pipeline cannot fill.
func ValidateTemplate(template string) error {
	var unknown []string
	for _, v := range ExtractVariables(template) {
		if !slices.Contains(ScanVariables, v) {
			unknown = append(unknown, v)
		}
	}
	if len(unknown) > 0 {
		return &UnknownVariableError{Names: unknown}
	}
	return nil
}

// Render replaces {{variable}} placeholders in the template with values from vars.
func Render(template string, vars map[string]string) (string, error) {
	missing := findMissingVars(template, vars)
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	result := variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2]
		return vars[key]
	})

	return result, nil
}

// ExtractVariables returns a list of variable names found in the template.
func ExtractVariables(template string) []string {
	matches := variablePattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

func findMissingVars(template string, vars map[string]string) []string {
	var missing []string
	for _, v := range ExtractVariables(template) {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
