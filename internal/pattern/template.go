package pattern

import (
	"regexp"
	"strings"
)

var (
	variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)
	doubledSpaces   = regexp.MustCompile(` {2,}`)
)

// Render substitutes {{variable}} placeholders in a response template.
// Unresolved variables render as empty strings and are returned so the
// caller can decide whether the reply is still sendable.
func Render(template string, vars map[string]string) (string, []string) {
	var missing []string
	seen := make(map[string]bool)

	rendered := variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return ""
	})

	// Collapse doubled spaces left by empty substitutions, preserving
	// line breaks.
	rendered = doubledSpaces.ReplaceAllString(rendered, " ")
	return strings.TrimSpace(rendered), missing
}

// Variables returns the distinct placeholder names in a template, in
// order of first appearance.
func Variables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range variablePattern.FindAllStringSubmatch(template, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}
