package resolver

import (
	"fmt"
	"regexp"
)

var placeholderRE = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// SubstituteVariables replaces every {{name}} with the string form of
// vars[name]. Placeholders without a variable stay as literal text and
// substituted values are not rescanned.
func SubstituteVariables(text string, vars map[string]any) string {
	if len(vars) == 0 {
		return text
	}
	return placeholderRE.ReplaceAllStringFunc(text, func(m string) string {
		name := m[2 : len(m)-2]
		v, ok := vars[name]
		if !ok {
			return m
		}
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}
