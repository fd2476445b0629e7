package template

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Render substitutes every {{ name }} reference in tmpl with the textual form
// of vars[name]. Whitespace inside the braces is ignored. References to names
// that are not in vars are left as written.
//
// Variables are applied one at a time in sorted name order, so a substituted
// value that itself looks like a reference to a later variable is expanded
// too. Names are matched exactly: {{name}} never matches {{nameLong}}.
func Render(tmpl string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	out := tmpl
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		re := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(name) + `\s*\}\}`)
		// literal: a "$1" inside a value is not a group reference
		out = re.ReplaceAllLiteralString(out, Stringify(vars[name]))
	}
	return out
}

// Stringify returns the text form of a template variable value. Scalars use
// their natural formatting, objects and arrays are written as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
