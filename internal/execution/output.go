package execution

import (
	"encoding/json"
	"strings"
)

// ParseJSONOutput decodes a model's text output as JSON. A surrounding
// markdown code fence is tolerated.
func ParseJSONOutput(output string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(stripCodeFence(output)), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}

	body := strings.TrimSuffix(s[3:], "```")
	// drop the info string, e.g. ```json
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return strings.TrimSpace(body)
}
