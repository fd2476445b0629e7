package graders

import (
	"encoding/json"
	"strings"

	"github.com/spboyer/promptbench/internal/models"
)

func buildPrompt(run *models.Run, i int, schema map[string]any, violations []string) string {
	var sb strings.Builder

	sb.WriteString("You are a prompt output validator. Evaluate the following LLM output.\n")

	if schema != nil {
		sb.WriteString("\nCheck if the output matches this JSON schema:\n```json\n")
		sb.WriteString(indentJSON(schema))
		sb.WriteString("\n```\n")

		if len(violations) > 0 {
			sb.WriteString("\nAn automated check against the schema reported:\n")
			for _, v := range violations {
				sb.WriteString("- ")
				sb.WriteString(v)
				sb.WriteString("\n")
			}
		}
	}

	sb.WriteString(`
Evaluate quality on these dimensions:
1. Completeness: does it address the full prompt?
2. Accuracy: is the information correct?
3. Format: is it well-structured?
4. Relevance: does it stay on topic?
`)

	model := "unknown"
	if i < len(run.Models) {
		model = run.Models[i].Model
	}

	sb.WriteString("\nThe output was produced by:\nModel: ")
	sb.WriteString(model)
	sb.WriteString("\nVariables: ")
	sb.WriteString(compactJSON(run.Variables))
	sb.WriteString("\n\nThe output to evaluate:\n```\n")
	sb.WriteString(run.Results[i].Output)
	sb.WriteString("\n```\n\n")
	sb.WriteString(`Return ONLY valid JSON:
{"passed": boolean, "score": number_1_to_10, "feedback": "string", "suggestions": ["string"]}`)

	return sb.String()
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
