package graders

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/models"
)

const (
	minScore = 0
	maxScore = 10
)

// parseVerdict decodes the grading model's reply. Replies that are not a
// JSON object of the expected shape become a failing verdict whose feedback
// is the raw reply.
func parseVerdict(targetModel, raw string) models.Verdict {
	fallback := models.Verdict{
		TargetModel: targetModel,
		Feedback:    raw,
		Suggestions: []string{},
	}

	parsed, err := execution.ParseJSONOutput(raw)
	if err != nil {
		return fallback
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return fallback
	}

	var reply struct {
		Passed      bool     `mapstructure:"passed"`
		Score       float64  `mapstructure:"score"`
		Feedback    string   `mapstructure:"feedback"`
		Suggestions []string `mapstructure:"suggestions"`
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &reply,
	})
	if err != nil {
		return fallback
	}
	if err := dec.Decode(obj); err != nil {
		return fallback
	}

	if reply.Suggestions == nil {
		reply.Suggestions = []string{}
	}

	return models.Verdict{
		TargetModel: targetModel,
		Passed:      reply.Passed,
		Score:       min(max(reply.Score, minScore), maxScore),
		Feedback:    reply.Feedback,
		Suggestions: reply.Suggestions,
	}
}
