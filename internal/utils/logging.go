package utils

import (
	"context"
	"log/slog"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/mattn/go-runewidth"
)

// maxLoggedText bounds the width of message text copied into log records.
const maxLoggedText = 200

// SessionLogger returns a Copilot session event handler that writes each
// event to logger at debug level, tagged with model. Streaming deltas are
// skipped since the final message repeats them.
func SessionLogger(logger *slog.Logger, model string) func(copilot.SessionEvent) {
	if logger == nil {
		logger = slog.Default()
	}

	return func(event copilot.SessionEvent) {
		if event.Data.DeltaContent != nil {
			return
		}
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			return
		}

		attrs := []any{
			"model", model,
			"type", event.Type,
		}
		attrs = addText(attrs, "content", event.Data.Content)
		attrs = addIf(attrs, "toolName", event.Data.ToolName)
		attrs = addIf(attrs, "toolCallID", event.Data.ToolCallID)
		attrs = addText(attrs, "reasoningText", event.Data.ReasoningText)

		logger.Debug("Copilot session event", attrs...)
	}
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v == nil {
		return attrs
	}
	return append(attrs, name, *v)
}

func addText(attrs []any, name string, v *string) []any {
	if v == nil {
		return attrs
	}
	return append(attrs, name, runewidth.Truncate(*v, maxLoggedText, "…"))
}
