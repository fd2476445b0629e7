package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/spboyer/promptbench/internal/tokens"
	"github.com/spboyer/promptbench/internal/utils"
)

// CopilotInvoker runs each invocation in a fresh GitHub Copilot session.
// Copilot has no sampling controls, so Temperature and MaxTokens are
// ignored, and response formats are expressed as prompt instructions.
type CopilotInvoker struct {
	client copilotClient

	startOnce sync.Once
	startErr  error
}

type CopilotInvokerOptions struct {
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient
}

// NewCopilotInvoker creates a CopilotInvoker. The Copilot client is started
// lazily on the first invocation.
func NewCopilotInvoker(options *CopilotInvokerOptions) *CopilotInvoker {
	copilotOptions := &copilot.ClientOptions{
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	var client copilotClient
	if options == nil || options.NewCopilotClient == nil {
		client = newCopilotClient(copilotOptions)
	} else {
		client = options.NewCopilotClient(copilotOptions)
	}

	return &CopilotInvoker{client: client}
}

// Invoke implements ModelInvoker.
func (c *CopilotInvoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to CopilotInvoker.Invoke")
	}

	c.startOnce.Do(func() {
		// copilot's own autostart misbehaves when triggered from several
		// goroutines at once
		c.startErr = c.client.Start(ctx)
	})
	if c.startErr != nil {
		return nil, &InvocationError{Model: req.Model, Message: "copilot failed to start: " + c.startErr.Error(), Err: c.startErr}
	}

	prompt, err := copilotPrompt(req)
	if err != nil {
		return nil, &InvocationError{Model: req.Model, Message: err.Error(), Err: err}
	}

	if req.WebSearch {
		slog.Debug("Web search is not supported by the copilot backend, ignoring", "model", req.Model)
	}

	start := time.Now()

	session, err := c.client.CreateSession(ctx, &copilot.SessionConfig{
		Model:               req.Model,
		OnPermissionRequest: allowAllTools,
	})
	if err != nil {
		return nil, &InvocationError{Model: req.Model, Message: "failed to create session: " + err.Error(), Err: err}
	}

	collector := &sessionEventsCollector{}

	unsubscribe := session.On(collector.On)
	defer unsubscribe()

	unsubscribe = session.On(utils.SessionLogger(slog.Default(), req.Model))
	defer unsubscribe()

	final, err := session.SendAndWait(ctx, copilot.MessageOptions{
		Prompt: prompt,
	})
	latency := time.Since(start)

	if err != nil {
		return nil, &InvocationError{Model: req.Model, Message: err.Error(), Err: err}
	}
	if msg := collector.ErrorMessage(); msg != "" {
		return nil, &InvocationError{Model: req.Model, Message: msg}
	}

	output := collector.Output()
	if final != nil && final.Data.Content != nil && *final.Data.Content != "" {
		output = *final.Data.Content
	}

	slog.Debug("Copilot session finished", "model", req.Model, "sessionID", session.SessionID(), "latencyMs", latency.Milliseconds())

	// the SDK does not report usage
	return &Response{
		Output:    output,
		TokensIn:  tokens.Estimate(prompt),
		TokensOut: tokens.Estimate(output),
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// Shutdown stops the Copilot client.
func (c *CopilotInvoker) Shutdown(ctx context.Context) error {
	if err := c.client.Stop(); err != nil {
		slog.Info("failed to stop client", "error", err)
	}
	return nil
}

// copilotPrompt flattens the chat messages into a single prompt.
func copilotPrompt(req *Request) (string, error) {
	var sb strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(m.Content)
	}

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case ResponseFormatJSONObject:
			sb.WriteString("\n\nRespond with a single JSON object and nothing else.")
		case ResponseFormatJSONSchema:
			raw, err := json.MarshalIndent(rf.Schema, "", "  ")
			if err != nil {
				return "", fmt.Errorf("encoding response schema: %w", err)
			}
			sb.WriteString("\n\nRespond with a single JSON value that conforms to this JSON Schema and nothing else:\n")
			sb.Write(raw)
		default:
			return "", fmt.Errorf("unsupported response format %q", rf.Type)
		}
	}

	return sb.String(), nil
}

func allowAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	// value for 'Kind' came from the permissions_test.go in the Copilot SDK.
	return copilot.PermissionRequestResult{Kind: "approved"}, nil
}
