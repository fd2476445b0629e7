package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/spboyer/promptbench/internal/models"
)

//go:generate go tool mockgen -source=invoker.go -destination=invoker_mock.go -package=execution

// ModelInvoker sends one chat completion request to a model backend.
// Implementations must be safe for concurrent use and must not retry.
type ModelInvoker interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
}

// Role is the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResponseFormatType selects how a backend constrains its output.
type ResponseFormatType string

const (
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat constrains the shape of a model's output.
type ResponseFormat struct {
	Type   ResponseFormatType
	Name   string
	Schema map[string]any
	Strict bool
}

// JSONSchemaFormat builds a strict schema-constrained response format.
func JSONSchemaFormat(schema map[string]any) *ResponseFormat {
	return &ResponseFormat{
		Type:   ResponseFormatJSONSchema,
		Name:   "output",
		Schema: schema,
		Strict: true,
	}
}

// JSONObjectFormat asks for any JSON object.
func JSONObjectFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONObject}
}

// Request is a single model invocation.
type Request struct {
	Model          string
	Messages       []Message
	Temperature    float64
	MaxTokens      int
	ResponseFormat *ResponseFormat
	WebSearch      bool
}

// Response is the outcome of a successful invocation.
type Response struct {
	Output    string
	TokensIn  int
	TokensOut int
	Cost      *float64
	LatencyMs int64
}

// BuildMessages returns the chat messages for a rendered prompt. The system
// message is omitted when the system prompt is empty.
func BuildMessages(system, user string) []Message {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	return append(msgs, Message{Role: RoleUser, Content: user})
}

// InvocationError is a failed call to a model backend.
type InvocationError struct {
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *InvocationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("invoking %s: %s (status %d)", e.Model, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("invoking %s: %s", e.Model, e.Message)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// ErrorMessage returns the text recorded on a failed result: the backend's
// message for an InvocationError, the error text otherwise.
func ErrorMessage(err error) string {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.Message != "" {
		return invErr.Message
	}
	return err.Error()
}
