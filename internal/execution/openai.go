package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spboyer/promptbench/internal/models"
)

// DefaultOpenRouterBaseURL is the OpenAI-compatible endpoint used when no
// base URL is configured.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// webSearchSuffix enables OpenRouter's web search for a model.
const webSearchSuffix = ":online"

// OpenAIInvokerOptions configures an OpenAIInvoker.
type OpenAIInvokerOptions struct {
	BaseURL string
	APIKey  string

	// Referer and Title are sent as the HTTP-Referer and X-Title attribution
	// headers when set.
	Referer string
	Title   string

	// Timeout bounds a single request. Zero means no client-side timeout.
	Timeout time.Duration

	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// OpenAIInvoker calls any OpenAI-compatible chat completions API, such as
// OpenRouter.
type OpenAIInvoker struct {
	client *openai.Client
}

// NewOpenAIInvoker creates an invoker for the configured endpoint.
func NewOpenAIInvoker(opts OpenAIInvokerOptions) *OpenAIInvoker {
	config := openai.DefaultConfig(opts.APIKey)
	config.BaseURL = DefaultOpenRouterBaseURL
	if opts.BaseURL != "" {
		config.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	headers := http.Header{}
	if opts.Referer != "" {
		headers.Set("HTTP-Referer", opts.Referer)
	}
	if opts.Title != "" {
		headers.Set("X-Title", opts.Title)
	}

	config.HTTPClient = &http.Client{
		Timeout:   opts.Timeout,
		Transport: &providerErrorTransport{
			base: &headerTransport{base: base, headers: headers},
		},
	}

	return &OpenAIInvoker{
		client: openai.NewClientWithConfig(config),
	}
}

// Invoke implements ModelInvoker.
func (o *OpenAIInvoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to OpenAIInvoker.Invoke")
	}

	chatReq, err := toChatCompletionRequest(req)
	if err != nil {
		return nil, &InvocationError{Model: req.Model, Message: err.Error(), Err: err}
	}

	slog.Debug("Invoking model", "model", chatReq.Model, "messages", len(chatReq.Messages), "maxTokens", chatReq.MaxTokens)

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	latency := time.Since(start)

	if err != nil {
		return nil, toInvocationError(req.Model, err)
	}

	output := ""
	if len(resp.Choices) > 0 {
		output = resp.Choices[0].Message.Content
	}

	slog.Debug("Model responded",
		"model", chatReq.Model,
		"latencyMs", latency.Milliseconds(),
		"tokensIn", resp.Usage.PromptTokens,
		"tokensOut", resp.Usage.CompletionTokens)

	return &Response{
		Output:    output,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// ListModels implements ModelLister.
func (o *OpenAIInvoker) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, toInvocationError("models", err)
	}

	infos := make([]models.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		infos = append(infos, models.ModelInfo{
			ID:      m.ID,
			OwnedBy: m.OwnedBy,
			Created: m.CreatedAt,
		})
	}
	return infos, nil
}

func toChatCompletionRequest(req *Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if req.WebSearch && !strings.HasSuffix(model, webSearchSuffix) {
		model += webSearchSuffix
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	temperature := float32(req.Temperature)
	if temperature == 0 {
		// the field is omitempty; a literal zero would fall back to the
		// server default
		temperature = math.SmallestNonzeroFloat32
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case ResponseFormatJSONObject:
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		case ResponseFormatJSONSchema:
			raw, err := json.Marshal(rf.Schema)
			if err != nil {
				return chatReq, fmt.Errorf("encoding response schema: %w", err)
			}
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   rf.Name,
					Schema: json.RawMessage(raw),
					Strict: rf.Strict,
				},
			}
		default:
			return chatReq, fmt.Errorf("unsupported response format %q", rf.Type)
		}
	}

	return chatReq, nil
}

func toInvocationError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &InvocationError{
			Model:      model,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.Error()
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &InvocationError{
			Model:      model,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
			Err:        err,
		}
	}

	return &InvocationError{Model: model, Message: err.Error(), Err: err}
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header[k] = v
	}
	return t.base.RoundTrip(clone)
}

// providerErrorTransport rewrites a 2xx reply whose body carries a top-level
// "error" to an error status, so the client surfaces it as an
// APIError. OpenRouter reports routing and upstream failures this way.
type providerErrorTransport struct {
	base http.RoundTripper
}

func (t *providerErrorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Error) == 0 || string(envelope.Error) == "null" {
		return resp, nil
	}

	var detail struct {
		Code any `json:"code"`
	}
	_ = json.Unmarshal(envelope.Error, &detail)

	resp.StatusCode = providerErrorStatus(detail.Code)
	resp.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return resp, nil
}

// providerErrorStatus maps the error object's code to an HTTP status,
// falling back to 502 when the code is not one.
func providerErrorStatus(code any) int {
	var n int
	switch v := code.(type) {
	case float64:
		n = int(v)
	case string:
		n, _ = strconv.Atoi(v)
	}
	if n >= 400 && n <= 599 {
		return n
	}
	return http.StatusBadGateway
}
