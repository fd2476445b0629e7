package execution

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spboyer/promptbench/internal/models"
)

// MockResponse scripts the reply of MockInvoker for one model.
type MockResponse struct {
	Output    string
	Error     string
	Delay     time.Duration
	TokensIn  int
	TokensOut int
	Cost      *float64
	Panic     bool
}

// MockInvoker is an offline backend for tests and demos. Models without a
// scripted response echo the user prompt.
type MockInvoker struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	calls     []Request
}

// NewMockInvoker creates a MockInvoker with no scripted responses.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		responses: map[string]MockResponse{},
	}
}

// Script sets the response returned for model.
func (m *MockInvoker) Script(model string, resp MockResponse) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[model] = resp
	return m
}

// Invoke implements ModelInvoker.
func (m *MockInvoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to MockInvoker.Invoke")
	}

	m.mu.Lock()
	m.calls = append(m.calls, *req)
	resp, scripted := m.responses[req.Model]
	m.mu.Unlock()

	start := time.Now()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return nil, &InvocationError{Model: req.Model, Message: ctx.Err().Error(), Err: ctx.Err()}
		}
	}

	if resp.Panic {
		panic("mock invoker panic for " + req.Model)
	}
	if resp.Error != "" {
		return nil, &InvocationError{Model: req.Model, Message: resp.Error}
	}

	output := resp.Output
	if !scripted {
		output = defaultMockOutput(req)
	}

	return &Response{
		Output:    output,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		Cost:      resp.Cost,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Calls returns a copy of every request received so far.
func (m *MockInvoker) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.calls)
}

// ListModels implements ModelLister with the scripted model names.
func (m *MockInvoker) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := []models.ModelInfo{}
	for _, name := range slices.Sorted(maps.Keys(m.responses)) {
		infos = append(infos, models.ModelInfo{ID: name, OwnedBy: "mock"})
	}
	return infos, nil
}

func defaultMockOutput(req *Request) string {
	if rf := req.ResponseFormat; rf != nil {
		if rf.Type == ResponseFormatJSONObject {
			return `{"passed": true, "score": 10, "feedback": "Mock verdict", "suggestions": []}`
		}
		return "{}"
	}

	prompt := ""
	if n := len(req.Messages); n > 0 {
		prompt = req.Messages[n-1].Content
	}
	return fmt.Sprintf("Mock response for: %s", prompt)
}
