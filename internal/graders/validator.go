// Package graders grades completed run results by asking a model to judge
// them against a fixed rubric.
package graders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/store"
	"github.com/spboyer/promptbench/internal/validation"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultValidatorModel = "anthropic/claude-haiku-4-5-20251001"
	DefaultTemperature    = 0.3
	DefaultMaxTokens      = 1024
)

// ValidateRequest selects the results of a run to grade. A nil TargetIndices
// grades every result.
type ValidateRequest struct {
	RunID          string         `json:"runId"`
	TargetIndices  []int          `json:"targetIndices,omitempty"`
	ValidatorModel string         `json:"validatorModel,omitempty"`
	Schema         map[string]any `json:"schema,omitempty"`
}

// Validate reports the first malformed field of r.
func (r *ValidateRequest) Validate() error {
	if r.RunID == "" {
		return models.InvalidRequest("runId", "is required")
	}
	if r.Schema != nil {
		if _, err := validation.CompileSchema(r.Schema); err != nil {
			return models.InvalidRequest("schema", "%v", err)
		}
	}
	return nil
}

type ValidateResponse struct {
	Results []models.Verdict `json:"results"`
}

// Validator grades results and stores the verdicts on the run.
type Validator struct {
	store   store.RunStore
	invoker execution.ModelInvoker
	logger  *slog.Logger

	defaultModel string
}

type ValidatorOption func(*Validator)

// WithDefaultModel sets the grading model used when a request names none.
func WithDefaultModel(model string) ValidatorOption {
	return func(v *Validator) {
		if model != "" {
			v.defaultModel = model
		}
	}
}

func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

func NewValidator(runStore store.RunStore, invoker execution.ModelInvoker, opts ...ValidatorOption) *Validator {
	v := &Validator{
		store:        runStore,
		invoker:      invoker,
		logger:       slog.Default(),
		defaultModel: DefaultValidatorModel,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate grades every completed result among the requested indices, all
// concurrently. Indices that are out of range or not completed are skipped.
// The verdicts, in target order, replace the run's validation block. When ctx
// ends before grading finishes nothing is stored and ctx's error is returned.
func (v *Validator) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run, err := v.store.FindByID(ctx, req.RunID)
	if err != nil {
		return nil, err
	}

	model := req.ValidatorModel
	if model == "" {
		model = v.defaultModel
	}

	targets := gradable(run, req.TargetIndices)
	verdicts := make([]models.Verdict, len(targets))

	var g errgroup.Group
	for k, i := range targets {
		g.Go(func() error {
			verdict, elapsed := measureTime(func() models.Verdict {
				return v.grade(ctx, run, i, model, req.Schema)
			})
			v.logger.Debug("Graded result", "runID", run.ID, "index", i, "validator", model, "passed", verdict.Passed, "score", verdict.Score, "durationMs", elapsed.Milliseconds())
			verdicts[k] = verdict
			return nil
		})
	}
	_ = g.Wait()

	// a cancelled pass never replaces the stored validation
	if err := ctx.Err(); err != nil {
		v.logger.Warn("Validation abandoned", "runID", run.ID, "error", err)
		return nil, fmt.Errorf("validating run %s: %w", run.ID, err)
	}

	if err := v.store.UpdateFields(ctx, run.ID, models.ValidationFields(model, verdicts)); err != nil {
		return nil, fmt.Errorf("storing validation of run %s: %w", run.ID, err)
	}

	v.logger.Info("Run validated", "runID", run.ID, "validator", model, "graded", len(verdicts))
	return &ValidateResponse{Results: verdicts}, nil
}

func (v *Validator) grade(ctx context.Context, run *models.Run, i int, model string, schema map[string]any) models.Verdict {
	res := run.Results[i]

	var violations []string
	if schema != nil {
		violations = validation.CheckOutput(schema, res.Output)
	}

	resp, err := v.invoker.Invoke(ctx, &execution.Request{
		Model:          model,
		Messages:       []execution.Message{{Role: execution.RoleUser, Content: buildPrompt(run, i, schema, violations)}},
		Temperature:    DefaultTemperature,
		MaxTokens:      DefaultMaxTokens,
		ResponseFormat: execution.JSONObjectFormat(),
	})
	if err == nil && resp == nil {
		err = &execution.InvocationError{Model: model, Message: "backend returned no response"}
	}
	if err != nil {
		v.logger.Warn("Validator invocation failed", "runID", run.ID, "index", i, "validator", model, "error", err)
		return models.Verdict{
			TargetModel: res.Model,
			Feedback:    "Validation error: " + execution.ErrorMessage(err),
			Suggestions: []string{},
		}
	}

	return parseVerdict(res.Model, resp.Output)
}

// gradable returns the indices of completed results among indices, or among
// all results when indices is nil.
func gradable(run *models.Run, indices []int) []int {
	if indices == nil {
		indices = make([]int, len(run.Results))
		for i := range indices {
			indices[i] = i
		}
	}

	var targets []int
	for _, i := range indices {
		if i < 0 || i >= len(run.Results) {
			continue
		}
		if run.Results[i].Status != models.StatusCompleted {
			continue
		}
		targets = append(targets, i)
	}
	return targets
}

func measureTime[T any](fn func() T) (T, time.Duration) {
	start := time.Now()
	result := fn()
	return result, time.Since(start)
}
