package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/spboyer/promptbench/internal/broadcast"
	"github.com/spboyer/promptbench/internal/graders"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/orchestration"
	"github.com/spboyer/promptbench/internal/store"
)

// MethodRunEvent is the notification sent for every event of a subscribed run.
const MethodRunEvent = "run.event"

// RunService creates, reads and streams runs.
type RunService interface {
	CreateRun(ctx context.Context, req orchestration.CreateRunRequest) (*models.Run, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filter store.ListFilter) ([]*models.Run, error)
	Subscribe(ctx context.Context, runID string) (*broadcast.Subscription, error)
	Unsubscribe(sub *broadcast.Subscription)
}

type RunValidator interface {
	Validate(ctx context.Context, req graders.ValidateRequest) (*graders.ValidateResponse, error)
}

type ModelCatalog interface {
	ListModels(ctx context.Context, forceRefresh bool) ([]models.ModelInfo, error)
}

// HandlerContext provides shared state for method handlers.
type HandlerContext struct {
	runs      RunService
	validator RunValidator
	catalog   ModelCatalog
	logger    *slog.Logger
}

// NewHandlerContext creates a new handler context.
func NewHandlerContext(runs RunService, validator RunValidator, catalog ModelCatalog, logger *slog.Logger) *HandlerContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerContext{
		runs:      runs,
		validator: validator,
		catalog:   catalog,
		logger:    logger,
	}
}

// RegisterHandlers registers all run and model method handlers.
func RegisterHandlers(registry *MethodRegistry, hctx *HandlerContext) {
	registry.Register("run.create", hctx.handleRunCreate)
	registry.Register("run.get", hctx.handleRunGet)
	registry.Register("run.list", hctx.handleRunList)
	registry.Register("run.validate", hctx.handleRunValidate)
	registry.Register("run.subscribe", hctx.handleRunSubscribe)
	registry.Register("models.list", hctx.handleModelsList)
}

// decodeParams unmarshals params into v. Absent params leave v untouched.
func decodeParams(params json.RawMessage, v any) *Error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return ErrInvalidParams(err.Error())
	}
	return nil
}

// toRPCError maps domain errors onto JSON-RPC errors.
func (h *HandlerContext) toRPCError(err error, runID string) *Error {
	var reqErr *models.RequestValidationError

	switch {
	case errors.As(err, &reqErr):
		return ErrInvalidParams(reqErr.Error())
	case errors.Is(err, store.ErrRunNotFound):
		return ErrRunNotFound(runID)
	default:
		h.logger.Error("JSON-RPC method failed", "error", err)
		return ErrInternalError(err.Error())
	}
}

// --- run.create ---

func (h *HandlerContext) handleRunCreate(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p orchestration.CreateRunRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	run, err := h.runs.CreateRun(ctx, p)
	if err != nil {
		return nil, h.toRPCError(err, "")
	}
	return run, nil
}

// --- run.get ---

type RunGetParams struct {
	ID string `json:"id"`
}

func (h *HandlerContext) handleRunGet(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p RunGetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrInvalidParams("id is required")
	}

	run, err := h.runs.GetRun(ctx, p.ID)
	if err != nil {
		return nil, h.toRPCError(err, p.ID)
	}
	return run, nil
}

// --- run.list ---

type RunListParams struct {
	PromptID string `json:"promptId,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type RunListResult struct {
	Runs []*models.Run `json:"runs"`
}

func (h *HandlerContext) handleRunList(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p RunListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Limit < 0 {
		return nil, ErrInvalidParams("limit must not be negative")
	}

	runs, err := h.runs.ListRuns(ctx, store.ListFilter{PromptID: p.PromptID, Limit: p.Limit})
	if err != nil {
		return nil, h.toRPCError(err, "")
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return &RunListResult{Runs: runs}, nil
}

// --- run.validate ---

func (h *HandlerContext) handleRunValidate(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p graders.ValidateRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	resp, err := h.validator.Validate(ctx, p)
	if err != nil {
		return nil, h.toRPCError(err, p.RunID)
	}
	return resp, nil
}

// --- run.subscribe ---

type RunSubscribeParams struct {
	ID string `json:"id"`
}

// RunEventParams is the payload of a run.event notification.
type RunEventParams struct {
	RunID string       `json:"runId"`
	Event models.Event `json:"event"`
}

type RunSubscribeResult struct {
	RunID  string `json:"runId"`
	Events int    `json:"events"`
}

// handleRunSubscribe sends every event of the run as a run.event
// notification and replies once the run's stream has ended. Requests on the
// same connection are served after it returns.
func (h *HandlerContext) handleRunSubscribe(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p RunSubscribeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrInvalidParams("id is required")
	}

	notifier := NotifierFromContext(ctx)
	if notifier == nil {
		return nil, ErrInternalError("run.subscribe requires a streaming transport")
	}

	sub, err := h.runs.Subscribe(ctx, p.ID)
	if err != nil {
		return nil, h.toRPCError(err, p.ID)
	}
	defer h.runs.Unsubscribe(sub)

	sent := 0
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return &RunSubscribeResult{RunID: p.ID, Events: sent}, nil
			}
			if err := notifier.Notify(MethodRunEvent, &RunEventParams{RunID: p.ID, Event: evt}); err != nil {
				return nil, ErrInternalError(err.Error())
			}
			sent++
		case <-ctx.Done():
			return nil, ErrInternalError(ctx.Err().Error())
		}
	}
}

// --- models.list ---

type ModelsListParams struct {
	Refresh bool `json:"refresh,omitempty"`
}

type ModelsListResult struct {
	Models []models.ModelInfo `json:"models"`
}

func (h *HandlerContext) handleModelsList(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p ModelsListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	list, err := h.catalog.ListModels(ctx, p.Refresh)
	if err != nil {
		return nil, h.toRPCError(err, "")
	}
	return &ModelsListResult{Models: list}, nil
}
