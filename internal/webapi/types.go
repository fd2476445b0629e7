package webapi

import (
	"context"

	"github.com/spboyer/promptbench/internal/broadcast"
	"github.com/spboyer/promptbench/internal/graders"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/orchestration"
	"github.com/spboyer/promptbench/internal/store"
)

// RunService creates, reads and streams runs.
type RunService interface {
	CreateRun(ctx context.Context, req orchestration.CreateRunRequest) (*models.Run, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filter store.ListFilter) ([]*models.Run, error)
	Subscribe(ctx context.Context, runID string) (*broadcast.Subscription, error)
	Unsubscribe(sub *broadcast.Subscription)
}

// RunValidator grades the results of a stored run.
type RunValidator interface {
	Validate(ctx context.Context, req graders.ValidateRequest) (*graders.ValidateResponse, error)
}

// ModelCatalog lists the models offered by the configured backend.
type ModelCatalog interface {
	ListModels(ctx context.Context, forceRefresh bool) ([]models.ModelInfo, error)
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
