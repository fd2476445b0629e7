// Package store persists Runs and applies index-addressed partial updates
// to them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/spboyer/promptbench/internal/models"
)

// ErrRunNotFound is returned when a run ID does not match any stored run.
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit caps List when the filter leaves Limit unset.
const DefaultListLimit = 50

// RunStore is the persistence contract for runs. UpdateFields must apply
// only the given paths so that concurrent writers addressing different
// result indices never clobber each other.
type RunStore interface {
	Insert(ctx context.Context, run *models.Run) error
	FindByID(ctx context.Context, id string) (*models.Run, error)
	UpdateFields(ctx context.Context, id string, fields models.Fields) error
	// List returns runs newest first.
	List(ctx context.Context, filter ListFilter) ([]*models.Run, error)
}

// ListFilter narrows a List call.
type ListFilter struct {
	PromptID string
	Limit    int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// PersistenceError reports that the backing store could not complete an
// operation. It is safe to retry.
type PersistenceError struct {
	Op    string
	RunID string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
