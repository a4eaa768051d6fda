package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

// TreeStateRepository persists the one-per-root MessageTreeState row.
type TreeStateRepository interface {
	Create(ctx context.Context, t *models.MessageTreeStateModel) error
	Update(ctx context.Context, t *models.MessageTreeStateModel) error
	FindByTreeID(ctx context.Context, treeID uuid.UUID) (*models.MessageTreeStateModel, error)
	Exists(ctx context.Context, treeID uuid.UUID) (bool, error)

	// FindActiveByState returns active trees currently in any of the
	// given states, used by maintenance's bulk condition-check sweep and
	// backlog activation.
	FindActiveByState(ctx context.Context, states []string) ([]*models.MessageTreeStateModel, error)

	// FindBacklogByLang returns up to limit trees parked in
	// BACKLOG_RANKING for the given language.
	FindBacklogByLang(ctx context.Context, lang string, limit int) ([]*models.MessageTreeStateModel, error)

	// CountActiveExcluding counts active trees for a language whose state
	// is not in the excluded set (used by the PROMPT availability count,
	// which excludes RANKING).
	CountActiveExcluding(ctx context.Context, lang string, excludeStates []string) (int, error)

	// Delete removes the tree state row, used when a whole tree is purged
	// because its root author asked to be forgotten.
	Delete(ctx context.Context, treeID uuid.UUID) error

	// FindByState returns every tree in any of the given states regardless
	// of active, used by export to find READY_FOR_EXPORT trees - a
	// terminal state that always carries active=false.
	FindByState(ctx context.Context, states []string) ([]*models.MessageTreeStateModel, error)
}
