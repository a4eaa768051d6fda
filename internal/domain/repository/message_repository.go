package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

// MessageRepository persists tree messages.
type MessageRepository interface {
	Create(ctx context.Context, m *models.MessageModel) error
	Update(ctx context.Context, m *models.MessageModel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MessageModel, error)
	FindByTreeID(ctx context.Context, treeID uuid.UUID, includeDeleted bool) ([]*models.MessageModel, error)
	FindChildren(ctx context.Context, parentID uuid.UUID, reviewedNonDeletedOnly bool) ([]*models.MessageModel, error)
	IncrementChildrenCount(ctx context.Context, parentID uuid.UUID, delta int) error
	RecountChildren(ctx context.Context, parentID uuid.UUID) error

	// IncrementReviewCount bumps review_count on a label submission
	// (TextLabels handling).
	IncrementReviewCount(ctx context.Context, id uuid.UUID, delta int) error
	SetRank(ctx context.Context, id uuid.UUID, rank *int) error
	ClearRanksForParent(ctx context.Context, parentID uuid.UUID) error

	// HardDelete removes a message row along with the side-tables owned by
	// it (embeddings, toxicity, labels, reactions). It does not cascade to
	// children; callers are responsible for ordering (maintenance.PurgeUserMessages sorts by
	// descending depth before calling this).
	HardDelete(ctx context.Context, id uuid.UUID) error

	// FindByUser returns every message authored by userID, including
	// deleted ones, for purge enumeration.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*models.MessageModel, error)
}
