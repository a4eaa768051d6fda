package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

// LabelRepository persists TextLabels submissions.
type LabelRepository interface {
	Create(ctx context.Context, l *models.TextLabelsModel) error
	FindByMessage(ctx context.Context, messageID uuid.UUID) ([]*models.TextLabelsModel, error)
	HardDeleteByMessage(ctx context.Context, messageID uuid.UUID) error
}

// ReactionRepository persists MessageReaction submissions (ratings and
// rankings).
type ReactionRepository interface {
	Create(ctx context.Context, r *models.MessageReactionModel) error
	FindRankingsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.MessageReactionModel, error)
	CountRankingsByParent(ctx context.Context, parentID uuid.UUID) (int, error)

	// HardDeleteByTaskParent deletes ranking reactions whose task's
	// parent is the given message, per the purge cascade.
	HardDeleteByTaskParent(ctx context.Context, parentMessageID uuid.UUID) error
}
