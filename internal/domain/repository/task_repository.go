package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

// TaskRepository persists dispatched task rows.
type TaskRepository interface {
	Create(ctx context.Context, t *models.TaskModel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.TaskModel, error)
	MarkDone(ctx context.Context, id uuid.UUID) error

	// OpenReplyTaskParents returns the set of parent_message_id for open
	// (not done) reply tasks created after since - used to build
	// recent_reply_task_parents (REPLY task selection).
	OpenReplyTaskParents(ctx context.Context, since time.Time) ([]uuid.UUID, error)

	// HardDeleteByMessage deletes tasks that produced the given message
	// and tasks parented on it, per the purge cascade.
	HardDeleteByMessage(ctx context.Context, messageID uuid.UUID) error
}
