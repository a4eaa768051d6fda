package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/oasst/treemanager/internal/domain/apperr"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

var _ repository.TaskRepository = (*TaskRepositoryImpl)(nil)

type TaskRepositoryImpl struct {
	db bun.IDB
}

func NewTaskRepository(db bun.IDB) *TaskRepositoryImpl {
	return &TaskRepositoryImpl{db: db}
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, t *models.TaskModel) error {
	_, err := r.db.NewInsert().Model(t).Exec(ctx)
	return err
}

func (r *TaskRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.TaskModel, error) {
	t := new(models.TaskModel)
	err := r.db.NewSelect().Model(t).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *TaskRepositoryImpl) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*models.TaskModel)(nil)).
		Set("done = true").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *TaskRepositoryImpl) OpenReplyTaskParents(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().
		Model((*models.TaskModel)(nil)).
		Column("parent_message_id").
		Where("payload_type IN (?)", bun.In([]string{"prompter_reply", "assistant_reply"})).
		Where("done = false").
		Where("created_at >= ?", since).
		Where("parent_message_id IS NOT NULL").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *TaskRepositoryImpl) HardDeleteByMessage(ctx context.Context, messageID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*models.TaskModel)(nil)).
		Where("parent_message_id = ?", messageID).
		WhereOr("id = (SELECT task_id FROM tree_messages WHERE id = ?)", messageID).
		Exec(ctx)
	return err
}
