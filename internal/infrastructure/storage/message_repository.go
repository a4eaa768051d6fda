package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/oasst/treemanager/internal/domain/apperr"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

var _ repository.MessageRepository = (*MessageRepositoryImpl)(nil)

type MessageRepositoryImpl struct {
	db bun.IDB
}

func NewMessageRepository(db bun.IDB) *MessageRepositoryImpl {
	return &MessageRepositoryImpl{db: db}
}

func (r *MessageRepositoryImpl) Create(ctx context.Context, m *models.MessageModel) error {
	_, err := r.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (r *MessageRepositoryImpl) Update(ctx context.Context, m *models.MessageModel) error {
	_, err := r.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	return err
}

func (r *MessageRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.MessageModel, error) {
	m := new(models.MessageModel)
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepositoryImpl) FindByTreeID(ctx context.Context, treeID uuid.UUID, includeDeleted bool) ([]*models.MessageModel, error) {
	var ms []*models.MessageModel
	q := r.db.NewSelect().Model(&ms).Where("message_tree_id = ?", treeID)
	if !includeDeleted {
		q = q.Where("deleted = false")
	}
	if err := q.Order("depth ASC", "created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *MessageRepositoryImpl) FindChildren(ctx context.Context, parentID uuid.UUID, reviewedNonDeletedOnly bool) ([]*models.MessageModel, error) {
	var ms []*models.MessageModel
	q := r.db.NewSelect().Model(&ms).Where("parent_id = ?", parentID)
	if reviewedNonDeletedOnly {
		q = q.Where("deleted = false").Where("review_result = true")
	}
	if err := q.Order("created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *MessageRepositoryImpl) IncrementChildrenCount(ctx context.Context, parentID uuid.UUID, delta int) error {
	_, err := r.db.NewUpdate().
		Model((*models.MessageModel)(nil)).
		Set("children_count = children_count + ?", delta).
		Where("id = ?", parentID).
		Exec(ctx)
	return err
}

func (r *MessageRepositoryImpl) IncrementReviewCount(ctx context.Context, id uuid.UUID, delta int) error {
	_, err := r.db.NewUpdate().
		Model((*models.MessageModel)(nil)).
		Set("review_count = review_count + ?", delta).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *MessageRepositoryImpl) RecountChildren(ctx context.Context, parentID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*models.MessageModel)(nil)).
		Set("children_count = (SELECT count(*) FROM tree_messages c WHERE c.parent_id = ? AND c.deleted = false AND c.review_result = true)", parentID).
		Where("id = ?", parentID).
		Exec(ctx)
	return err
}

func (r *MessageRepositoryImpl) SetRank(ctx context.Context, id uuid.UUID, rank *int) error {
	_, err := r.db.NewUpdate().
		Model((*models.MessageModel)(nil)).
		Set("rank = ?", rank).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *MessageRepositoryImpl) ClearRanksForParent(ctx context.Context, parentID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*models.MessageModel)(nil)).
		Set("rank = NULL").
		Where("parent_id = ?", parentID).
		Exec(ctx)
	return err
}

func (r *MessageRepositoryImpl) HardDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.MessageEmbeddingModel)(nil)).Where("message_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.MessageToxicityModel)(nil)).Where("message_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.TextLabelsModel)(nil)).Where("message_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.MessageReactionModel)(nil)).Where("message_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*models.MessageModel)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	})
}

func (r *MessageRepositoryImpl) FindByUser(ctx context.Context, userID uuid.UUID) ([]*models.MessageModel, error) {
	var ms []*models.MessageModel
	err := r.db.NewSelect().Model(&ms).Where("user_id = ?", userID).Order("depth DESC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ms, nil
}
