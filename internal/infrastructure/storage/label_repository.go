package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

var _ repository.LabelRepository = (*LabelRepositoryImpl)(nil)

type LabelRepositoryImpl struct {
	db bun.IDB
}

func NewLabelRepository(db bun.IDB) *LabelRepositoryImpl {
	return &LabelRepositoryImpl{db: db}
}

func (r *LabelRepositoryImpl) Create(ctx context.Context, l *models.TextLabelsModel) error {
	_, err := r.db.NewInsert().Model(l).Exec(ctx)
	return err
}

func (r *LabelRepositoryImpl) FindByMessage(ctx context.Context, messageID uuid.UUID) ([]*models.TextLabelsModel, error) {
	var ls []*models.TextLabelsModel
	err := r.db.NewSelect().Model(&ls).Where("message_id = ?", messageID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ls, nil
}

func (r *LabelRepositoryImpl) HardDeleteByMessage(ctx context.Context, messageID uuid.UUID) error {
	_, err := r.db.NewDelete().Model((*models.TextLabelsModel)(nil)).Where("message_id = ?", messageID).Exec(ctx)
	return err
}

var _ repository.ReactionRepository = (*ReactionRepositoryImpl)(nil)

type ReactionRepositoryImpl struct {
	db bun.IDB
}

func NewReactionRepository(db bun.IDB) *ReactionRepositoryImpl {
	return &ReactionRepositoryImpl{db: db}
}

func (r *ReactionRepositoryImpl) Create(ctx context.Context, react *models.MessageReactionModel) error {
	_, err := r.db.NewInsert().Model(react).Exec(ctx)
	return err
}

func (r *ReactionRepositoryImpl) FindRankingsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.MessageReactionModel, error) {
	var rs []*models.MessageReactionModel
	err := r.db.NewSelect().
		Model(&rs).
		Where("message_id = ?", parentID).
		Where("cardinality(ranked_message_ids) > 0").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (r *ReactionRepositoryImpl) CountRankingsByParent(ctx context.Context, parentID uuid.UUID) (int, error) {
	return r.db.NewSelect().
		Model((*models.MessageReactionModel)(nil)).
		Where("message_id = ?", parentID).
		Where("cardinality(ranked_message_ids) > 0").
		Count(ctx)
}

func (r *ReactionRepositoryImpl) HardDeleteByTaskParent(ctx context.Context, parentMessageID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*models.MessageReactionModel)(nil)).
		Where("task_id IN (SELECT id FROM tree_tasks WHERE parent_message_id = ?)", parentMessageID).
		Exec(ctx)
	return err
}
