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

var _ repository.TreeStateRepository = (*TreeStateRepositoryImpl)(nil)

type TreeStateRepositoryImpl struct {
	db bun.IDB
}

func NewTreeStateRepository(db bun.IDB) *TreeStateRepositoryImpl {
	return &TreeStateRepositoryImpl{db: db}
}

func (r *TreeStateRepositoryImpl) Create(ctx context.Context, t *models.MessageTreeStateModel) error {
	_, err := r.db.NewInsert().Model(t).Exec(ctx)
	return err
}

func (r *TreeStateRepositoryImpl) Update(ctx context.Context, t *models.MessageTreeStateModel) error {
	_, err := r.db.NewUpdate().Model(t).WherePK().Exec(ctx)
	return err
}

func (r *TreeStateRepositoryImpl) FindByTreeID(ctx context.Context, treeID uuid.UUID) (*models.MessageTreeStateModel, error) {
	t := new(models.MessageTreeStateModel)
	err := r.db.NewSelect().Model(t).Where("message_tree_id = ?", treeID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrTreeNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *TreeStateRepositoryImpl) Exists(ctx context.Context, treeID uuid.UUID) (bool, error) {
	return r.db.NewSelect().
		Model((*models.MessageTreeStateModel)(nil)).
		Where("message_tree_id = ?", treeID).
		Exists(ctx)
}

func (r *TreeStateRepositoryImpl) FindActiveByState(ctx context.Context, states []string) ([]*models.MessageTreeStateModel, error) {
	var ts []*models.MessageTreeStateModel
	err := r.db.NewSelect().
		Model(&ts).
		Where("active = true").
		Where("state IN (?)", bun.In(states)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (r *TreeStateRepositoryImpl) FindBacklogByLang(ctx context.Context, lang string, limit int) ([]*models.MessageTreeStateModel, error) {
	var ts []*models.MessageTreeStateModel
	err := r.db.NewSelect().
		Model(&ts).
		Where("active = true").
		Where("lang = ?", lang).
		Where("state = ?", "backlog_ranking").
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (r *TreeStateRepositoryImpl) FindByState(ctx context.Context, states []string) ([]*models.MessageTreeStateModel, error) {
	var ts []*models.MessageTreeStateModel
	err := r.db.NewSelect().
		Model(&ts).
		Where("state IN (?)", bun.In(states)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (r *TreeStateRepositoryImpl) Delete(ctx context.Context, treeID uuid.UUID) error {
	_, err := r.db.NewDelete().Model((*models.MessageTreeStateModel)(nil)).Where("message_tree_id = ?", treeID).Exec(ctx)
	return err
}

func (r *TreeStateRepositoryImpl) CountActiveExcluding(ctx context.Context, lang string, excludeStates []string) (int, error) {
	q := r.db.NewSelect().
		Model((*models.MessageTreeStateModel)(nil)).
		Where("active = true").
		Where("lang = ?", lang)
	if len(excludeStates) > 0 {
		q = q.Where("state NOT IN (?)", bun.In(excludeStates))
	}
	return q.Count(ctx)
}
