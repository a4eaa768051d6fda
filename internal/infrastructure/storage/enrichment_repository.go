package storage

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

var _ repository.EnrichmentRepository = (*EnrichmentRepositoryImpl)(nil)

type EnrichmentRepositoryImpl struct {
	db bun.IDB
}

func NewEnrichmentRepository(db bun.IDB) *EnrichmentRepositoryImpl {
	return &EnrichmentRepositoryImpl{db: db}
}

func (r *EnrichmentRepositoryImpl) UpsertEmbedding(ctx context.Context, e *models.MessageEmbeddingModel) error {
	_, err := r.db.NewInsert().
		Model(e).
		On("CONFLICT (message_id) DO UPDATE").
		Set("vector = EXCLUDED.vector").
		Exec(ctx)
	return err
}

func (r *EnrichmentRepositoryImpl) UpsertToxicity(ctx context.Context, t *models.MessageToxicityModel) error {
	_, err := r.db.NewInsert().
		Model(t).
		On("CONFLICT (message_id) DO UPDATE").
		Set("label = EXCLUDED.label").
		Set("score = EXCLUDED.score").
		Exec(ctx)
	return err
}
