package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

// EnrichmentRepository persists the best-effort embedding/toxicity side
// tables the enrichment hook populates.
type EnrichmentRepository interface {
	UpsertEmbedding(ctx context.Context, e *models.MessageEmbeddingModel) error
	UpsertToxicity(ctx context.Context, t *models.MessageToxicityModel) error
}
