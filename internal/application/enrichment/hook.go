package enrichment

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

// Hook is the interaction handler's EnrichmentHook collaborator: Enrich
// returns immediately, running both HF lookups on their own goroutines
// and their own derived context so they can outlive the request that
// triggered them.
type Hook struct {
	Client *HFClient
	Repo   repository.EnrichmentRepository
	Cfg    *config.TreeManagerConfig
	Log    *logger.Logger
}

func (h *Hook) Enrich(ctx context.Context, messageID uuid.UUID, text string) {
	if !h.Cfg.DebugSkipEmbeddingComputation {
		go h.fetchEmbedding(messageID, text)
	}
	if !h.Cfg.DebugSkipToxicityCalculation {
		go h.fetchToxicity(messageID, text)
	}
}

func (h *Hook) fetchEmbedding(messageID uuid.UUID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.Cfg.HFTimeout)
	defer cancel()

	vector, err := h.Client.FetchEmbedding(ctx, text)
	if err != nil {
		h.Log.Error("could not fetch embedding for text reply", "message_id", messageID.String(), "error", err)
		return
	}

	vec := make(models.JSONBMap, len(vector))
	for i, v := range vector {
		vec[strconv.Itoa(i)] = v
	}
	if err := h.Repo.UpsertEmbedding(ctx, &models.MessageEmbeddingModel{MessageID: messageID, Vector: vec}); err != nil {
		h.Log.Error("could not store embedding for text reply", "message_id", messageID.String(), "error", err)
	}
}

func (h *Hook) fetchToxicity(messageID uuid.UUID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.Cfg.HFTimeout)
	defer cancel()

	label, score, err := h.Client.FetchToxicity(ctx, text)
	if err != nil {
		h.Log.Error("could not compute toxicity for text reply", "message_id", messageID.String(), "error", err)
		return
	}

	if err := h.Repo.UpsertToxicity(ctx, &models.MessageToxicityModel{MessageID: messageID, Label: label, Score: score}); err != nil {
		h.Log.Error("could not store toxicity for text reply", "message_id", messageID.String(), "error", err)
	}
}
