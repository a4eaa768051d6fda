// Package interaction ingests worker submissions (text replies, ratings,
// rankings, labels), persists them, and nudges the state machine at the
// same points the original tree manager does.
package interaction

import (
	"context"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/application/statemachine"
	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/domain/apperr"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

// EnrichmentHook is the post-write, fire-and-forget embedding/toxicity
// lookup. Handle launches it after the text reply that
// created messageID commits; it never blocks the interaction response.
type EnrichmentHook interface {
	Enrich(ctx context.Context, messageID uuid.UUID, text string)
}

// Handler ingests worker submissions.
type Handler struct {
	Messages     repository.MessageRepository
	Trees        repository.TreeStateRepository
	Tasks        repository.TaskRepository
	Labels       repository.LabelRepository
	Reactions    repository.ReactionRepository
	StateMachine *statemachine.StateMachine
	Enrichment   EnrichmentHook
	Cfg          *config.TreeManagerConfig
	Log          *logger.Logger
}

// Handle dispatches on the submission's concrete Go type, exactly as the
// original's match over interaction type.
func (h *Handler) Handle(ctx context.Context, sub treemodel.Submission) error {
	switch s := sub.(type) {
	case treemodel.TextReplyToMessage:
		return h.handleTextReply(ctx, s)
	case treemodel.MessageRating:
		return h.handleRating(ctx, s)
	case treemodel.MessageRanking:
		return h.handleRanking(ctx, s)
	case treemodel.TextLabelsSubmission:
		return h.handleLabels(ctx, s)
	default:
		return apperr.ErrInvalidResponseType
	}
}

func (h *Handler) markTaskDone(ctx context.Context, taskID string) error {
	if taskID == "" {
		return nil
	}
	id, err := uuid.Parse(taskID)
	if err != nil {
		return err
	}
	return h.Tasks.MarkDone(ctx, id)
}

func (h *Handler) handleTextReply(ctx context.Context, s treemodel.TextReplyToMessage) error {
	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return err
	}

	lang := s.Lang
	if lang == "" {
		lang = "en"
	}

	msg := &models.MessageModel{
		Text:   s.Text,
		Lang:   lang,
		UserID: userID,
	}

	var parent *models.MessageModel
	if s.ParentID != nil {
		parentID, err := uuid.Parse(*s.ParentID)
		if err != nil {
			return err
		}
		parent, err = h.Messages.FindByID(ctx, parentID)
		if err != nil {
			return err
		}
		msg.ParentID = &parent.ID
		msg.MessageTreeID = parent.MessageTreeID
		msg.Depth = parent.Depth + 1
		msg.Role = string(treemodel.Role(parent.Role).Other())
	} else {
		msg.Role = string(treemodel.RolePrompter)
	}

	if s.TaskID != "" {
		taskID, err := uuid.Parse(s.TaskID)
		if err != nil {
			return err
		}
		msg.TaskID = &taskID
	}

	if err := h.Messages.Create(ctx, msg); err != nil {
		return err
	}

	if err := h.markTaskDone(ctx, s.TaskID); err != nil {
		return err
	}

	if parent != nil {
		if err := h.Messages.IncrementChildrenCount(ctx, parent.ID, 1); err != nil {
			return err
		}
	} else {
		h.Log.Info("inserting new tree state for initial prompt", "message_id", msg.ID.String())
		state := &models.MessageTreeStateModel{
			MessageTreeID:    msg.ID,
			State:            string(treemodel.StateInitialPromptReview),
			Active:           true,
			GoalTreeSize:     h.Cfg.GoalTreeSize,
			MaxDepth:         h.Cfg.MaxTreeDepth,
			MaxChildrenCount: h.Cfg.MaxChildrenCount,
			Lang:             lang,
		}
		if err := h.Trees.Create(ctx, state); err != nil {
			return err
		}
	}

	if h.Enrichment != nil {
		h.Enrichment.Enrich(context.Background(), msg.ID, msg.Text)
	}

	return nil
}

func (h *Handler) handleRating(ctx context.Context, s treemodel.MessageRating) error {
	messageID, err := uuid.Parse(s.MessageID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return err
	}
	taskID, err := uuid.Parse(s.TaskID)
	if err != nil {
		return err
	}

	rating := s.Rating
	reaction := &models.MessageReactionModel{
		TaskID:         taskID,
		MessageID:      messageID,
		UserID:         userID,
		RatedMessageID: &messageID,
		Rating:         &rating,
	}
	if err := h.Reactions.Create(ctx, reaction); err != nil {
		return err
	}
	return h.markTaskDone(ctx, s.TaskID)
}

func (h *Handler) handleRanking(ctx context.Context, s treemodel.MessageRanking) error {
	messageID, err := uuid.Parse(s.MessageID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return err
	}
	taskID, err := uuid.Parse(s.TaskID)
	if err != nil {
		return err
	}

	reaction := &models.MessageReactionModel{
		TaskID:           taskID,
		MessageID:        messageID,
		UserID:           userID,
		RankedMessageIDs: models.StringArray(s.RankedMessageIDs),
	}
	if err := h.Reactions.Create(ctx, reaction); err != nil {
		return err
	}
	if err := h.markTaskDone(ctx, s.TaskID); err != nil {
		return err
	}

	parent, err := h.Messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	return h.StateMachine.CheckScoringState(ctx, parent.MessageTreeID)
}

func (h *Handler) handleLabels(ctx context.Context, s treemodel.TextLabelsSubmission) error {
	messageID, err := uuid.Parse(s.MessageID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(s.UserID)
	if err != nil {
		return err
	}

	labelsModel := make(models.JSONBMap, len(s.Labels))
	for k, v := range s.Labels {
		labelsModel[k] = v
	}

	label := &models.TextLabelsModel{
		MessageID: messageID,
		UserID:    userID,
		Labels:    labelsModel,
	}
	var taskID uuid.UUID
	if s.TaskID != "" {
		taskID, err = uuid.Parse(s.TaskID)
		if err != nil {
			return err
		}
		label.TaskID = &taskID
	}

	if err := h.Labels.Create(ctx, label); err != nil {
		return err
	}
	if err := h.Messages.IncrementReviewCount(ctx, messageID, 1); err != nil {
		return err
	}

	satisfiedTask := s.TaskID != ""
	if !satisfiedTask {
		return nil
	}
	if err := h.markTaskDone(ctx, s.TaskID); err != nil {
		return err
	}

	msg, err := h.Messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	if msg.IsRoot() {
		if err := h.StateMachine.EvaluateRootReview(ctx, msg.ID); err != nil {
			return err
		}
	} else if err := h.StateMachine.EvaluateReplyReview(ctx, msg.ID); err != nil {
		return err
	}

	return h.StateMachine.CheckRankingState(ctx, msg.MessageTreeID)
}
