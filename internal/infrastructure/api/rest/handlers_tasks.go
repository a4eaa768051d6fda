package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/application/dispatcher"
	"github.com/oasst/treemanager/internal/application/interaction"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

var errUnknownInteractionType = errors.New("unknown interaction type")

// TaskHandlers serves the worker-facing task dispatch and interaction
// endpoints.
type TaskHandlers struct {
	Dispatcher *dispatcher.Dispatcher
	Handler    *interaction.Handler
}

func NewTaskHandlers(d *dispatcher.Dispatcher, handler *interaction.Handler) *TaskHandlers {
	return &TaskHandlers{Dispatcher: d, Handler: handler}
}

type dispatchRequest struct {
	TaskKind string `json:"task_kind"`
	Lang     string `json:"lang" binding:"required"`
}

type dispatchResponse struct {
	TaskID          uuid.UUID              `json:"task_id"`
	PayloadType     treemodel.PayloadType  `json:"type"`
	Payload         map[string]interface{} `json:"payload"`
	ParentMessageID *uuid.UUID             `json:"parent_message_id,omitempty"`
	MessageTreeID   *uuid.UUID             `json:"message_tree_id,omitempty"`
	TargetMessageID *uuid.UUID             `json:"target_message_id,omitempty"`
}

// HandleNextTask serves POST /api/v1/tasks: dispatches a new task for the
// caller, persists it, and returns the descriptor the worker needs.
func (h *TaskHandlers) HandleNextTask(c *gin.Context) {
	var req dispatchRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	userID, ok := GetUserIDAsUUID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	kind := treemodel.TaskKindRandom
	if req.TaskKind != "" {
		kind = treemodel.TaskKind(req.TaskKind)
	}

	descriptor, err := h.Dispatcher.NextTask(c.Request.Context(), kind, req.Lang, userID)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	task := &models.TaskModel{
		ParentMessageID: descriptor.ParentMessageID,
		MessageTreeID:   descriptor.MessageTreeID,
		PayloadType:     string(descriptor.PayloadType),
		Payload:         models.JSONBMap(descriptor.Payload),
		UserID:          userID,
	}
	if descriptor.TargetMessageID != nil {
		task.Payload["target_message_id"] = descriptor.TargetMessageID.String()
	}

	if err := h.Handler.Tasks.Create(c.Request.Context(), task); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, dispatchResponse{
		TaskID:          task.ID,
		PayloadType:     descriptor.PayloadType,
		Payload:         task.Payload,
		ParentMessageID: descriptor.ParentMessageID,
		MessageTreeID:   descriptor.MessageTreeID,
		TargetMessageID: descriptor.TargetMessageID,
	})
}

type interactionRequest struct {
	Type             string             `json:"type" binding:"required"`
	ParentID         *string            `json:"parent_id"`
	Text             string             `json:"text"`
	Lang             string             `json:"lang"`
	MessageID        string             `json:"message_id"`
	Rating           int                `json:"rating"`
	RankedMessageIDs []string           `json:"ranked_message_ids"`
	Labels           map[string]float64 `json:"labels"`
}

// HandleInteraction serves POST /api/v1/tasks/:task_id/interaction: a
// worker's response to a dispatched task.
func (h *TaskHandlers) HandleInteraction(c *gin.Context) {
	taskID, ok := getParam(c, "task_id")
	if !ok {
		return
	}

	var req interactionRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	userID, ok := GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	sub, err := buildSubmission(taskID, userID, req)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Handler.Handle(c.Request.Context(), sub); err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func buildSubmission(taskID, userID string, req interactionRequest) (treemodel.Submission, error) {
	switch req.Type {
	case "text_reply_to_message":
		return treemodel.TextReplyToMessage{
			TaskID:   taskID,
			ParentID: req.ParentID,
			UserID:   userID,
			Text:     req.Text,
			Lang:     req.Lang,
		}, nil
	case "message_rating":
		return treemodel.MessageRating{
			TaskID:    taskID,
			MessageID: req.MessageID,
			UserID:    userID,
			Rating:    req.Rating,
		}, nil
	case "message_ranking":
		return treemodel.MessageRanking{
			TaskID:           taskID,
			MessageID:        req.MessageID,
			UserID:           userID,
			RankedMessageIDs: req.RankedMessageIDs,
		}, nil
	case "text_labels":
		return treemodel.TextLabelsSubmission{
			TaskID:    taskID,
			MessageID: req.MessageID,
			UserID:    userID,
			Labels:    req.Labels,
		}, nil
	default:
		return nil, errUnknownInteractionType
	}
}
