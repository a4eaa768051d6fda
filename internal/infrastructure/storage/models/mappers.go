package models

import (
	"github.com/google/uuid"
	"github.com/oasst/treemanager/pkg/treemodel"
)

func uuidPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseUUIDPtr(s *string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id := uuid.MustParse(*s)
	return &id
}

// ToMessageDomain converts a MessageModel into the pure domain type.
func ToMessageDomain(m *MessageModel) *treemodel.Message {
	if m == nil {
		return nil
	}
	return &treemodel.Message{
		ID:            m.ID.String(),
		MessageTreeID: m.MessageTreeID.String(),
		ParentID:      uuidPtr(m.ParentID),
		Depth:         m.Depth,
		Role:          treemodel.Role(m.Role),
		Text:          m.Text,
		Lang:          m.Lang,
		ReviewCount:   m.ReviewCount,
		ReviewResult:  m.ReviewResult,
		Deleted:       m.Deleted,
		RankingCount:  m.RankingCount,
		Rank:          m.Rank,
		ChildrenCount: m.ChildrenCount,
		UserID:        m.UserID.String(),
		TaskID:        uuidPtr(m.TaskID),
		CreatedAt:     m.CreatedAt,
	}
}

// FromMessageDomain converts the pure domain type into a MessageModel.
func FromMessageDomain(m *treemodel.Message) *MessageModel {
	if m == nil {
		return nil
	}
	out := &MessageModel{
		Depth:         m.Depth,
		Role:          string(m.Role),
		Text:          m.Text,
		Lang:          m.Lang,
		ReviewCount:   m.ReviewCount,
		ReviewResult:  m.ReviewResult,
		Deleted:       m.Deleted,
		RankingCount:  m.RankingCount,
		Rank:          m.Rank,
		ChildrenCount: m.ChildrenCount,
		ParentID:      parseUUIDPtr(m.ParentID),
		TaskID:        parseUUIDPtr(m.TaskID),
		CreatedAt:     m.CreatedAt,
	}
	if m.ID != "" {
		out.ID = uuid.MustParse(m.ID)
	}
	if m.MessageTreeID != "" {
		out.MessageTreeID = uuid.MustParse(m.MessageTreeID)
	}
	if m.UserID != "" {
		out.UserID = uuid.MustParse(m.UserID)
	}
	return out
}

// ToTreeStateDomain converts a MessageTreeStateModel into the domain type.
func ToTreeStateDomain(t *MessageTreeStateModel) *treemodel.MessageTreeState {
	if t == nil {
		return nil
	}
	return &treemodel.MessageTreeState{
		MessageTreeID:    t.MessageTreeID.String(),
		State:            treemodel.State(t.State),
		Active:           t.Active,
		GoalTreeSize:     t.GoalTreeSize,
		MaxDepth:         t.MaxDepth,
		MaxChildrenCount: t.MaxChildrenCount,
		Lang:             t.Lang,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// FromTreeStateDomain converts the domain type into a MessageTreeStateModel.
func FromTreeStateDomain(t *treemodel.MessageTreeState) *MessageTreeStateModel {
	if t == nil {
		return nil
	}
	out := &MessageTreeStateModel{
		State:            string(t.State),
		Active:           t.Active,
		GoalTreeSize:     t.GoalTreeSize,
		MaxDepth:         t.MaxDepth,
		MaxChildrenCount: t.MaxChildrenCount,
		Lang:             t.Lang,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	if t.MessageTreeID != "" {
		out.MessageTreeID = uuid.MustParse(t.MessageTreeID)
	}
	return out
}

// ToTaskDomain converts a TaskModel into the domain type.
func ToTaskDomain(t *TaskModel) *treemodel.Task {
	if t == nil {
		return nil
	}
	return &treemodel.Task{
		ID:              t.ID.String(),
		ParentMessageID: uuidPtr(t.ParentMessageID),
		MessageTreeID:   uuidPtr(t.MessageTreeID),
		PayloadType:     treemodel.PayloadType(t.PayloadType),
		Payload:         t.Payload,
		Done:            t.Done,
		UserID:          t.UserID.String(),
		CreatedAt:       t.CreatedAt,
	}
}

// FromTaskDomain converts the domain type into a TaskModel.
func FromTaskDomain(t *treemodel.Task) *TaskModel {
	if t == nil {
		return nil
	}
	out := &TaskModel{
		ParentMessageID: parseUUIDPtr(t.ParentMessageID),
		MessageTreeID:   parseUUIDPtr(t.MessageTreeID),
		PayloadType:     string(t.PayloadType),
		Payload:         JSONBMap(t.Payload),
		Done:            t.Done,
		CreatedAt:       t.CreatedAt,
	}
	if t.ID != "" {
		out.ID = uuid.MustParse(t.ID)
	}
	if t.UserID != "" {
		out.UserID = uuid.MustParse(t.UserID)
	}
	return out
}

// ToTextLabelsDomain converts a TextLabelsModel into the domain type.
func ToTextLabelsDomain(l *TextLabelsModel) *treemodel.TextLabels {
	if l == nil {
		return nil
	}
	labels := make(map[string]float64, len(l.Labels))
	for k, v := range l.Labels {
		if f, ok := v.(float64); ok {
			labels[k] = f
		}
	}
	return &treemodel.TextLabels{
		ID:        l.ID.String(),
		MessageID: l.MessageID.String(),
		TaskID:    uuidPtr(l.TaskID),
		UserID:    l.UserID.String(),
		Labels:    labels,
		CreatedAt: l.CreatedAt,
	}
}

// FromTextLabelsDomain converts the domain type into a TextLabelsModel.
func FromTextLabelsDomain(l *treemodel.TextLabels) *TextLabelsModel {
	if l == nil {
		return nil
	}
	labels := make(JSONBMap, len(l.Labels))
	for k, v := range l.Labels {
		labels[k] = v
	}
	out := &TextLabelsModel{
		TaskID:    parseUUIDPtr(l.TaskID),
		Labels:    labels,
		CreatedAt: l.CreatedAt,
	}
	if l.ID != "" {
		out.ID = uuid.MustParse(l.ID)
	}
	if l.MessageID != "" {
		out.MessageID = uuid.MustParse(l.MessageID)
	}
	if l.UserID != "" {
		out.UserID = uuid.MustParse(l.UserID)
	}
	return out
}

// ToReactionDomain converts a MessageReactionModel into the domain type.
func ToReactionDomain(r *MessageReactionModel) *treemodel.MessageReaction {
	if r == nil {
		return nil
	}
	return &treemodel.MessageReaction{
		ID:               r.ID.String(),
		TaskID:           r.TaskID.String(),
		MessageID:        r.MessageID.String(),
		UserID:           r.UserID.String(),
		RatedMessageID:   uuidPtr(r.RatedMessageID),
		Rating:           r.Rating,
		RankedMessageIDs: []string(r.RankedMessageIDs),
		CreatedAt:        r.CreatedAt,
	}
}

// FromReactionDomain converts the domain type into a MessageReactionModel.
func FromReactionDomain(r *treemodel.MessageReaction) *MessageReactionModel {
	if r == nil {
		return nil
	}
	out := &MessageReactionModel{
		Rating:           r.Rating,
		RatedMessageID:   parseUUIDPtr(r.RatedMessageID),
		RankedMessageIDs: StringArray(r.RankedMessageIDs),
		CreatedAt:        r.CreatedAt,
	}
	if r.ID != "" {
		out.ID = uuid.MustParse(r.ID)
	}
	if r.TaskID != "" {
		out.TaskID = uuid.MustParse(r.TaskID)
	}
	if r.MessageID != "" {
		out.MessageID = uuid.MustParse(r.MessageID)
	}
	if r.UserID != "" {
		out.UserID = uuid.MustParse(r.UserID)
	}
	return out
}
