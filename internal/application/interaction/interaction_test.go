package interaction

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasst/treemanager/internal/application/statemachine"
	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/domain/apperr"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

type fakeMessages struct {
	repository.MessageRepository
	byID             map[uuid.UUID]*models.MessageModel
	created          []*models.MessageModel
	incrementedChild map[uuid.UUID]int
	incrementedRev   map[uuid.UUID]int
}

func (f *fakeMessages) Create(ctx context.Context, m *models.MessageModel) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ParentID == nil {
		m.MessageTreeID = m.ID
	}
	f.created = append(f.created, m)
	if f.byID == nil {
		f.byID = make(map[uuid.UUID]*models.MessageModel)
	}
	f.byID[m.ID] = m
	return nil
}
func (f *fakeMessages) FindByID(ctx context.Context, id uuid.UUID) (*models.MessageModel, error) {
	return f.byID[id], nil
}
func (f *fakeMessages) Update(ctx context.Context, m *models.MessageModel) error {
	if f.byID == nil {
		f.byID = make(map[uuid.UUID]*models.MessageModel)
	}
	f.byID[m.ID] = m
	return nil
}
func (f *fakeMessages) IncrementChildrenCount(ctx context.Context, parentID uuid.UUID, delta int) error {
	if f.incrementedChild == nil {
		f.incrementedChild = make(map[uuid.UUID]int)
	}
	f.incrementedChild[parentID] += delta
	return nil
}
func (f *fakeMessages) IncrementReviewCount(ctx context.Context, id uuid.UUID, delta int) error {
	if f.incrementedRev == nil {
		f.incrementedRev = make(map[uuid.UUID]int)
	}
	f.incrementedRev[id] += delta
	return nil
}

type fakeTrees struct {
	repository.TreeStateRepository
	created []*models.MessageTreeStateModel
	byID    map[uuid.UUID]*models.MessageTreeStateModel
	updated []*models.MessageTreeStateModel
}

func (f *fakeTrees) Create(ctx context.Context, t *models.MessageTreeStateModel) error {
	f.created = append(f.created, t)
	return nil
}
func (f *fakeTrees) FindByTreeID(ctx context.Context, treeID uuid.UUID) (*models.MessageTreeStateModel, error) {
	if f.byID != nil {
		if t, ok := f.byID[treeID]; ok {
			return t, nil
		}
	}
	return &models.MessageTreeStateModel{MessageTreeID: treeID, State: string(treemodel.StateRanking), Active: true}, nil
}
func (f *fakeTrees) Update(ctx context.Context, t *models.MessageTreeStateModel) error {
	f.updated = append(f.updated, t)
	return nil
}

type fakeQuery struct {
	repository.QueryRepository
}

func (f fakeQuery) TreeSize(ctx context.Context, treeID uuid.UUID) (repository.TreeSize, error) {
	return repository.TreeSize{}, nil
}
func (f fakeQuery) IncompleteRankings(ctx context.Context, lang, role string, requiredRankings int) ([]repository.IncompleteRanking, error) {
	return nil, nil
}
func (f fakeQuery) TreeRankingResults(ctx context.Context, treeID uuid.UUID) ([]repository.RankingResult, error) {
	return nil, nil
}

type fakeTasks struct {
	repository.TaskRepository
	done []uuid.UUID
}

func (f *fakeTasks) MarkDone(ctx context.Context, id uuid.UUID) error {
	f.done = append(f.done, id)
	return nil
}

type fakeLabels struct {
	created []*models.TextLabelsModel
}

func (f *fakeLabels) Create(ctx context.Context, l *models.TextLabelsModel) error {
	f.created = append(f.created, l)
	return nil
}
func (f *fakeLabels) FindByMessage(ctx context.Context, messageID uuid.UUID) ([]*models.TextLabelsModel, error) {
	return nil, nil
}
func (f *fakeLabels) HardDeleteByMessage(ctx context.Context, messageID uuid.UUID) error { return nil }

type fakeReactions struct {
	repository.ReactionRepository
	created []*models.MessageReactionModel
}

func (f *fakeReactions) Create(ctx context.Context, r *models.MessageReactionModel) error {
	f.created = append(f.created, r)
	return nil
}

type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }

type fakeEnrichment struct {
	calls []uuid.UUID
}

func (f *fakeEnrichment) Enrich(ctx context.Context, messageID uuid.UUID, text string) {
	f.calls = append(f.calls, messageID)
}

func newHandler() (*Handler, *fakeMessages, *fakeTrees, *fakeTasks, *fakeReactions) {
	messages := &fakeMessages{}
	trees := &fakeTrees{}
	tasks := &fakeTasks{}
	reactions := &fakeReactions{}
	labels := &fakeLabels{}
	sm := &statemachine.StateMachine{
		Trees:    trees,
		Messages: messages,
		Labels:   labels,
		Query:    fakeQuery{},
		Cfg:      &config.TreeManagerConfig{NumReviewsInitialPrompt: 1, NumReviewsReply: 1, PActivateBacklogTree: 0},
		Rand:     fixedRand{f: 1},
		Log:      logger.New(config.LoggingConfig{}),
	}
	h := &Handler{
		Messages:     messages,
		Trees:        trees,
		Tasks:        tasks,
		Labels:       labels,
		Reactions:    reactions,
		StateMachine: sm,
		Cfg:          &config.TreeManagerConfig{GoalTreeSize: 5, MaxTreeDepth: 3, MaxChildrenCount: 3},
		Log:          logger.New(config.LoggingConfig{}),
	}
	return h, messages, trees, tasks, reactions
}

func TestHandle_UnknownSubmissionType(t *testing.T) {
	h, _, _, _, _ := newHandler()
	err := h.Handle(context.Background(), nil)
	require.ErrorIs(t, err, apperr.ErrInvalidResponseType)
}

func TestHandleTextReply_RootCreatesTreeState(t *testing.T) {
	h, messages, trees, _, _ := newHandler()
	userID := uuid.New()

	sub := treemodel.TextReplyToMessage{
		UserID: userID.String(),
		Text:   "what is the capital of france?",
		Lang:   "en",
	}

	err := h.Handle(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, messages.created, 1)
	msg := messages.created[0]
	assert.Equal(t, string(treemodel.RolePrompter), msg.Role)
	assert.Equal(t, 0, msg.Depth)
	assert.Nil(t, msg.ParentID)

	require.Len(t, trees.created, 1)
	assert.Equal(t, msg.ID, trees.created[0].MessageTreeID)
	assert.Equal(t, string(treemodel.StateInitialPromptReview), trees.created[0].State)
	assert.True(t, trees.created[0].Active)
}

func TestHandleTextReply_ChildIncrementsParentAndFlipsRole(t *testing.T) {
	h, messages, trees, _, _ := newHandler()
	userID := uuid.New()

	parentID := uuid.New()
	treeID := uuid.New()
	messages.byID = map[uuid.UUID]*models.MessageModel{
		parentID: {ID: parentID, MessageTreeID: treeID, Role: string(treemodel.RolePrompter), Depth: 0},
	}

	parentIDStr := parentID.String()
	sub := treemodel.TextReplyToMessage{
		UserID:   userID.String(),
		ParentID: &parentIDStr,
		Text:     "paris",
		Lang:     "en",
	}

	err := h.Handle(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, messages.created, 1)
	msg := messages.created[0]
	assert.Equal(t, string(treemodel.RoleAssistant), msg.Role)
	assert.Equal(t, 1, msg.Depth)
	assert.Equal(t, treeID, msg.MessageTreeID)
	assert.Equal(t, 1, messages.incrementedChild[parentID])
	assert.Empty(t, trees.created, "a reply must not create a new tree state")
}

func TestHandleTextReply_MarksTaskDone(t *testing.T) {
	h, _, _, tasks, _ := newHandler()
	userID := uuid.New()
	taskID := uuid.New()

	sub := treemodel.TextReplyToMessage{
		TaskID: taskID.String(),
		UserID: userID.String(),
		Text:   "hello",
	}

	err := h.Handle(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, tasks.done, 1)
	assert.Equal(t, taskID, tasks.done[0])
}

func TestHandleRating_CreatesReactionAndMarksTaskDone(t *testing.T) {
	h, _, _, tasks, reactions := newHandler()
	messageID := uuid.New()
	userID := uuid.New()
	taskID := uuid.New()

	sub := treemodel.MessageRating{
		TaskID:    taskID.String(),
		MessageID: messageID.String(),
		UserID:    userID.String(),
		Rating:    3,
	}

	err := h.Handle(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, reactions.created, 1)
	assert.Equal(t, messageID, reactions.created[0].MessageID)
	assert.Equal(t, 3, *reactions.created[0].Rating)
	require.Len(t, tasks.done, 1)
}

func TestHandleRanking_ChecksScoringStateAfterRecording(t *testing.T) {
	h, messages, _, tasks, reactions := newHandler()
	parentID := uuid.New()
	treeID := uuid.New()
	userID := uuid.New()
	taskID := uuid.New()

	messages.byID = map[uuid.UUID]*models.MessageModel{
		parentID: {ID: parentID, MessageTreeID: treeID},
	}

	sub := treemodel.MessageRanking{
		TaskID:           taskID.String(),
		MessageID:        parentID.String(),
		UserID:           userID.String(),
		RankedMessageIDs: []string{uuid.New().String(), uuid.New().String()},
	}

	err := h.Handle(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, reactions.created, 1)
	require.Len(t, tasks.done, 1)
}

func TestHandleLabels_RootTriggersRootReviewAndRankingCheck(t *testing.T) {
	h, messages, _, tasks, _ := newHandler()
	messageID := uuid.New()
	userID := uuid.New()
	taskID := uuid.New()

	messages.byID = map[uuid.UUID]*models.MessageModel{
		messageID: {ID: messageID, MessageTreeID: messageID, ParentID: nil, ReviewCount: 1},
	}

	sub := treemodel.TextLabelsSubmission{
		TaskID:    taskID.String(),
		MessageID: messageID.String(),
		UserID:    userID.String(),
		Labels:    map[string]float64{"spam": 0},
	}

	err := h.Handle(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 1, messages.incrementedRev[messageID])
	require.Len(t, tasks.done, 1)
}

func TestHandleLabels_NoTaskIDSkipsStateMachineNudge(t *testing.T) {
	h, messages, _, tasks, _ := newHandler()
	messageID := uuid.New()
	userID := uuid.New()

	sub := treemodel.TextLabelsSubmission{
		MessageID: messageID.String(),
		UserID:    userID.String(),
		Labels:    map[string]float64{"spam": 0},
	}

	err := h.Handle(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 1, messages.incrementedRev[messageID])
	assert.Empty(t, tasks.done)
}
