package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/domain/apperr"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

// fixedRand is a deterministic Rand: Float64 always returns the configured
// value, IntN always returns 0 (picks the first candidate).
type fixedRand struct {
	f float64
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) IntN(n int) int   { return 0 }

type fakeUserGateway struct {
	enabled bool
}

func (g fakeUserGateway) IsEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	return g.enabled, nil
}

type fakeTrees struct {
	repository.TreeStateRepository
	activeCount int
}

func (f fakeTrees) CountActiveExcluding(ctx context.Context, lang string, excludeStates []string) (int, error) {
	return f.activeCount, nil
}

type fakeMessages struct {
	repository.MessageRepository
	children []*models.MessageModel
}

func (f fakeMessages) FindChildren(ctx context.Context, parentID uuid.UUID, reviewedNonDeletedOnly bool) ([]*models.MessageModel, error) {
	return f.children, nil
}

type fakeQuery struct {
	extendible      []repository.ExtendibleParent
	promptsReview   []uuid.UUID
	repliesReview   []uuid.UUID
	incompleteRanks []repository.IncompleteRanking
	recentParents   []uuid.UUID
}

func (f fakeQuery) PromptsNeedReview(ctx context.Context, lang string, excludeUserID uuid.UUID, allowSelfLabeling bool) ([]uuid.UUID, error) {
	return f.promptsReview, nil
}
func (f fakeQuery) RepliesNeedReview(ctx context.Context, lang string, role string, excludeUserID uuid.UUID, allowSelfLabeling bool) ([]uuid.UUID, error) {
	return f.repliesReview, nil
}
func (f fakeQuery) ExtendibleParents(ctx context.Context, lang string, role string, excludeUserID uuid.UUID, allowDuplicateTasks bool) ([]repository.ExtendibleParent, error) {
	return f.extendible, nil
}
func (f fakeQuery) ExtendibleTrees(ctx context.Context, lang string) (int, error) { return 0, nil }
func (f fakeQuery) TreeSize(ctx context.Context, treeID uuid.UUID) (repository.TreeSize, error) {
	return repository.TreeSize{}, nil
}
func (f fakeQuery) IncompleteRankings(ctx context.Context, lang string, role string, requiredRankings int) ([]repository.IncompleteRanking, error) {
	return f.incompleteRanks, nil
}
func (f fakeQuery) TreeRankingResults(ctx context.Context, treeID uuid.UUID) ([]repository.RankingResult, error) {
	return nil, nil
}
func (f fakeQuery) NumActiveTreesExcluding(ctx context.Context, lang string, excludeStates []string) (int, error) {
	return 0, nil
}
func (f fakeQuery) MissingTreeStates(ctx context.Context) ([]uuid.UUID, error) { return nil, nil }
func (f fakeQuery) RecentReplyTaskParents(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	return f.recentParents, nil
}

func baseCfg() *config.TreeManagerConfig {
	return &config.TreeManagerConfig{
		MaxActiveTrees:                    5,
		LabelsInitialPrompt:               []string{"spam", "quality"},
		MandatoryLabelsInitial:            []string{"spam"},
		LabelsPrompterReply:               []string{"spam", "quality"},
		LabelsAssistantReply:              []string{"spam", "quality"},
		MandatoryLabelsReply:              []string{"spam"},
		PFullLabelingReviewPrompt:         0.5,
		PFullLabelingReviewReplyPrompter:  0.5,
		PFullLabelingReviewReplyAssistant: 0.5,
		PLonelyChildExtension:             0,
		LonelyChildrenCount:               2,
		RecentTasksSpanSec:                60,
		NumRequiredRankings:               2,
		RankPrompterReplies:               true,
	}
}

// rankingCfg disables prompter ranking so the fake's symmetric
// IncompleteRankings results don't make role selection ambiguous.
func rankingCfg() *config.TreeManagerConfig {
	c := baseCfg()
	c.RankPrompterReplies = false
	return c
}

func TestNextTask_UserNotEnabled(t *testing.T) {
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: false},
		Log:   logger.New(config.LoggingConfig{}),
	}

	_, err := d.NextTask(context.Background(), treemodel.TaskKindPrompt, "en", uuid.New())
	require.ErrorIs(t, err, apperr.ErrUserNotEnabled)
}

func TestNextTask_SpecificKindUnavailable(t *testing.T) {
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 5}, // at MaxActiveTrees, so 0 room for prompts
		Query: fakeQuery{},
		Cfg:   baseCfg(),
		Rand:  fixedRand{},
		Log:   logger.New(config.LoggingConfig{}),
	}

	_, err := d.NextTask(context.Background(), treemodel.TaskKindPrompt, "en", uuid.New())
	require.ErrorIs(t, err, apperr.ErrTaskTypeNotAvailable)
}

func TestNextTask_PromptAvailable(t *testing.T) {
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{},
		Cfg:   baseCfg(),
		Rand:  fixedRand{},
		Log:   logger.New(config.LoggingConfig{}),
	}

	task, err := d.NextTask(context.Background(), treemodel.TaskKindPrompt, "en", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, treemodel.PayloadInitialPrompt, task.PayloadType)
}

func TestNextTask_ReplySelectsExtendibleParent(t *testing.T) {
	parentID := uuid.New()
	treeID := uuid.New()

	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{
			extendible: []repository.ExtendibleParent{
				{MessageID: parentID, MessageTreeID: treeID, Role: string(treemodel.RoleAssistant), ActiveChildrenCount: 0},
			},
		},
		Cfg:  baseCfg(),
		Rand: fixedRand{f: 0.9}, // above PLonelyChildExtension(0), takes the not-recent branch
		Log:  logger.New(config.LoggingConfig{}),
	}

	task, err := d.NextTask(context.Background(), treemodel.TaskKindReply, "en", uuid.New())
	require.NoError(t, err)
	require.NotNil(t, task.ParentMessageID)
	assert.Equal(t, parentID, *task.ParentMessageID)
	assert.Equal(t, treeID, *task.MessageTreeID)
}

func TestNextTask_LabelPromptUnavailableWhenNoneNeedReview(t *testing.T) {
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{promptsReview: nil},
		Cfg:   baseCfg(),
		Rand:  fixedRand{},
		Log:   logger.New(config.LoggingConfig{}),
	}

	_, err := d.NextTask(context.Background(), treemodel.TaskKindLabelPrompt, "en", uuid.New())
	require.ErrorIs(t, err, apperr.ErrTaskTypeNotAvailable)
}

func TestNextTask_LabelPromptFullModeBelowThreshold(t *testing.T) {
	messageID := uuid.New()
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{promptsReview: []uuid.UUID{messageID}},
		Cfg:   baseCfg(),
		Rand:  fixedRand{f: 0.1}, // below PFullLabelingReviewPrompt(0.5) -> full mode
		Log:   logger.New(config.LoggingConfig{}),
	}

	task, err := d.NextTask(context.Background(), treemodel.TaskKindLabelPrompt, "en", uuid.New())
	require.NoError(t, err)
	require.NotNil(t, task.TargetMessageID)
	assert.Equal(t, messageID, *task.TargetMessageID)
	assert.Equal(t, "quality", task.Payload["disposition"])
	assert.Equal(t, "full", task.Payload["mode"])
}

func TestNextTask_LabelPromptSimpleModeExcludesQuality(t *testing.T) {
	messageID := uuid.New()
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{promptsReview: []uuid.UUID{messageID}},
		Cfg:   baseCfg(),
		Rand:  fixedRand{f: 0.9}, // above PFullLabelingReviewPrompt(0.5) -> simple mode
		Log:   logger.New(config.LoggingConfig{}),
	}

	task, err := d.NextTask(context.Background(), treemodel.TaskKindLabelPrompt, "en", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "simple", task.Payload["mode"])
	valid := task.Payload["valid_labels"].([]string)
	assert.Contains(t, valid, "lang_mismatch")
	assert.NotContains(t, valid, "quality", "label_prompt simple mode must not offer quality")
}

func TestNextTask_LabelReplySimpleModeIncludesQuality(t *testing.T) {
	messageID := uuid.New()
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{repliesReview: []uuid.UUID{messageID}},
		Cfg:   baseCfg(),
		Rand:  fixedRand{f: 0.9}, // above PFullLabelingReviewReplyAssistant(0.5) -> simple mode
		Log:   logger.New(config.LoggingConfig{}),
	}

	task, err := d.NextTask(context.Background(), treemodel.TaskKindLabelReply, "en", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "simple", task.Payload["mode"])
	valid := task.Payload["valid_labels"].([]string)
	assert.Contains(t, valid, "lang_mismatch")
	assert.Contains(t, valid, "quality", "label_reply simple mode must offer quality")
}

func TestNextTask_RankingBuildsShuffledChildren(t *testing.T) {
	parentID := uuid.New()
	treeID := uuid.New()
	childA := &models.MessageModel{ID: uuid.New(), Text: "a"}
	childB := &models.MessageModel{ID: uuid.New(), Text: "b"}

	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{
			incompleteRanks: []repository.IncompleteRanking{
				{MessageID: parentID, MessageTreeID: treeID, Role: string(treemodel.RoleAssistant)},
			},
		},
		Messages: fakeMessages{children: []*models.MessageModel{childA, childB}},
		Cfg:      rankingCfg(),
		Rand:     fixedRand{},
		Log:      logger.New(config.LoggingConfig{}),
	}

	task, err := d.NextTask(context.Background(), treemodel.TaskKindRanking, "en", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, treemodel.PayloadRankAssistant, task.PayloadType)
	texts := task.Payload["reply_texts"].([]string)
	assert.Len(t, texts, 2)
}

func TestNextTask_EmptyLangDefaultsToEn(t *testing.T) {
	d := &Dispatcher{
		Users: fakeUserGateway{enabled: true},
		Trees: fakeTrees{activeCount: 2},
		Query: fakeQuery{},
		Cfg:   baseCfg(),
		Rand:  fixedRand{},
		Log:   logger.New(config.LoggingConfig{}),
	}

	task, err := d.NextTask(context.Background(), treemodel.TaskKindPrompt, "", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "en", task.Payload["lang"])
}
