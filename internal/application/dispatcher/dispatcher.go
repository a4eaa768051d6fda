// Package dispatcher implements the task dispatcher: given a
// requested task kind and a language, it computes live availability counts,
// picks a kind (weighted random or specific), selects a concrete target, and
// builds the resulting task descriptor. It never persists the task row - the
// caller does that after the dispatch returns.
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/domain/apperr"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

// UserGateway is the narrow external collaborator the dispatcher consults
// to enforce the "user enabled" precondition.
type UserGateway interface {
	IsEnabled(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Dispatcher bundles the repositories and config NextTask reads through.
type Dispatcher struct {
	Trees    repository.TreeStateRepository
	Messages repository.MessageRepository
	Query    repository.QueryRepository
	Users    UserGateway
	Cfg      *config.TreeManagerConfig
	Rand     Rand
	Log      *logger.Logger
}

// TaskDescriptor is the dispatcher's output: the caller persists it as a
// Task row and returns it to the worker. ParentMessageID/MessageTreeID are
// populated for reply and ranking tasks; TargetMessageID is populated for
// label tasks (the message being labeled, not a tree parent).
type TaskDescriptor struct {
	PayloadType     treemodel.PayloadType
	Payload         map[string]interface{}
	ParentMessageID *uuid.UUID
	MessageTreeID   *uuid.UUID
	TargetMessageID *uuid.UUID
}

type availability struct {
	initialPrompt       int
	prompterReply       int
	assistantReply      int
	labelInitialPrompt  int
	labelPrompterReply  int
	labelAssistantReply int
	rankPrompter        int
	rankAssistant       int
}

func (a availability) forKind(k treemodel.TaskKind) int {
	switch k {
	case treemodel.TaskKindPrompt:
		return a.initialPrompt
	case treemodel.TaskKindReply:
		return a.prompterReply + a.assistantReply
	case treemodel.TaskKindLabelPrompt:
		return a.labelInitialPrompt
	case treemodel.TaskKindLabelReply:
		return a.labelPrompterReply + a.labelAssistantReply
	case treemodel.TaskKindRanking:
		return a.rankPrompter + a.rankAssistant
	}
	return 0
}

// NextTask implements the next_task procedure.
func (d *Dispatcher) NextTask(ctx context.Context, desired treemodel.TaskKind, lang string, userID uuid.UUID) (*TaskDescriptor, error) {
	enabled, err := d.Users.IsEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, apperr.ErrUserNotEnabled
	}

	if lang == "" {
		lang = "en"
		d.Log.Warn("dispatch requested with empty lang, defaulting to en")
	}

	avail, err := d.determineAvailability(ctx, lang, userID)
	if err != nil {
		return nil, err
	}

	kind := desired
	if desired == treemodel.TaskKindRandom {
		kind, err = d.pickWeighted(avail)
		if err != nil {
			return nil, err
		}
	} else if avail.forKind(desired) <= 0 {
		return nil, apperr.ErrTaskTypeNotAvailable
	}

	return d.buildTask(ctx, kind, lang, userID, avail)
}

// determineAvailability materialises the five query-layer inputs the
// availability table draws from.
func (d *Dispatcher) determineAvailability(ctx context.Context, lang string, userID uuid.UUID) (availability, error) {
	var a availability

	numActive, err := d.Trees.CountActiveExcluding(ctx, lang, []string{string(treemodel.StateRanking)})
	if err != nil {
		return a, err
	}
	a.initialPrompt = max(0, d.Cfg.MaxActiveTrees-numActive)

	extendible, err := d.Query.ExtendibleParents(ctx, lang, "", userID, d.Cfg.DebugAllowDuplicateTasks)
	if err != nil {
		return a, err
	}
	for _, p := range extendible {
		switch treemodel.Role(p.Role) {
		case treemodel.RoleAssistant:
			a.prompterReply++
		case treemodel.RolePrompter:
			a.assistantReply++
		}
	}

	prompts, err := d.Query.PromptsNeedReview(ctx, lang, userID, d.Cfg.DebugAllowSelfLabeling)
	if err != nil {
		return a, err
	}
	a.labelInitialPrompt = len(prompts)

	prompterReplies, err := d.Query.RepliesNeedReview(ctx, lang, string(treemodel.RolePrompter), userID, d.Cfg.DebugAllowSelfLabeling)
	if err != nil {
		return a, err
	}
	assistantReplies, err := d.Query.RepliesNeedReview(ctx, lang, string(treemodel.RoleAssistant), userID, d.Cfg.DebugAllowSelfLabeling)
	if err != nil {
		return a, err
	}
	a.labelPrompterReply = len(prompterReplies)
	a.labelAssistantReply = len(assistantReplies)

	if d.Cfg.RankPrompterReplies {
		rankPrompter, err := d.Query.IncompleteRankings(ctx, lang, string(treemodel.RolePrompter), d.Cfg.NumRequiredRankings)
		if err != nil {
			return a, err
		}
		a.rankPrompter = len(rankPrompter)
	}
	rankAssistant, err := d.Query.IncompleteRankings(ctx, lang, string(treemodel.RoleAssistant), d.Cfg.NumRequiredRankings)
	if err != nil {
		return a, err
	}
	a.rankAssistant = len(rankAssistant)

	return a, nil
}

// pickWeighted draws a kind proportional to treemodel.DispatchWeights,
// restricted to kinds with nonzero availability.
func (d *Dispatcher) pickWeighted(avail availability) (treemodel.TaskKind, error) {
	kinds := []treemodel.TaskKind{
		treemodel.TaskKindRanking,
		treemodel.TaskKindLabelReply,
		treemodel.TaskKindLabelPrompt,
		treemodel.TaskKindReply,
		treemodel.TaskKindPrompt,
	}
	total := 0
	weights := make([]int, len(kinds))
	for i, k := range kinds {
		if avail.forKind(k) > 0 {
			weights[i] = treemodel.DispatchWeights[k]
			total += weights[i]
		}
	}
	if total == 0 {
		return "", apperr.ErrTaskTypeNotAvailable
	}
	draw := d.Rand.IntN(total)
	for i, w := range weights {
		if draw < w {
			return kinds[i], nil
		}
		draw -= w
	}
	return kinds[len(kinds)-1], nil
}

func (d *Dispatcher) buildTask(ctx context.Context, kind treemodel.TaskKind, lang string, userID uuid.UUID, avail availability) (*TaskDescriptor, error) {
	switch kind {
	case treemodel.TaskKindPrompt:
		return &TaskDescriptor{PayloadType: treemodel.PayloadInitialPrompt, Payload: map[string]interface{}{"lang": lang}}, nil

	case treemodel.TaskKindReply:
		return d.buildReplyTask(ctx, lang, userID, avail)

	case treemodel.TaskKindLabelPrompt:
		return d.buildLabelTask(ctx, lang, userID, true, "")

	case treemodel.TaskKindLabelReply:
		role := string(treemodel.RoleAssistant)
		if avail.labelPrompterReply > 0 && (avail.labelAssistantReply == 0 || d.Rand.Float64() < float64(avail.labelPrompterReply)/float64(avail.labelPrompterReply+avail.labelAssistantReply)) {
			role = string(treemodel.RolePrompter)
		}
		return d.buildLabelTask(ctx, lang, userID, false, role)

	case treemodel.TaskKindRanking:
		return d.buildRankingTask(ctx, lang, avail)
	}
	return nil, apperr.ErrTaskTypeNotAvailable
}

func (d *Dispatcher) buildReplyTask(ctx context.Context, lang string, userID uuid.UUID, avail availability) (*TaskDescriptor, error) {
	role := string(treemodel.RoleAssistant)
	if avail.prompterReply > 0 && (avail.assistantReply == 0 || d.Rand.Float64() < float64(avail.prompterReply)/float64(avail.prompterReply+avail.assistantReply)) {
		role = string(treemodel.RolePrompter)
	}
	parentRole := treemodel.Role(role).Other()

	candidates, err := d.Query.ExtendibleParents(ctx, lang, string(parentRole), userID, d.Cfg.DebugAllowDuplicateTasks)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperr.ErrTaskTypeNotAvailable
	}

	recent, err := d.Query.RecentReplyTaskParents(ctx, time.Now().Add(-time.Duration(d.Cfg.RecentTasksSpanSec)*time.Second))
	if err != nil {
		return nil, err
	}
	recentSet := make(map[uuid.UUID]bool, len(recent))
	for _, id := range recent {
		recentSet[id] = true
	}

	pool := candidates
	if d.Rand.Float64() < d.Cfg.PLonelyChildExtension {
		lonely := filterParents(candidates, func(p repository.ExtendibleParent) bool {
			return p.ActiveChildrenCount > 0 && p.ActiveChildrenCount < d.Cfg.LonelyChildrenCount && !recentSet[p.MessageID]
		})
		if len(lonely) > 0 {
			pool = lonely
		}
	} else {
		notRecent := filterParents(candidates, func(p repository.ExtendibleParent) bool { return !recentSet[p.MessageID] })
		if len(notRecent) > 0 {
			pool = notRecent
		}
	}

	chosen := pool[d.Rand.IntN(len(pool))]
	payloadType := treemodel.PayloadPrompterReply
	if role == string(treemodel.RoleAssistant) {
		payloadType = treemodel.PayloadAssistantReply
	}
	return &TaskDescriptor{
		PayloadType:     payloadType,
		Payload:         map[string]interface{}{"lang": lang},
		ParentMessageID: &chosen.MessageID,
		MessageTreeID:   &chosen.MessageTreeID,
	}, nil
}

func filterParents(in []repository.ExtendibleParent, keep func(repository.ExtendibleParent) bool) []repository.ExtendibleParent {
	out := make([]repository.ExtendibleParent, 0, len(in))
	for _, p := range in {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (d *Dispatcher) buildLabelTask(ctx context.Context, lang string, userID uuid.UUID, isRoot bool, role string) (*TaskDescriptor, error) {
	var ids []uuid.UUID
	var err error
	if isRoot {
		ids, err = d.Query.PromptsNeedReview(ctx, lang, userID, d.Cfg.DebugAllowSelfLabeling)
	} else {
		ids, err = d.Query.RepliesNeedReview(ctx, lang, role, userID, d.Cfg.DebugAllowSelfLabeling)
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.ErrTaskTypeNotAvailable
	}
	messageID := ids[d.Rand.IntN(len(ids))]

	pFull := d.Cfg.PFullLabelingReviewPrompt
	labels := d.Cfg.LabelsInitialPrompt
	mandatory := d.Cfg.MandatoryLabelsInitial
	payloadType := treemodel.PayloadLabelInitial
	if !isRoot {
		if role == string(treemodel.RolePrompter) {
			pFull = d.Cfg.PFullLabelingReviewReplyPrompter
			labels = d.Cfg.LabelsPrompterReply
			payloadType = treemodel.PayloadLabelPrompter
		} else {
			pFull = d.Cfg.PFullLabelingReviewReplyAssistant
			labels = d.Cfg.LabelsAssistantReply
			payloadType = treemodel.PayloadLabelAssistant
		}
		mandatory = d.Cfg.MandatoryLabelsReply
	}

	full := d.Rand.Float64() < pFull
	disposition := "spam"
	valid := append([]string{}, mandatory...)
	valid = appendUnique(valid, "lang_mismatch")
	if !isRoot {
		valid = appendUnique(valid, "quality")
	}
	if full {
		disposition = "quality"
		valid = labels
	}

	return &TaskDescriptor{
		PayloadType: payloadType,
		Payload: map[string]interface{}{
			"valid_labels": valid,
			"mode":         map[bool]string{true: "full", false: "simple"}[full],
			"disposition":  disposition,
		},
		TargetMessageID: &messageID,
	}, nil
}

func (d *Dispatcher) buildRankingTask(ctx context.Context, lang string, avail availability) (*TaskDescriptor, error) {
	role := string(treemodel.RoleAssistant)
	if avail.rankPrompter > 0 && (avail.rankAssistant == 0 || d.Rand.Float64() < float64(avail.rankPrompter)/float64(avail.rankPrompter+avail.rankAssistant)) {
		role = string(treemodel.RolePrompter)
	}

	rows, err := d.Query.IncompleteRankings(ctx, lang, role, d.Cfg.NumRequiredRankings)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.ErrTaskTypeNotAvailable
	}
	row := rows[d.Rand.IntN(len(rows))]

	children, err := d.Messages.FindChildren(ctx, row.MessageID, true)
	if err != nil {
		return nil, err
	}
	shuffled := make([]*models.MessageModel, len(children))
	copy(shuffled, children)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := d.Rand.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	childTexts := make([]string, len(shuffled))
	childIDs := make([]string, len(shuffled))
	for i, c := range shuffled {
		childTexts[i] = c.Text
		childIDs[i] = c.ID.String()
	}

	payloadType := treemodel.PayloadRankAssistant
	if role == string(treemodel.RolePrompter) {
		payloadType = treemodel.PayloadRankPrompter
	}

	return &TaskDescriptor{
		PayloadType:     payloadType,
		Payload:         map[string]interface{}{"reply_texts": childTexts, "reply_message_ids": childIDs},
		ParentMessageID: &row.MessageID,
		MessageTreeID:   &row.MessageTreeID,
	}, nil
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
