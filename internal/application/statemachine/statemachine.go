// Package statemachine advances a message tree across the lifecycle states
// of pkg/treemodel as review, growing, and ranking guards are satisfied. All
// checks are idempotent: invoking one twice without an intervening write
// yields the same final state.
package statemachine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/application/acceptance"
	"github.com/oasst/treemanager/internal/application/consensus"
	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

// Rand is the source of randomness backlog activation draws from. Injected
// so tests can force either branch deterministically.
type Rand interface {
	Float64() float64
}

// StateMachine bundles the repositories and config the condition checks
// read live data through.
type StateMachine struct {
	Trees     repository.TreeStateRepository
	Messages  repository.MessageRepository
	Labels    repository.LabelRepository
	Reactions repository.ReactionRepository
	Query     repository.QueryRepository
	Cfg       *config.TreeManagerConfig
	Rand      Rand
	Log       *logger.Logger
}

// enterState transitions tree to target, flips active off when target is
// terminal, persists the row, and triggers backlog activation when a
// previously active tree just went terminal.
func (sm *StateMachine) enterState(ctx context.Context, tree *models.MessageTreeStateModel, target treemodel.State) error {
	wasActive := tree.Active
	tree.State = string(target)
	if target.IsTerminal() {
		tree.Active = false
	}
	if err := sm.Trees.Update(ctx, tree); err != nil {
		return err
	}
	sm.Log.WithTree(tree.MessageTreeID.String()).Info("tree entered state", "state", string(target))

	if target.IsTerminal() && wasActive {
		return sm.activateBacklogTree(ctx, tree.Lang)
	}
	return nil
}

// CheckGrowingState advances INITIAL_PROMPT_REVIEW -> GROWING once the root
// has passed review. Called after the interaction handler sets the root's
// review_result.
func (sm *StateMachine) CheckGrowingState(ctx context.Context, treeID uuid.UUID) error {
	tree, err := sm.Trees.FindByTreeID(ctx, treeID)
	if err != nil {
		return err
	}
	if !tree.Active || tree.State != string(treemodel.StateInitialPromptReview) {
		return nil
	}
	root, err := sm.Messages.FindByID(ctx, treeID)
	if err != nil {
		return err
	}
	if !root.ReviewResult {
		return nil
	}
	return sm.enterState(ctx, tree, treemodel.StateGrowing)
}

// EnterLowGradeState moves a tree straight to ABORTED_LOW_GRADE, called when
// the root's acceptance review fails outright instead of passing.
func (sm *StateMachine) EnterLowGradeState(ctx context.Context, treeID uuid.UUID) error {
	tree, err := sm.Trees.FindByTreeID(ctx, treeID)
	if err != nil {
		return err
	}
	if !tree.Active {
		return nil
	}
	return sm.enterState(ctx, tree, treemodel.StateAbortedLowGrade)
}

// CheckRankingState advances GROWING -> RANKING once the tree has reached
// goal_tree_size with no messages left awaiting review.
func (sm *StateMachine) CheckRankingState(ctx context.Context, treeID uuid.UUID) error {
	tree, err := sm.Trees.FindByTreeID(ctx, treeID)
	if err != nil {
		return err
	}
	if !tree.Active || tree.State != string(treemodel.StateGrowing) {
		return nil
	}
	size, err := sm.Query.TreeSize(ctx, treeID)
	if err != nil {
		return err
	}
	if size.RemainingMessages > 0 || size.AwaitingReview > 0 {
		return nil
	}
	return sm.enterState(ctx, tree, treemodel.StateRanking)
}

// CheckScoringState is the busiest guard: while RANKING, it checks whether
// every eligible parent has reached its ranking quorum and, if so, attempts
// consensus for each of them, moving the tree to READY_FOR_EXPORT on full
// success or SCORING_FAILED if any parent's ranking inputs fail to resolve.
// A tree already in SCORING_FAILED may re-enter this check regardless of
// `active` - that re-entry is how retry_scoring_failed_message_trees works.
func (sm *StateMachine) CheckScoringState(ctx context.Context, treeID uuid.UUID) error {
	tree, err := sm.Trees.FindByTreeID(ctx, treeID)
	if err != nil {
		return err
	}
	if tree.State != string(treemodel.StateRanking) && tree.State != string(treemodel.StateScoringFailed) {
		return nil
	}
	if tree.State == string(treemodel.StateRanking) && !tree.Active {
		return nil
	}

	incomplete, err := sm.Query.IncompleteRankings(ctx, tree.Lang, "", sm.Cfg.NumRequiredRankings)
	if err != nil {
		return err
	}
	for _, ir := range incomplete {
		if ir.MessageTreeID == treeID {
			return nil
		}
	}

	results, err := sm.Query.TreeRankingResults(ctx, treeID)
	if err != nil {
		return err
	}

	for _, res := range results {
		order, err := consensus.RankedPairs(res.Orderings)
		if errors.Is(err, consensus.ErrCommonSetTooSmall) {
			continue
		}
		if err != nil {
			tree.Active = true
			tree.State = string(treemodel.StateScoringFailed)
			if uErr := sm.Trees.Update(ctx, tree); uErr != nil {
				return uErr
			}
			sm.Log.WithTree(treeID.String()).Warn("consensus failed, tree moved to scoring_failed", "parent", res.MessageID, "error", err)
			return nil
		}
		if err := sm.Messages.ClearRanksForParent(ctx, res.MessageID); err != nil {
			return err
		}
		for i, id := range order {
			rank := i
			if err := sm.Messages.SetRank(ctx, id, &rank); err != nil {
				return err
			}
		}
	}

	return sm.enterState(ctx, tree, treemodel.StateReadyForExport)
}

// activateBacklogTree runs when a tree goes terminal
// while active, roll the dice to pull one tree out of BACKLOG_RANKING for
// the same language, and top up again if the language is running low on
// rankable parents.
func (sm *StateMachine) activateBacklogTree(ctx context.Context, lang string) error {
	if sm.Rand.Float64() >= sm.Cfg.PActivateBacklogTree {
		return nil
	}
	if err := sm.activateOneBacklogTree(ctx, lang); err != nil {
		return err
	}

	incomplete, err := sm.Query.IncompleteRankings(ctx, lang, "", sm.Cfg.NumRequiredRankings)
	if err != nil {
		return err
	}
	if len(incomplete) < sm.Cfg.MinActiveRankingsPerLang {
		return sm.activateOneBacklogTree(ctx, lang)
	}
	return nil
}

func (sm *StateMachine) activateOneBacklogTree(ctx context.Context, lang string) error {
	backlog, err := sm.Trees.FindBacklogByLang(ctx, lang, 1)
	if err != nil {
		return err
	}
	if len(backlog) == 0 {
		return nil
	}
	tree := backlog[0]

	results, err := sm.Query.TreeRankingResults(ctx, tree.MessageTreeID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return sm.enterState(ctx, tree, treemodel.StateAbortedLowGrade)
	}

	tree.Active = true
	tree.State = string(treemodel.StateRanking)
	return sm.Trees.Update(ctx, tree)
}

// EvaluateRootReview applies the acceptance formula to every label
// submitted on a root message once it has accumulated the required review
// count, setting review_result and advancing or aborting the tree.
func (sm *StateMachine) EvaluateRootReview(ctx context.Context, treeID uuid.UUID) error {
	root, err := sm.Messages.FindByID(ctx, treeID)
	if err != nil {
		return err
	}
	if root.ReviewResult {
		return nil
	}
	if root.ReviewCount < sm.Cfg.NumReviewsInitialPrompt {
		return nil
	}
	labels, err := sm.Labels.FindByMessage(ctx, treeID)
	if err != nil {
		return err
	}
	_, accepted := acceptance.Evaluate(toLabelSets(labels), sm.Cfg.NumReviewsInitialPrompt, sm.Cfg.AcceptanceThresholdInitialPrompt)
	if accepted {
		root.ReviewResult = true
		if err := sm.Messages.Update(ctx, root); err != nil {
			return err
		}
		return sm.CheckGrowingState(ctx, treeID)
	}
	return sm.EnterLowGradeState(ctx, treeID)
}

// EvaluateReplyReview is the non-root counterpart: once a reply has enough
// reviews and the acceptance score clears the reply threshold, its
// review_result flips true.
func (sm *StateMachine) EvaluateReplyReview(ctx context.Context, messageID uuid.UUID) error {
	m, err := sm.Messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.ReviewResult {
		return nil
	}
	if m.ReviewCount < sm.Cfg.NumReviewsReply {
		return nil
	}
	labels, err := sm.Labels.FindByMessage(ctx, messageID)
	if err != nil {
		return err
	}
	_, accepted := acceptance.Evaluate(toLabelSets(labels), sm.Cfg.NumReviewsReply, sm.Cfg.AcceptanceThresholdReply)
	if accepted {
		m.ReviewResult = true
		return sm.Messages.Update(ctx, m)
	}
	return nil
}

func toLabelSets(labels []*models.TextLabelsModel) []acceptance.LabelSet {
	out := make([]acceptance.LabelSet, len(labels))
	for i, l := range labels {
		set := acceptance.LabelSet{Spam: l.Spam()}
		if v, ok := l.LangMismatch(); ok {
			set.LangMismatch = &v
		}
		out[i] = set
	}
	return out
}
