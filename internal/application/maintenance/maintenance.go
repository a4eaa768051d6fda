// Package maintenance implements the background sweeps:
// backfilling missing tree states, retrying trees stuck in SCORING_FAILED,
// and purging a user's messages on request. These are invoked by the cron
// scheduler and by the admin REST surface, never by the hot request path.
package maintenance

import (
	"context"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/application/statemachine"
	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

// Maintenance bundles the repositories and state machine the sweeps drive.
type Maintenance struct {
	Trees        repository.TreeStateRepository
	Messages     repository.MessageRepository
	Tasks        repository.TaskRepository
	Labels       repository.LabelRepository
	Reactions    repository.ReactionRepository
	Query        repository.QueryRepository
	StateMachine *statemachine.StateMachine
	Cfg          *config.TreeManagerConfig
	Log          *logger.Logger
}

// EnsureTreeStates inserts a MessageTreeState row for every root message
// that lacks one, then sweeps every active tree through the condition check
// for its current state. It is the self-healing counterpart of the
// interaction handler's normal state creation, for rows that fell through
// the cracks (crash mid-request, manual data fixes).
func (m *Maintenance) EnsureTreeStates(ctx context.Context) error {
	missing, err := m.Query.MissingTreeStates(ctx)
	if err != nil {
		return err
	}

	for _, rootID := range missing {
		if err := m.createMissingTreeState(ctx, rootID); err != nil {
			m.Log.WithTree(rootID.String()).Error("ensure_tree_states: could not backfill tree state", "error", err)
		}
	}

	if err := m.sweepStates(ctx, []treemodel.State{treemodel.StateInitialPromptReview}, m.StateMachine.CheckGrowingState); err != nil {
		return err
	}
	if err := m.sweepStates(ctx, []treemodel.State{treemodel.StateGrowing}, m.StateMachine.CheckRankingState); err != nil {
		return err
	}
	return m.sweepStates(ctx, []treemodel.State{treemodel.StateRanking, treemodel.StateReadyForScoring}, m.StateMachine.CheckScoringState)
}

func (m *Maintenance) createMissingTreeState(ctx context.Context, rootID uuid.UUID) error {
	root, err := m.Messages.FindByID(ctx, rootID)
	if err != nil {
		return err
	}
	siblings, err := m.Messages.FindByTreeID(ctx, rootID, true)
	if err != nil {
		return err
	}

	state := treemodel.StateInitialPromptReview
	if len(siblings) > 1 {
		state = treemodel.StateGrowing
	}

	tree := &models.MessageTreeStateModel{
		MessageTreeID:    rootID,
		State:            string(state),
		Active:           true,
		GoalTreeSize:     m.Cfg.GoalTreeSize,
		MaxDepth:         m.Cfg.MaxTreeDepth,
		MaxChildrenCount: m.Cfg.MaxChildrenCount,
		Lang:             root.Lang,
	}
	return m.Trees.Create(ctx, tree)
}

func (m *Maintenance) sweepStates(ctx context.Context, states []treemodel.State, check func(context.Context, uuid.UUID) error) error {
	raw := make([]string, len(states))
	for i, s := range states {
		raw[i] = string(s)
	}
	trees, err := m.Trees.FindActiveByState(ctx, raw)
	if err != nil {
		return err
	}
	for _, tree := range trees {
		if err := check(ctx, tree.MessageTreeID); err != nil {
			m.Log.WithTree(tree.MessageTreeID.String()).Error("ensure_tree_states: condition check failed", "error", err)
		}
	}
	return nil
}

// RetryScoringFailed re-runs the scoring guard for every tree parked in
// SCORING_FAILED. If the guard still can't resolve consensus, the tree is
// forced back into RANKING so it re-enters the ranking task pool instead of
// sitting dead - new ranking submissions may supply the missing orderings.
func (m *Maintenance) RetryScoringFailed(ctx context.Context) error {
	trees, err := m.Trees.FindActiveByState(ctx, []string{string(treemodel.StateScoringFailed)})
	if err != nil {
		return err
	}

	for _, tree := range trees {
		if err := m.retryOne(ctx, tree.MessageTreeID); err != nil {
			m.Log.WithTree(tree.MessageTreeID.String()).Error("retry_scoring_failed_message_trees failed", "error", err)
		}
	}
	return nil
}

func (m *Maintenance) retryOne(ctx context.Context, treeID uuid.UUID) error {
	if err := m.StateMachine.CheckScoringState(ctx, treeID); err != nil {
		return err
	}

	tree, err := m.Trees.FindByTreeID(ctx, treeID)
	if err != nil {
		return err
	}
	if tree.State != string(treemodel.StateScoringFailed) {
		return nil
	}

	tree.Active = true
	tree.State = string(treemodel.StateRanking)
	return m.Trees.Update(ctx, tree)
}
