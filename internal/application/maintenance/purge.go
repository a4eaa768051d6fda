package maintenance

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

// PurgeUserMessages removes the messages the user authored. If
// purgeInitialPrompts is true and the user authored a tree's root, the whole
// tree is hard-deleted. The user's replies - and anything hanging off them -
// are purged, and the surviving tree is sent back through review. Roots the
// user authored are left in place when purgeInitialPrompts is false.
func (m *Maintenance) PurgeUserMessages(ctx context.Context, userID uuid.UUID, purgeInitialPrompts bool) error {
	authored, err := m.Messages.FindByUser(ctx, userID)
	if err != nil {
		return err
	}

	repliesByTree := make(map[uuid.UUID][]*models.MessageModel)
	var roots []*models.MessageModel
	for _, msg := range authored {
		if msg.IsRoot() {
			roots = append(roots, msg)
			continue
		}
		repliesByTree[msg.MessageTreeID] = append(repliesByTree[msg.MessageTreeID], msg)
	}

	if purgeInitialPrompts {
		for _, root := range roots {
			if err := m.purgeWholeTree(ctx, root.MessageTreeID); err != nil {
				return err
			}
			delete(repliesByTree, root.MessageTreeID)
		}
	}

	for treeID, own := range repliesByTree {
		if err := m.purgeMessagesInTree(ctx, treeID, own); err != nil {
			return err
		}
	}
	return nil
}

// purgeWholeTree hard-deletes every message of the tree, deepest first, then
// the tree state row itself.
func (m *Maintenance) purgeWholeTree(ctx context.Context, treeID uuid.UUID) error {
	all, err := m.Messages.FindByTreeID(ctx, treeID, true)
	if err != nil {
		return err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Depth > all[j].Depth })

	for _, msg := range all {
		if err := m.purgeOne(ctx, msg); err != nil {
			return err
		}
	}
	return m.Trees.Delete(ctx, treeID)
}

// purgeMessagesInTree removes the user's own messages from a tree whose
// root belongs to someone else (or whose root purge wasn't requested). The
// original walks each bad message's ancestor chain independently, which is
// O(n * depth); this builds the parent map once and classifies every
// message in a single depth-sorted pass instead.
func (m *Maintenance) purgeMessagesInTree(ctx context.Context, treeID uuid.UUID, own []*models.MessageModel) error {
	all, err := m.Messages.FindByTreeID(ctx, treeID, true)
	if err != nil {
		return err
	}

	byID := make(map[uuid.UUID]*models.MessageModel, len(all))
	for _, msg := range all {
		byID[msg.ID] = msg
	}

	badIDs := make(map[uuid.UUID]bool, len(own))
	for _, msg := range own {
		badIDs[msg.ID] = true
	}

	// purged memoizes, per message id, whether it is bad itself or
	// descends from a bad message - each id is resolved at most once by
	// walking up through already-resolved ancestors.
	purged := make(map[uuid.UUID]bool, len(all))
	var resolve func(id uuid.UUID) bool
	resolve = func(id uuid.UUID) bool {
		if v, ok := purged[id]; ok {
			return v
		}
		if badIDs[id] {
			purged[id] = true
			return true
		}
		msg := byID[id]
		if msg == nil || msg.ParentID == nil {
			purged[id] = false
			return false
		}
		v := resolve(*msg.ParentID)
		purged[id] = v
		return v
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Depth > all[j].Depth })

	var affectedParents []uuid.UUID
	for _, msg := range all {
		if !resolve(msg.ID) {
			continue
		}
		if msg.ParentID != nil {
			affectedParents = append(affectedParents, *msg.ParentID)
		}
		if err := m.purgeOne(ctx, msg); err != nil {
			return err
		}
	}

	for _, parentID := range affectedParents {
		if _, ok := byID[parentID]; !ok || purged[parentID] {
			continue
		}
		if err := m.Messages.RecountChildren(ctx, parentID); err != nil {
			return err
		}
	}

	return m.reactivateTree(ctx, treeID)
}

// purgeOne deletes a single message and everything the purge cascade names
// against it: ranking reactions over its sibling set, the task that
// produced it, tasks parented on it, and its own side-table rows.
func (m *Maintenance) purgeOne(ctx context.Context, msg *models.MessageModel) error {
	if msg.ParentID != nil {
		if err := m.Reactions.HardDeleteByTaskParent(ctx, *msg.ParentID); err != nil {
			return err
		}
	}
	if err := m.Tasks.HardDeleteByMessage(ctx, msg.ID); err != nil {
		return err
	}
	return m.Messages.HardDelete(ctx, msg.ID)
}

// reactivateTree puts a tree that survived a partial purge back into
// initial_prompt_review and replays the growing/ranking/scoring guards in
// order, mirroring purge_user_messages re-validating the tree from scratch.
func (m *Maintenance) reactivateTree(ctx context.Context, treeID uuid.UUID) error {
	tree, err := m.Trees.FindByTreeID(ctx, treeID)
	if err != nil {
		return err
	}

	tree.Active = true
	tree.State = string(treemodel.StateInitialPromptReview)
	if err := m.Trees.Update(ctx, tree); err != nil {
		return err
	}

	if err := m.StateMachine.CheckGrowingState(ctx, treeID); err != nil {
		return err
	}
	if err := m.StateMachine.CheckRankingState(ctx, treeID); err != nil {
		return err
	}
	return m.StateMachine.CheckScoringState(ctx, treeID)
}
