package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExtendibleParent is a non-deleted reviewed message inside a growing tree
// whose children count is below the tree's max_children_count and whose
// depth is below max_depth.
type ExtendibleParent struct {
	MessageID           uuid.UUID
	MessageTreeID       uuid.UUID
	Role                string
	Lang                string
	ActiveChildrenCount int
}

// IncompleteRanking is a parent with >= 2 reviewed children whose ranking
// submission count is below num_required_rankings.
type IncompleteRanking struct {
	MessageID     uuid.UUID
	MessageTreeID uuid.UUID
	Role          string
	Lang          string
	RankingCount  int
}

// TreeSize reports the growing-phase completion counters for one tree:
// RemainingMessages is how many more reviewed messages are needed to reach
// goal_tree_size (0 once satisfied); AwaitingReview counts messages still
// under review.
type TreeSize struct {
	MessageTreeID     uuid.UUID
	RemainingMessages int
	AwaitingReview    int
}

// RankingResult is one parent's resolved ranking inputs, ready for the
// consensus engine: the ordered reviewed non-deleted children ids each
// ranking submission names.
type RankingResult struct {
	MessageID uuid.UUID
	Orderings [][]uuid.UUID
}

// QueryRepository exposes the read-only materialisations the dispatcher and
// state machine need. Implementations must preserve the exact filter
// composition (active tree, state, non-deleted, role, lang, self-exclusion,
// duplicate-task suppression).
type QueryRepository interface {
	// PromptsNeedReview returns root message ids awaiting label review,
	// excluding ones authored or already labelled by excludeUserID unless
	// allowSelfLabeling is true.
	PromptsNeedReview(ctx context.Context, lang string, excludeUserID uuid.UUID, allowSelfLabeling bool) ([]uuid.UUID, error)

	// RepliesNeedReview is the same, scoped to non-root messages and
	// optionally filtered by role.
	RepliesNeedReview(ctx context.Context, lang string, role string, excludeUserID uuid.UUID, allowSelfLabeling bool) ([]uuid.UUID, error)

	// ExtendibleParents returns extendible parents, optionally filtered by
	// role, excluding parents that already have a child authored by
	// excludeUserID unless duplicates are allowed.
	ExtendibleParents(ctx context.Context, lang string, role string, excludeUserID uuid.UUID, allowDuplicateTasks bool) ([]ExtendibleParent, error)

	// ExtendibleTrees counts active growing trees, per language, whose
	// number of non-deleted reviewed or still-reviewable messages is below
	// goal_tree_size.
	ExtendibleTrees(ctx context.Context, lang string) (int, error)

	// TreeSize reports the growing counters for treeID.
	TreeSize(ctx context.Context, treeID uuid.UUID) (TreeSize, error)

	// IncompleteRankings returns incomplete-ranking parents, optionally
	// role-filtered.
	IncompleteRankings(ctx context.Context, lang string, role string, requiredRankings int) ([]IncompleteRanking, error)

	// TreeRankingResults returns the ranking orderings recorded against
	// every incomplete-ranking-turned-complete parent of treeID, ready for
	// the consensus engine.
	TreeRankingResults(ctx context.Context, treeID uuid.UUID) ([]RankingResult, error)

	// NumActiveTreesExcluding counts active trees for a language whose
	// state is not in excludeStates (feeds the initial_prompt
	// availability count, which excludes RANKING).
	NumActiveTreesExcluding(ctx context.Context, lang string, excludeStates []string) (int, error)

	// MissingTreeStates returns root message ids that have no
	// MessageTreeState row yet.
	MissingTreeStates(ctx context.Context) ([]uuid.UUID, error)

	// RecentReplyTaskParents returns the parent_message_id set of open
	// reply tasks created after since.
	RecentReplyTaskParents(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}
