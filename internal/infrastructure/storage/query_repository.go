package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
)

var _ repository.QueryRepository = (*QueryRepositoryImpl)(nil)

// QueryRepositoryImpl answers the read-only materialisations the task
// dispatcher and maintenance sweep need. Every method here mirrors one of
// the raw queries in the original tree manager (query_prompts_need_review,
// query_extendible_parents, query_incomplete_rankings, ...), expressed as
// Bun query builders; only the FILTER/HAVING expressions themselves stay as
// SQL fragments passed into ColumnExpr/Having, since Bun has no structural
// equivalent for those.
type QueryRepositoryImpl struct {
	db bun.IDB
}

func NewQueryRepository(db bun.IDB) *QueryRepositoryImpl {
	return &QueryRepositoryImpl{db: db}
}

func (r *QueryRepositoryImpl) needReview(ctx context.Context, state string, rootOnly bool, lang string) ([]uuid.UUID, error) {
	q := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.id").
		Join("INNER JOIN tree_states AS ts ON ts.message_tree_id = m.message_tree_id").
		Where("ts.active").
		Where("ts.state = ?", state).
		Where("m.lang = ?", lang).
		Where("NOT m.deleted").
		Where("NOT m.review_result")
	if rootOnly {
		q = q.Where("m.parent_id IS NULL")
	} else {
		q = q.Where("m.parent_id IS NOT NULL")
	}

	var ids []uuid.UUID
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *QueryRepositoryImpl) PromptsNeedReview(ctx context.Context, lang string, excludeUserID uuid.UUID, allowSelfLabeling bool) ([]uuid.UUID, error) {
	ids, err := r.needReview(ctx, "initial_prompt_review", true, lang)
	if err != nil {
		return nil, err
	}
	return r.excludeSelfAuthored(ctx, ids, excludeUserID, allowSelfLabeling)
}

func (r *QueryRepositoryImpl) RepliesNeedReview(ctx context.Context, lang string, role string, excludeUserID uuid.UUID, allowSelfLabeling bool) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.id").
		Join("INNER JOIN tree_states AS ts ON ts.message_tree_id = m.message_tree_id").
		Where("ts.active").
		Where("ts.state = 'growing'").
		Where("m.lang = ?", lang).
		Where("NOT m.deleted").
		Where("NOT m.review_result").
		Where("m.parent_id IS NOT NULL").
		Where("(? = '' OR m.role = ?)", role, role).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return r.excludeSelfAuthored(ctx, ids, excludeUserID, allowSelfLabeling)
}

// excludeSelfAuthored drops messages authored by excludeUserID or already
// labelled by them, unless allowSelfLabeling (the DEBUG_ALLOW_DUPLICATE_TASKS
// equivalent) is set.
func (r *QueryRepositoryImpl) excludeSelfAuthored(ctx context.Context, ids []uuid.UUID, excludeUserID uuid.UUID, allowSelfLabeling bool) ([]uuid.UUID, error) {
	if allowSelfLabeling || len(ids) == 0 {
		return ids, nil
	}
	var filtered []uuid.UUID
	err := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.id").
		Where("m.id IN (?)", bun.In(ids)).
		Where("m.user_id != ?", excludeUserID).
		Where("NOT EXISTS (SELECT 1 FROM tree_text_labels tl WHERE tl.message_id = m.id AND tl.user_id = ?)", excludeUserID).
		Scan(ctx, &filtered)
	if err != nil {
		return nil, err
	}
	return filtered, nil
}

type extendibleParentRow struct {
	ParentID            uuid.UUID `bun:"parent_id"`
	MessageTreeID       uuid.UUID `bun:"message_tree_id"`
	ParentRole          string    `bun:"parent_role"`
	Lang                string    `bun:"lang"`
	ActiveChildrenCount int       `bun:"active_children_count"`
}

func (r *QueryRepositoryImpl) ExtendibleParents(ctx context.Context, lang string, role string, excludeUserID uuid.UUID, allowDuplicateTasks bool) ([]repository.ExtendibleParent, error) {
	const activeChildrenExpr = "COUNT(c.id) FILTER (WHERE NOT coalesce(c.deleted, FALSE) AND (c.review_result OR coalesce(c.review_count, 0) < ts.max_children_count))"

	q := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.id AS parent_id").
		ColumnExpr("m.role AS parent_role").
		ColumnExpr("m.lang AS lang").
		ColumnExpr("m.message_tree_id AS message_tree_id").
		ColumnExpr(activeChildrenExpr + " AS active_children_count").
		Join("INNER JOIN tree_states AS ts ON ts.message_tree_id = m.message_tree_id").
		Join("LEFT JOIN tree_messages AS c ON c.parent_id = m.id").
		Where("ts.active").
		Where("ts.state = 'growing'").
		Where("NOT m.deleted").
		Where("m.depth < ts.max_depth").
		Where("m.review_result").
		Where("m.lang = ?", lang).
		Where("(? = '' OR m.role = ?)", role, role).
		GroupExpr("m.id, m.role, m.lang, m.message_tree_id, ts.max_children_count").
		Having(activeChildrenExpr + " < ts.max_children_count")

	if !allowDuplicateTasks {
		q = q.Having("COUNT(c.id) FILTER (WHERE c.user_id = ?) = 0", excludeUserID)
	}

	var rows []extendibleParentRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]repository.ExtendibleParent, len(rows))
	for i, row := range rows {
		out[i] = repository.ExtendibleParent{
			MessageID:           row.ParentID,
			MessageTreeID:       row.MessageTreeID,
			Role:                row.ParentRole,
			Lang:                row.Lang,
			ActiveChildrenCount: row.ActiveChildrenCount,
		}
	}
	return out, nil
}

func (r *QueryRepositoryImpl) ExtendibleTrees(ctx context.Context, lang string) (int, error) {
	type row struct {
		MessageTreeID uuid.UUID `bun:"message_tree_id"`
	}
	var rows []row
	err := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.message_tree_id").
		Join("INNER JOIN tree_states AS ts ON ts.message_tree_id = m.message_tree_id").
		Where("ts.active").
		Where("ts.state = 'growing'").
		Where("NOT m.deleted").
		Where("m.lang = ?", lang).
		Where("((m.parent_id IS NOT NULL AND (m.review_result OR m.review_count < ts.max_children_count)) OR (m.parent_id IS NULL AND m.review_result))").
		GroupExpr("m.message_tree_id, ts.goal_tree_size").
		Having("COUNT(m.id) < ts.goal_tree_size").
		Scan(ctx, &rows)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *QueryRepositoryImpl) TreeSize(ctx context.Context, treeID uuid.UUID) (repository.TreeSize, error) {
	out := repository.TreeSize{MessageTreeID: treeID}
	err := r.db.NewSelect().
		Model((*models.MessageTreeStateModel)(nil)).
		ColumnExpr("GREATEST(ts.goal_tree_size - COUNT(m.id) FILTER (WHERE m.review_result), 0) AS remaining_messages").
		ColumnExpr("COUNT(m.id) FILTER (WHERE NOT m.review_result) AS awaiting_review").
		Join("LEFT JOIN tree_messages AS m ON m.message_tree_id = ts.message_tree_id AND NOT m.deleted").
		Where("ts.message_tree_id = ?", treeID).
		GroupExpr("ts.goal_tree_size").
		Scan(ctx, &out.RemainingMessages, &out.AwaitingReview)
	if err != nil {
		return repository.TreeSize{}, err
	}
	return out, nil
}

type incompleteRankingRow struct {
	ParentID        uuid.UUID `bun:"parent_id"`
	MessageTreeID   uuid.UUID `bun:"message_tree_id"`
	Role            string    `bun:"role"`
	Lang            string    `bun:"lang"`
	MinRankingCount int       `bun:"min_ranking_count"`
}

func (r *QueryRepositoryImpl) IncompleteRankings(ctx context.Context, lang string, role string, requiredRankings int) ([]repository.IncompleteRanking, error) {
	var rows []incompleteRankingRow
	err := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.parent_id AS parent_id").
		ColumnExpr("m.role AS role").
		ColumnExpr("m.lang AS lang").
		ColumnExpr("MIN(m.ranking_count) AS min_ranking_count").
		ColumnExpr("ts.message_tree_id AS message_tree_id").
		Join("INNER JOIN tree_states AS ts ON ts.message_tree_id = m.message_tree_id").
		Where("ts.active").
		Where("ts.state = 'ranking'").
		Where("m.review_result").
		Where("m.lang = ?", lang).
		Where("NOT m.deleted").
		Where("m.parent_id IS NOT NULL").
		Where("(? = '' OR m.role = ?)", role, role).
		GroupExpr("m.parent_id, m.role, m.lang, ts.message_tree_id").
		Having("COUNT(m.id) > 1 AND MIN(m.ranking_count) < ?", requiredRankings).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]repository.IncompleteRanking, len(rows))
	for i, row := range rows {
		out[i] = repository.IncompleteRanking{
			MessageID:     row.ParentID,
			MessageTreeID: row.MessageTreeID,
			Role:          row.Role,
			Lang:          row.Lang,
			RankingCount:  row.MinRankingCount,
		}
	}
	return out, nil
}

// TreeRankingResults loads the ranked_message_ids recorded against every
// ranking reaction whose task targets a parent in treeID with more than
// one reviewed, non-deleted child - the raw material the consensus engine
// turns into a resolved ordering per parent.
func (r *QueryRepositoryImpl) TreeRankingResults(ctx context.Context, treeID uuid.UUID) ([]repository.RankingResult, error) {
	type row struct {
		ParentID         uuid.UUID          `bun:"parent_id"`
		RankedMessageIDs models.StringArray `bun:"ranked_message_ids"`
	}

	multiChildParents := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.parent_id").
		Where("m.review_result").
		Where("NOT m.deleted").
		Where("m.parent_id IS NOT NULL").
		Where("m.message_tree_id = ?", treeID).
		GroupExpr("m.parent_id").
		Having("COUNT(m.id) > 1")

	var rows []row
	err := r.db.NewSelect().
		TableExpr("(?) AS p", multiChildParents).
		ColumnExpr("p.parent_id AS parent_id").
		ColumnExpr("mr.ranked_message_ids AS ranked_message_ids").
		Join("INNER JOIN tree_tasks AS t ON t.parent_message_id = p.parent_id AND t.done").
		Join("INNER JOIN tree_message_reactions AS mr ON mr.task_id = t.id AND cardinality(mr.ranked_message_ids) > 0").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	byParent := make(map[uuid.UUID][][]uuid.UUID)
	order := make([]uuid.UUID, 0)
	for _, rr := range rows {
		ordering := make([]uuid.UUID, 0, len(rr.RankedMessageIDs))
		for _, idStr := range rr.RankedMessageIDs {
			id, err := uuid.Parse(idStr)
			if err != nil {
				continue
			}
			ordering = append(ordering, id)
		}
		if _, seen := byParent[rr.ParentID]; !seen {
			order = append(order, rr.ParentID)
		}
		byParent[rr.ParentID] = append(byParent[rr.ParentID], ordering)
	}

	out := make([]repository.RankingResult, 0, len(order))
	for _, parentID := range order {
		out = append(out, repository.RankingResult{MessageID: parentID, Orderings: byParent[parentID]})
	}
	return out, nil
}

func (r *QueryRepositoryImpl) NumActiveTreesExcluding(ctx context.Context, lang string, excludeStates []string) (int, error) {
	q := r.db.NewSelect().
		Model((*models.MessageTreeStateModel)(nil)).
		Where("active = true").
		Where("lang = ?", lang)
	if len(excludeStates) > 0 {
		q = q.Where("state NOT IN (?)", bun.In(excludeStates))
	}
	return q.Count(ctx)
}

func (r *QueryRepositoryImpl) MissingTreeStates(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().
		Model((*models.MessageModel)(nil)).
		ColumnExpr("m.id").
		Join("LEFT JOIN tree_states AS ts ON ts.message_tree_id = m.message_tree_id").
		Where("m.parent_id IS NULL").
		Where("m.message_tree_id = m.id").
		Where("ts.message_tree_id IS NULL").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *QueryRepositoryImpl) RecentReplyTaskParents(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().
		Model((*models.TaskModel)(nil)).
		ColumnExpr("DISTINCT tk.parent_message_id").
		Where("tk.payload_type IN (?)", bun.In([]string{"prompter_reply", "assistant_reply"})).
		Where("NOT tk.done").
		Where("tk.created_at >= ?", since).
		Where("tk.parent_message_id IS NOT NULL").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
