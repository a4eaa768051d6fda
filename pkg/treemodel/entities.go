package treemodel

import "time"

// Message is a node of a conversation tree.
type Message struct {
	ID            string
	MessageTreeID string
	ParentID      *string
	Depth         int
	Role          Role
	Text          string
	Lang          string
	ReviewCount   int
	ReviewResult  bool
	Deleted       bool
	RankingCount  int
	Rank          *int
	ChildrenCount int
	UserID        string
	TaskID        *string
	CreatedAt     time.Time
}

// IsRoot reports whether m is the root of its tree.
func (m *Message) IsRoot() bool {
	return m.ParentID == nil
}

// MessageTreeState is the one-per-root lifecycle record of a tree.
type MessageTreeState struct {
	MessageTreeID     string
	State             State
	Active            bool
	GoalTreeSize      int
	MaxDepth          int
	MaxChildrenCount  int
	Lang              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Task is a dispatched work item, persisted separately from the descriptor
// the dispatcher hands back to the caller.
type Task struct {
	ID              string
	ParentMessageID *string
	MessageTreeID   *string
	PayloadType     PayloadType
	Payload         map[string]interface{}
	Done            bool
	UserID          string
	CreatedAt       time.Time
}

// TextLabels is a worker's label submission against a specific message.
type TextLabels struct {
	ID        string
	MessageID string
	TaskID    *string
	UserID    string
	Labels    map[string]float64
	CreatedAt time.Time
}

// MessageReaction is a worker's reaction to a task: a rating or a ranking.
type MessageReaction struct {
	ID               string
	TaskID           string
	MessageID        string
	UserID           string
	RatedMessageID   *string
	Rating           *int
	RankedMessageIDs []string
	CreatedAt        time.Time
}

// IsRanking reports whether the reaction carries a ranking payload.
func (r *MessageReaction) IsRanking() bool {
	return len(r.RankedMessageIDs) > 0
}

// MessageEmbedding is the best-effort embedding vector produced for a
// stored text reply by the enrichment hook. It carries no business logic;
// it exists so the purge cascade (§4.8) has a concrete side-table to drop.
type MessageEmbedding struct {
	MessageID string
	Vector    []float64
	CreatedAt time.Time
}

// MessageToxicity is the best-effort toxicity score produced for a stored
// text reply by the enrichment hook.
type MessageToxicity struct {
	MessageID string
	Label     string
	Score     float64
	CreatedAt time.Time
}
