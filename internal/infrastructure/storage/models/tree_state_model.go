package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MessageTreeStateModel is the one-per-root lifecycle record of a tree.
type MessageTreeStateModel struct {
	bun.BaseModel `bun:"table:tree_states,alias:ts"`

	MessageTreeID    uuid.UUID `bun:"message_tree_id,pk,type:uuid"`
	State            string    `bun:"state,notnull"`
	Active           bool      `bun:"active,notnull,default:true"`
	GoalTreeSize     int       `bun:"goal_tree_size,notnull"`
	MaxDepth         int       `bun:"max_depth,notnull"`
	MaxChildrenCount int       `bun:"max_children_count,notnull"`
	Lang             string    `bun:"lang,notnull,default:'en'"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (MessageTreeStateModel) TableName() string { return "tree_states" }

func (t *MessageTreeStateModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Lang == "" {
		t.Lang = "en"
	}
	return nil
}

func (t *MessageTreeStateModel) BeforeUpdate(ctx interface{}) error {
	t.UpdatedAt = time.Now()
	return nil
}

// terminalStates mirrors pkg/treemodel's terminal set, keyed by the stored
// state string.
var terminalStates = map[string]bool{
	"ready_for_export":    true,
	"aborted_low_grade":   true,
	"halted_by_moderator": true,
}

// IsTerminal reports whether the stored state string names a terminal state.
func (t *MessageTreeStateModel) IsTerminal() bool {
	return terminalStates[t.State]
}
