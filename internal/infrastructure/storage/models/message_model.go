package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MessageModel represents a node of a conversation tree in the database.
type MessageModel struct {
	bun.BaseModel `bun:"table:tree_messages,alias:m"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	MessageTreeID uuid.UUID  `bun:"message_tree_id,notnull,type:uuid"`
	ParentID      *uuid.UUID `bun:"parent_id,type:uuid"`
	Depth         int        `bun:"depth,notnull,default:0"`
	Role          string     `bun:"role,notnull"`
	Text          string     `bun:"text,notnull"`
	Lang          string     `bun:"lang,notnull,default:'en'"`
	ReviewCount   int        `bun:"review_count,notnull,default:0"`
	ReviewResult  bool       `bun:"review_result,notnull,default:false"`
	Deleted       bool       `bun:"deleted,notnull,default:false"`
	RankingCount  int        `bun:"ranking_count,notnull,default:0"`
	Rank          *int       `bun:"rank"`
	ChildrenCount int        `bun:"children_count,notnull,default:0"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	TaskID        *uuid.UUID `bun:"task_id,type:uuid"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func (MessageModel) TableName() string { return "tree_messages" }

func (m *MessageModel) BeforeInsert(ctx interface{}) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Lang == "" {
		m.Lang = "en"
	}
	if m.ParentID == nil {
		m.MessageTreeID = m.ID
	}
	return nil
}

// IsRoot reports whether the message has no parent.
func (m *MessageModel) IsRoot() bool {
	return m.ParentID == nil
}
