package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TaskModel is a dispatched work item.
type TaskModel struct {
	bun.BaseModel `bun:"table:tree_tasks,alias:tk"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	ParentMessageID *uuid.UUID `bun:"parent_message_id,type:uuid"`
	MessageTreeID   *uuid.UUID `bun:"message_tree_id,type:uuid"`
	PayloadType     string     `bun:"payload_type,notnull"`
	Payload         JSONBMap   `bun:"payload,type:jsonb,default:'{}'"`
	Done            bool       `bun:"done,notnull,default:false"`
	UserID          uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func (TaskModel) TableName() string { return "tree_tasks" }

func (t *TaskModel) BeforeInsert(ctx interface{}) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Payload == nil {
		t.Payload = make(JSONBMap)
	}
	return nil
}
