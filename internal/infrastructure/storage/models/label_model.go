package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TextLabelsModel is a worker's label submission on a specific message.
type TextLabelsModel struct {
	bun.BaseModel `bun:"table:tree_text_labels,alias:tl"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	MessageID uuid.UUID  `bun:"message_id,notnull,type:uuid"`
	TaskID    *uuid.UUID `bun:"task_id,type:uuid"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Labels    JSONBMap   `bun:"labels,type:jsonb,notnull,default:'{}'"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func (TextLabelsModel) TableName() string { return "tree_text_labels" }

func (l *TextLabelsModel) BeforeInsert(ctx interface{}) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	if l.Labels == nil {
		l.Labels = make(JSONBMap)
	}
	return nil
}

// Spam returns the submitted spam label value, defaulting to 0.
func (l *TextLabelsModel) Spam() float64 {
	return l.Labels.GetFloat("spam")
}

// LangMismatch returns the submitted lang_mismatch value and whether it
// was present at all (absent values default to 0).
func (l *TextLabelsModel) LangMismatch() (float64, bool) {
	if !l.Labels.Has("lang_mismatch") {
		return 0, false
	}
	return l.Labels.GetFloat("lang_mismatch"), true
}

// MessageReactionModel is a worker's reaction: a rating or a ranking.
type MessageReactionModel struct {
	bun.BaseModel `bun:"table:tree_message_reactions,alias:mr"`

	ID               uuid.UUID   `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	TaskID           uuid.UUID   `bun:"task_id,notnull,type:uuid"`
	MessageID        uuid.UUID   `bun:"message_id,notnull,type:uuid"`
	UserID           uuid.UUID   `bun:"user_id,notnull,type:uuid"`
	RatedMessageID   *uuid.UUID  `bun:"rated_message_id,type:uuid"`
	Rating           *int        `bun:"rating"`
	RankedMessageIDs StringArray `bun:"ranked_message_ids,type:text[]"`
	CreatedAt        time.Time   `bun:"created_at,notnull,default:current_timestamp"`
}

func (MessageReactionModel) TableName() string { return "tree_message_reactions" }

func (r *MessageReactionModel) BeforeInsert(ctx interface{}) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// IsRanking reports whether the reaction carries a ranking payload.
func (r *MessageReactionModel) IsRanking() bool {
	return len(r.RankedMessageIDs) > 0
}

// MessageEmbeddingModel is the best-effort embedding vector for a message
// (supplemented entity, see the REST surface). It carries no business
// logic; the purge cascade targets it directly.
type MessageEmbeddingModel struct {
	bun.BaseModel `bun:"table:tree_message_embeddings,alias:me"`

	MessageID uuid.UUID `bun:"message_id,pk,type:uuid"`
	Vector    JSONBMap  `bun:"vector,type:jsonb,notnull,default:'{}'"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (MessageEmbeddingModel) TableName() string { return "tree_message_embeddings" }

// MessageToxicityModel is the best-effort toxicity score for a message.
type MessageToxicityModel struct {
	bun.BaseModel `bun:"table:tree_message_toxicity,alias:mt"`

	MessageID uuid.UUID `bun:"message_id,pk,type:uuid"`
	Label     string    `bun:"label,notnull"`
	Score     float64   `bun:"score,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (MessageToxicityModel) TableName() string { return "tree_message_toxicity" }
