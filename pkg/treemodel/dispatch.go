package treemodel

// TaskKind groups the concrete payload types into the five buckets the
// weighted random picker draws from.
type TaskKind string

const (
	TaskKindPrompt      TaskKind = "prompt"
	TaskKindReply       TaskKind = "reply"
	TaskKindLabelPrompt TaskKind = "label_prompt"
	TaskKindLabelReply  TaskKind = "label_reply"
	TaskKindRanking     TaskKind = "ranking"
	// TaskKindRandom is the wildcard a caller passes to let the dispatcher
	// weigh all kinds with nonzero availability.
	TaskKindRandom TaskKind = "random"
)

// DispatchWeights are the relative weights of the weighted random draw.
// Kinds with zero availability contribute zero weight regardless of their
// entry here.
var DispatchWeights = map[TaskKind]int{
	TaskKindRanking:     10,
	TaskKindLabelReply:  5,
	TaskKindLabelPrompt: 5,
	TaskKindReply:       2,
	TaskKindPrompt:      1,
}

// Submission is the discriminated union of worker interaction payloads the
// interaction handler dispatches on. Exactly one concrete type below
// satisfies it.
type Submission interface {
	isSubmission()
}

// TextReplyToMessage is a worker's authored message (root prompt or reply).
type TextReplyToMessage struct {
	TaskID   string
	ParentID *string
	UserID   string
	Text     string
	Lang     string
}

func (TextReplyToMessage) isSubmission() {}

// MessageRating is a worker's scalar rating of a message; it has no
// state-machine side effect.
type MessageRating struct {
	TaskID    string
	MessageID string
	UserID    string
	Rating    int
}

func (MessageRating) isSubmission() {}

// MessageRanking is a worker's ordering of a parent's sibling replies.
type MessageRanking struct {
	TaskID           string
	MessageID        string // the ranked parent
	UserID           string
	RankedMessageIDs []string
}

func (MessageRanking) isSubmission() {}

// TextLabelsSubmission is a worker's label submission on a message.
type TextLabelsSubmission struct {
	TaskID    string
	MessageID string
	UserID    string
	Labels    map[string]float64
}

func (TextLabelsSubmission) isSubmission() {}
