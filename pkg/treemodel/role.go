package treemodel

// Role is a participant role in a conversation tree. Children of a
// prompter message are always assistant messages, and vice versa.
type Role string

const (
	RolePrompter  Role = "prompter"
	RoleAssistant Role = "assistant"
)

// Other returns the role a child of a message with role r must have.
func (r Role) Other() Role {
	if r == RolePrompter {
		return RoleAssistant
	}
	return RolePrompter
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePrompter || r == RoleAssistant
}

// PayloadType names the kind of task descriptor the dispatcher produced.
type PayloadType string

const (
	PayloadInitialPrompt    PayloadType = "initial_prompt"
	PayloadPrompterReply    PayloadType = "prompter_reply"
	PayloadAssistantReply   PayloadType = "assistant_reply"
	PayloadRankPrompter     PayloadType = "rank_prompter_replies"
	PayloadRankAssistant    PayloadType = "rank_assistant_replies"
	PayloadLabelInitial     PayloadType = "label_initial_prompt"
	PayloadLabelPrompter    PayloadType = "label_prompter_reply"
	PayloadLabelAssistant   PayloadType = "label_assistant_reply"
)
