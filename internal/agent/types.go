// Package agent implements the conversational agent collaborator: an LLM
// tool loop with a knowledge-base lookup and a human-escalation tool.
//
// Suspension is an explicit state machine rather than a language-level
// primitive: when the escalate tool fires, the conversation snapshot is
// persisted under its thread id and the invocation returns a suspended
// result. Resume reloads the snapshot, injects the human answer as the tool
// result, and continues the loop. The observable contract is one suspend
// signal per invocation, one resume value, and a checkpoint keyed by thread
// id.
package agent

// ChatMessage is one entry in a thread transcript.
type ChatMessage struct {
	Role       string     `json:"role"` // system, user, assistant, or tool
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool results
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant tool requests
}

// ToolCall is a tool request recorded on an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Result is the terminal output of one agent invocation. When Suspended is
// true the turn is not complete: the conversation is parked awaiting a human
// answer to SuspendedQuestion.
type Result struct {
	Messages          []ChatMessage
	Suspended         bool
	SuspendedQuestion string
}

// snapshot is the persisted form of a suspended conversation: the transcript
// up to and including the escalating tool call, plus the call awaiting its
// result.
type snapshot struct {
	Transcript []ChatMessage `json:"transcript"`
	ToolCallID string        `json:"tool_call_id"`
	Question   string        `json:"question"`
}

// LastAssistantText returns the content of the last assistant message that
// carries no tool calls, or "" when the transcript holds none.
func LastAssistantText(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == "assistant" && len(m.ToolCalls) == 0 && m.Content != "" {
			return m.Content
		}
	}
	return ""
}
