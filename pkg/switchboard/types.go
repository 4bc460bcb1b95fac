// Package switchboard provides type-safe Go definitions and Redis schema
// patterns for the switchboard shared store. The store is the only mutable
// state shared between producers (the chat transport), the worker pool, and
// the triage scheduler: the job queue, the escalation correlation table, the
// group message buffers, and per-user thread sessions all live here.
//
// All Redis keys are namespaced by instance name so multiple switchboard
// deployments can safely share a single Redis server.
package switchboard

import (
	"fmt"
	"time"
)

// JobKind discriminates the job variants on the queue.
// A job with an unknown kind is dropped with a warning by the consumer,
// never crashes it.
type JobKind string

const (
	// JobKindNewTurn is a fresh inbound message from a user starting or
	// continuing a conversation turn.
	JobKindNewTurn JobKind = "new_turn"

	// JobKindResume carries a human answer back into a suspended
	// conversation, continuing the interrupted agent call.
	JobKindResume JobKind = "resume"

	// JobKindAdminReply carries a human answer that is injected as a new
	// conversation message instead of resuming the interrupted call, and is
	// relayed to the user marked as a support-team answer.
	JobKindAdminReply JobKind = "admin_reply"
)

// Job is a unit of work pulled from the queue. Kind selects which of the
// remaining fields are required; see Validate.
type Job struct {
	Kind JobKind `json:"kind"`

	// NewTurn fields
	UserID           int64  `json:"user_id,omitempty"`
	ChatID           int64  `json:"chat_id,omitempty"`
	ThreadID         string `json:"thread_id,omitempty"`
	Text             string `json:"text,omitempty"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
	IsAdminChat      bool   `json:"is_admin_chat,omitempty"`

	// Resume fields (ThreadID shared with NewTurn)
	UserChatID int64  `json:"user_chat_id,omitempty"`
	HumanReply string `json:"human_reply,omitempty"`

	// AdminReply fields (ThreadID, ChatID, UserID shared)
	AdminReplyText string `json:"admin_reply_text,omitempty"`
}

// EscalationPending links an outbound escalation message to the suspended
// conversation that produced it. Rows are keyed by Handle (the id of the
// message sent to the human operators), consumed exactly once by the first
// matched reply, and expire after PendingTTL if never answered.
type EscalationPending struct {
	Handle      int64  `json:"handle"`
	ThreadID    string `json:"thread_id"`
	UserChatID  int64  `json:"user_chat_id"`
	UserID      int64  `json:"user_id"`
	Question    string `json:"question"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// BufferedMessage is one entry in a chat's group buffer, awaiting the next
// triage sweep.
type BufferedMessage struct {
	MessageID int64  `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Text      string `json:"text"`
}

// ThreadSession records a user's single active conversation thread. The
// thread id is the correlation key the agent uses for conversation
// continuity. Sessions are replaced wholesale on reset, never mutated.
type ThreadSession struct {
	UserID      int64  `json:"user_id"`
	ThreadID    string `json:"thread_id"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// Store-wide retention and sizing constants.
const (
	// PendingTTL bounds how long an unanswered escalation stays claimable.
	// A human reply after expiry is treated as an ordinary, uncorrelated
	// message.
	PendingTTL = 72 * time.Hour

	// BufferTTL and SeenTTL bound group buffers for chats that go quiet.
	BufferTTL = 24 * time.Hour
	SeenTTL   = 24 * time.Hour

	// BufferMax caps each chat's buffer; pushes beyond it evict the oldest
	// entries first.
	BufferMax = 200

	// TranscriptTTL is the retention window for per-thread agent
	// transcripts. A reset makes the old transcript unreachable; this TTL
	// eventually reclaims it.
	TranscriptTTL = 7 * 24 * time.Hour
)

// Validate checks if the JobKind is a known variant.
func (k JobKind) Validate() error {
	switch k {
	case JobKindNewTurn, JobKindResume, JobKindAdminReply:
		return nil
	default:
		return fmt.Errorf("unknown job kind: %q", k)
	}
}

// Validate checks the kind-specific required fields.
func (j *Job) Validate() error {
	if err := j.Kind.Validate(); err != nil {
		return err
	}

	switch j.Kind {
	case JobKindNewTurn:
		if j.UserID == 0 || j.ChatID == 0 {
			return fmt.Errorf("new_turn job requires user_id and chat_id")
		}
		if j.ThreadID == "" {
			return fmt.Errorf("new_turn job requires thread_id")
		}
		if j.Text == "" {
			return fmt.Errorf("new_turn job requires text")
		}
	case JobKindResume:
		if j.ThreadID == "" {
			return fmt.Errorf("resume job requires thread_id")
		}
		if j.UserChatID == 0 {
			return fmt.Errorf("resume job requires user_chat_id")
		}
		if j.HumanReply == "" {
			return fmt.Errorf("resume job requires human_reply")
		}
	case JobKindAdminReply:
		if j.ThreadID == "" {
			return fmt.Errorf("admin_reply job requires thread_id")
		}
		if j.ChatID == 0 {
			return fmt.Errorf("admin_reply job requires chat_id")
		}
		if j.AdminReplyText == "" {
			return fmt.Errorf("admin_reply job requires admin_reply_text")
		}
	}

	return nil
}

// Validate checks the EscalationPending required fields.
func (p *EscalationPending) Validate() error {
	if p.Handle == 0 {
		return fmt.Errorf("pending escalation requires a non-zero handle")
	}
	if p.ThreadID == "" {
		return fmt.Errorf("pending escalation requires thread_id")
	}
	if p.UserChatID == 0 {
		return fmt.Errorf("pending escalation requires user_chat_id")
	}
	if p.Question == "" {
		return fmt.Errorf("pending escalation requires a question")
	}
	return nil
}
