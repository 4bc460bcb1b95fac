package switchboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for queue entries and Redis hashes
//
// Jobs and buffered messages travel through Redis lists as single JSON
// documents. Pending escalations are stored as hashes (string-to-string
// maps) so individual fields stay inspectable with redis-cli.

// EncodeJob serializes a job for the queue. The job is validated first so a
// malformed job is rejected at the producer, not discovered by a consumer.
func EncodeJob(j *Job) (string, error) {
	if err := j.Validate(); err != nil {
		return "", fmt.Errorf("invalid job: %w", err)
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return string(raw), nil
}

// DecodeJob deserializes a queue entry. Returns an error for malformed JSON
// or an unknown kind; consumers log and drop such entries.
func DecodeJob(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if err := j.Kind.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// PendingToHash converts a pending escalation to Redis hash fields.
func PendingToHash(p *EscalationPending) map[string]interface{} {
	return map[string]interface{}{
		"handle":        p.Handle,
		"thread_id":     p.ThreadID,
		"user_chat_id":  p.UserChatID,
		"user_id":       p.UserID,
		"question":      p.Question,
		"created_at_ms": p.CreatedAtMs,
	}
}

// HashToPending converts Redis hash fields back to an EscalationPending.
func HashToPending(hash map[string]string) (*EscalationPending, error) {
	handle, err := strconv.ParseInt(hash["handle"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid handle field: %w", err)
	}

	userChatID, err := strconv.ParseInt(hash["user_chat_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user_chat_id field: %w", err)
	}

	// user_id and created_at_ms are informational; tolerate absence
	userID, _ := strconv.ParseInt(hash["user_id"], 10, 64)
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &EscalationPending{
		Handle:      handle,
		ThreadID:    hash["thread_id"],
		UserChatID:  userChatID,
		UserID:      userID,
		Question:    hash["question"],
		CreatedAtMs: createdAtMs,
	}, nil
}

// EncodeBufferedMessage serializes a buffered group message for the buffer
// list.
func EncodeBufferedMessage(m *BufferedMessage) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal buffered message: %w", err)
	}
	return string(raw), nil
}

// DecodeBufferedMessage deserializes a buffer list entry.
func DecodeBufferedMessage(raw string) (*BufferedMessage, error) {
	var m BufferedMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal buffered message: %w", err)
	}
	return &m, nil
}
