package switchboard

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{
			name: "valid new turn",
			job:  Job{Kind: JobKindNewTurn, UserID: 1, ChatID: 2, ThreadID: "t", Text: "hi"},
		},
		{
			name: "valid resume",
			job:  Job{Kind: JobKindResume, ThreadID: "t", UserChatID: 2, HumanReply: "answer"},
		},
		{
			name: "valid admin reply",
			job:  Job{Kind: JobKindAdminReply, ThreadID: "t", ChatID: 2, UserID: 1, AdminReplyText: "answer"},
		},
		{
			name:    "unknown kind",
			job:     Job{Kind: "mystery"},
			wantErr: "unknown job kind",
		},
		{
			name:    "new turn without text",
			job:     Job{Kind: JobKindNewTurn, UserID: 1, ChatID: 2, ThreadID: "t"},
			wantErr: "requires text",
		},
		{
			name:    "resume without reply",
			job:     Job{Kind: JobKindResume, ThreadID: "t", UserChatID: 2},
			wantErr: "requires human_reply",
		},
		{
			name:    "admin reply without chat",
			job:     Job{Kind: JobKindAdminReply, ThreadID: "t", AdminReplyText: "x"},
			wantErr: "requires chat_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestJobCodec(t *testing.T) {
	t.Run("round trips a new turn job", func(t *testing.T) {
		job := &Job{
			Kind:             JobKindNewTurn,
			UserID:           7,
			ChatID:           8,
			ThreadID:         "thread-7",
			Text:             "help me",
			ReplyToMessageID: 55,
			IsAdminChat:      true,
		}

		raw, err := EncodeJob(job)
		require.NoError(t, err)

		got, err := DecodeJob(raw)
		require.NoError(t, err)
		assert.Equal(t, job, got)
	})

	t.Run("decode rejects unknown kind", func(t *testing.T) {
		_, err := DecodeJob(`{"kind":"telepathy"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown job kind")
	})

	t.Run("decode rejects malformed JSON", func(t *testing.T) {
		_, err := DecodeJob("{oops")
		assert.Error(t, err)
	})
}

func TestPendingHashCodec(t *testing.T) {
	t.Run("round trips through hash fields", func(t *testing.T) {
		p := &EscalationPending{
			Handle:      321,
			ThreadID:    "thread-z",
			UserChatID:  44,
			UserID:      9,
			Question:    "what now?",
			CreatedAtMs: 1700000000000,
		}

		hash := PendingToHash(p)
		asStrings := make(map[string]string, len(hash))
		for k, v := range hash {
			asStrings[k] = toString(t, v)
		}

		got, err := HashToPending(asStrings)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("rejects a hash without a handle", func(t *testing.T) {
		_, err := HashToPending(map[string]string{"thread_id": "t"})
		assert.Error(t, err)
	})
}

func toString(t *testing.T, v interface{}) string {
	t.Helper()
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		t.Fatalf("unexpected hash value type %T", v)
		return ""
	}
}
