package switchboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the switchboard
// store. All keys are automatically namespaced with the instance name.
// The client is safe for concurrent use from multiple goroutines; it holds
// no conversation state of its own.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// consumePendingScript atomically reads and deletes a pending escalation
// hash. At most one caller ever observes the hash contents, even under
// concurrent delivery of the same human reply.
var consumePendingScript = redis.NewScript(`
local data = redis.call('HGETALL', KEYS[1])
if #data == 0 then
  return false
end
redis.call('DEL', KEYS[1])
return data
`)

// NewClient creates a switchboard client for the given instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: deployment identifier (must not be empty)
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// EnqueueJob appends a job to the tail of the shared queue. Never blocks on
// capacity. This is the sole injection point into the core.
func (c *Client) EnqueueJob(ctx context.Context, job *Job) error {
	raw, err := EncodeJob(job)
	if err != nil {
		return err
	}

	if err := c.rdb.RPush(ctx, QueueKey(c.instanceName), raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// DequeueJob blocks the calling goroutine until a queue entry is available
// or the timeout elapses, returning (nil, nil) on timeout so the caller can
// re-check for shutdown. BLPOP is atomic across consumers: concurrent
// callers each receive a distinct entry.
//
// Once popped, a job is gone — there is no acknowledgment or redelivery. A
// crash between pop and completion loses the job (at-least-once up to the
// pop, at-most-once after it).
func (c *Client) DequeueJob(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := c.rdb.BLPop(ctx, timeout, QueueKey(c.instanceName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// BLPOP returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of length %d", len(result))
	}

	job, err := DecodeJob(result[1])
	if err != nil {
		return nil, fmt.Errorf("dropping malformed queue entry: %w", err)
	}
	return job, nil
}

// QueueLength returns the number of jobs currently waiting on the queue.
func (c *Client) QueueLength(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, QueueKey(c.instanceName)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// RegisterPending records the mapping from an outbound escalation handle to
// its suspended conversation context. Idempotent upsert: re-registering the
// same handle overwrites the row and resets its TTL.
func (c *Client) RegisterPending(ctx context.Context, p *EscalationPending) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pending escalation: %w", err)
	}

	key := PendingKey(c.instanceName, p.Handle)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, PendingToHash(p))
	pipe.Expire(ctx, key, PendingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register pending escalation: %w", err)
	}
	return nil
}

// ConsumePending atomically retrieves and deletes the pending escalation for
// the given handle. Returns (nil, nil) when there is nothing to consume —
// not a tracked escalation, already handled, or expired. Callers must treat
// that as a no-op, not an error: it may simply be an unrelated reply in the
// same channel.
func (c *Client) ConsumePending(ctx context.Context, handle int64) (*EscalationPending, error) {
	key := PendingKey(c.instanceName, handle)
	result, err := consumePendingScript.Run(ctx, c.rdb, []string{key}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending escalation: %w", err)
	}

	// The script returns a flat [field, value, ...] array
	flat, ok := result.([]interface{})
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("unexpected consume reply type %T", result)
	}

	hash := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		field, _ := flat[i].(string)
		value, _ := flat[i+1].(string)
		hash[field] = value
	}

	pending, err := HashToPending(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize pending escalation: %w", err)
	}
	return pending, nil
}

// PushGroupMessage appends a group message to the chat's buffer and
// registers the chat for the next triage sweep. Messages already in the
// chat's seen set (edited or duplicate deliveries) are a no-op. The buffer
// is capped at BufferMax entries, oldest evicted first, and both the buffer
// and the seen set have their TTL refreshed on every push.
func (c *Client) PushGroupMessage(ctx context.Context, chatID, messageID, userID int64, text string) error {
	seenKey := SeenKey(c.instanceName, chatID)

	seen, err := c.rdb.SIsMember(ctx, seenKey, messageID).Result()
	if err != nil {
		return fmt.Errorf("failed to check seen set: %w", err)
	}
	if seen {
		return nil
	}

	payload, err := EncodeBufferedMessage(&BufferedMessage{
		MessageID: messageID,
		UserID:    userID,
		Text:      text,
	})
	if err != nil {
		return err
	}

	bufKey := BufferKey(c.instanceName, chatID)
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, seenKey, messageID)
	pipe.Expire(ctx, seenKey, SeenTTL)
	pipe.RPush(ctx, bufKey, payload)
	pipe.LTrim(ctx, bufKey, -int64(BufferMax), -1)
	pipe.Expire(ctx, bufKey, BufferTTL)
	pipe.SAdd(ctx, ChatRegistryKey(c.instanceName), chatID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push group message: %w", err)
	}
	return nil
}

// PopGroupBatch takes up to size of the oldest buffered messages for a chat.
// When the pop drains the buffer, the chat is removed from the registry so
// idle chats cost nothing on future sweeps.
func (c *Client) PopGroupBatch(ctx context.Context, chatID int64, size int) ([]BufferedMessage, error) {
	if size <= 0 {
		return nil, nil
	}

	bufKey := BufferKey(c.instanceName, chatID)
	pipe := c.rdb.TxPipeline()
	rangeCmd := pipe.LRange(ctx, bufKey, 0, int64(size-1))
	pipe.LTrim(ctx, bufKey, int64(size), -1)
	lenCmd := pipe.LLen(ctx, bufKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to pop group batch: %w", err)
	}

	raws := rangeCmd.Val()
	if lenCmd.Val() == 0 {
		if err := c.rdb.SRem(ctx, ChatRegistryKey(c.instanceName), chatID).Err(); err != nil {
			return nil, fmt.Errorf("failed to deregister drained chat: %w", err)
		}
	}

	batch := make([]BufferedMessage, 0, len(raws))
	for _, raw := range raws {
		msg, err := DecodeBufferedMessage(raw)
		if err != nil {
			// Skip the malformed entry, keep the rest of the batch
			continue
		}
		batch = append(batch, *msg)
	}
	return batch, nil
}

// GroupChatIDs returns every chat id currently registered as having
// buffered traffic.
func (c *Client) GroupChatIDs(ctx context.Context) ([]int64, error) {
	members, err := c.rdb.SMembers(ctx, ChatRegistryKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat registry: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			// Skip the corrupt member, keep sweeping the healthy chats
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ThreadForUser returns the user's active thread id, lazily creating a
// fresh session on first contact. Concurrent first contacts race on
// HSETNX; exactly one generated id wins and all callers observe it.
func (c *Client) ThreadForUser(ctx context.Context, userID int64) (string, error) {
	key := ThreadSessionKey(c.instanceName, userID)

	created, err := c.rdb.HSetNX(ctx, key, "thread_id", uuid.New().String()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to initialize thread session: %w", err)
	}
	if created {
		if err := c.rdb.HSet(ctx, key,
			"user_id", userID,
			"created_at_ms", time.Now().UnixMilli(),
		).Err(); err != nil {
			return "", fmt.Errorf("failed to initialize thread session: %w", err)
		}
	}

	threadID, err := c.rdb.HGet(ctx, key, "thread_id").Result()
	if err != nil {
		return "", fmt.Errorf("failed to read thread session: %w", err)
	}
	return threadID, nil
}

// ResetThread atomically replaces the user's session with a freshly
// generated thread id. The old thread and its agent-side checkpoint become
// unreachable; TranscriptTTL eventually reclaims the checkpoint.
func (c *Client) ResetThread(ctx context.Context, userID int64) (string, error) {
	key := ThreadSessionKey(c.instanceName, userID)
	threadID := uuid.New().String()

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"thread_id", threadID,
		"user_id", userID,
		"created_at_ms", time.Now().UnixMilli(),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to reset thread session: %w", err)
	}
	return threadID, nil
}

// GetThreadSession retrieves a user's session record.
// Returns (nil, redis.Nil) if the user has no session yet.
func (c *Client) GetThreadSession(ctx context.Context, userID int64) (*ThreadSession, error) {
	key := ThreadSessionKey(c.instanceName, userID)
	hash, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read thread session: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}

	userIDField, err := strconv.ParseInt(hash["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id field: %w", err)
	}
	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	return &ThreadSession{
		UserID:      userIDField,
		ThreadID:    hash["thread_id"],
		CreatedAtMs: createdAtMs,
	}, nil
}

// SaveTranscript persists a thread's agent transcript checkpoint.
func (c *Client) SaveTranscript(ctx context.Context, threadID string, transcript []byte) error {
	key := TranscriptKey(c.instanceName, threadID)
	if err := c.rdb.Set(ctx, key, transcript, TranscriptTTL).Err(); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// LoadTranscript retrieves a thread's transcript checkpoint.
// Returns (nil, nil) when the thread has no checkpoint yet.
func (c *Client) LoadTranscript(ctx context.Context, threadID string) ([]byte, error) {
	key := TranscriptKey(c.instanceName, threadID)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return raw, nil
}

// SaveAwaiting persists a suspended conversation snapshot for a thread
// awaiting a human answer. The snapshot shares the escalation TTL: if no
// answer arrives inside the window, both vanish together.
func (c *Client) SaveAwaiting(ctx context.Context, threadID string, snapshot []byte) error {
	key := AwaitingKey(c.instanceName, threadID)
	if err := c.rdb.Set(ctx, key, snapshot, PendingTTL).Err(); err != nil {
		return fmt.Errorf("failed to save awaiting snapshot: %w", err)
	}
	return nil
}

// TakeAwaiting atomically retrieves and deletes a thread's suspended
// snapshot. Returns (nil, nil) when no snapshot exists.
func (c *Client) TakeAwaiting(ctx context.Context, threadID string) ([]byte, error) {
	key := AwaitingKey(c.instanceName, threadID)
	raw, err := c.rdb.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take awaiting snapshot: %w", err)
	}
	return raw, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
