package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodikhq/switchboard/pkg/switchboard"
)

type fakeClassifier struct {
	mu      sync.Mutex
	flagged map[int64]bool // message ids to flag
	batches [][]switchboard.BufferedMessage
	err     error
}

func (f *fakeClassifier) ClassifyBatch(ctx context.Context, batch []switchboard.BufferedMessage) (int64, bool, error) {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()

	if f.err != nil {
		return 0, false, f.err
	}
	for _, m := range batch {
		if f.flagged[m.MessageID] {
			return m.MessageID, true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeClassifier) GroupReply(ctx context.Context, bugText, botUsername string) (string, error) {
	return "Thanks for the report! Write to @" + botUsername, nil
}

type sentMessage struct {
	ChatID  int64
	Text    string
	ReplyTo int64
}

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeDeliverer) Send(ctx context.Context, chatID int64, text string, replyTo int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, ReplyTo: replyTo})
	return int64(len(f.sent)), nil
}

func (f *fakeDeliverer) snapshot() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func setupStore(t *testing.T) *switchboard.Client {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := switchboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("replies to the flagged message and drains the chat", func(t *testing.T) {
		store := setupStore(t)
		require.NoError(t, store.PushGroupMessage(ctx, 500, 1, 10, "anyone else seeing crashes?"))
		require.NoError(t, store.PushGroupMessage(ctx, 500, 2, 11, "editor crashes when I open a .proto file, repro: open any proto"))

		classifier := &fakeClassifier{flagged: map[int64]bool{2: true}}
		deliver := &fakeDeliverer{}
		s := NewScheduler(store, classifier, deliver, "support_bot", time.Minute, 200)

		s.Sweep(ctx)

		sent := deliver.snapshot()
		require.Len(t, sent, 1)
		assert.Equal(t, int64(500), sent[0].ChatID)
		assert.Equal(t, int64(2), sent[0].ReplyTo)
		assert.Contains(t, sent[0].Text, "@support_bot")

		// The buffer is drained and the chat deregistered
		ids, err := store.GroupChatIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("no reply when nothing qualifies", func(t *testing.T) {
		store := setupStore(t)
		require.NoError(t, store.PushGroupMessage(ctx, 501, 1, 10, "good morning"))

		classifier := &fakeClassifier{}
		deliver := &fakeDeliverer{}
		s := NewScheduler(store, classifier, deliver, "support_bot", time.Minute, 200)

		s.Sweep(ctx)
		assert.Empty(t, deliver.snapshot())
	})

	t.Run("classifier failure in one chat does not block the next", func(t *testing.T) {
		store := setupStore(t)
		require.NoError(t, store.PushGroupMessage(ctx, 502, 1, 10, "broken"))
		require.NoError(t, store.PushGroupMessage(ctx, 503, 1, 10, "also broken, here is how: step 1"))

		calls := 0
		classifier := &flakyClassifier{
			inner: &fakeClassifier{flagged: map[int64]bool{1: true}},
			failFirst: func() bool {
				calls++
				return calls == 1
			},
		}
		deliver := &fakeDeliverer{}
		s := NewScheduler(store, classifier, deliver, "support_bot", time.Minute, 200)

		s.Sweep(ctx)

		// One chat failed, the other still got its reply
		assert.Len(t, deliver.snapshot(), 1)
	})

	t.Run("flagged id outside the batch is ignored", func(t *testing.T) {
		store := setupStore(t)
		require.NoError(t, store.PushGroupMessage(ctx, 504, 1, 10, "hello"))

		classifier := &hallucinatingClassifier{}
		deliver := &fakeDeliverer{}
		s := NewScheduler(store, classifier, deliver, "support_bot", time.Minute, 200)

		s.Sweep(ctx)
		assert.Empty(t, deliver.snapshot())
	})

	t.Run("respects the batch size and keeps the remainder", func(t *testing.T) {
		store := setupStore(t)
		for i := 1; i <= 5; i++ {
			require.NoError(t, store.PushGroupMessage(ctx, 505, int64(i), 10, "msg"))
		}

		classifier := &fakeClassifier{}
		deliver := &fakeDeliverer{}
		s := NewScheduler(store, classifier, deliver, "support_bot", time.Minute, 3)

		s.Sweep(ctx)

		require.Len(t, classifier.batches, 1)
		assert.Len(t, classifier.batches[0], 3)

		// The chat stays registered for the next tick
		ids, err := store.GroupChatIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{505}, ids)
	})
}

func TestStartStop(t *testing.T) {
	store := setupStore(t)
	s := NewScheduler(store, &fakeClassifier{}, &fakeDeliverer{}, "support_bot", 10*time.Millisecond, 20)

	s.Start(context.Background())
	time.Sleep(35 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

// flakyClassifier fails selected calls to exercise per-chat error isolation.
type flakyClassifier struct {
	inner     *fakeClassifier
	failFirst func() bool
}

func (f *flakyClassifier) ClassifyBatch(ctx context.Context, batch []switchboard.BufferedMessage) (int64, bool, error) {
	if f.failFirst() {
		return 0, false, errors.New("classifier unavailable")
	}
	return f.inner.ClassifyBatch(ctx, batch)
}

func (f *flakyClassifier) GroupReply(ctx context.Context, bugText, botUsername string) (string, error) {
	return f.inner.GroupReply(ctx, bugText, botUsername)
}

// hallucinatingClassifier flags an id that is not in the batch.
type hallucinatingClassifier struct{}

func (h *hallucinatingClassifier) ClassifyBatch(ctx context.Context, batch []switchboard.BufferedMessage) (int64, bool, error) {
	return 999999, true, nil
}

func (h *hallucinatingClassifier) GroupReply(ctx context.Context, bugText, botUsername string) (string, error) {
	return "should not be called", nil
}
