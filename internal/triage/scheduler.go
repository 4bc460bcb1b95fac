// Package triage periodically scans buffered group-chat traffic and surfaces
// at most one reply-worthy message per chat per sweep. The sweep path is
// fully independent of the main queue/worker path: replies here are
// fire-and-forget, and a failure in one chat never blocks the next.
package triage

import (
	"context"
	"log"
	"time"

	"github.com/kodikhq/switchboard/pkg/switchboard"
)

// Classifier picks at most one reply-worthy message from a batch and
// generates the public reply for it.
type Classifier interface {
	ClassifyBatch(ctx context.Context, batch []switchboard.BufferedMessage) (messageID int64, ok bool, err error)
	GroupReply(ctx context.Context, bugText, botUsername string) (string, error)
}

// Deliverer sends a message to a chat, optionally as a reply.
type Deliverer interface {
	Send(ctx context.Context, chatID int64, text string, replyToMessageID int64) (int64, error)
}

// Scheduler sweeps every registered chat on a fixed interval.
type Scheduler struct {
	store       *switchboard.Client
	classifier  Classifier
	deliver     Deliverer
	botUsername string
	interval    time.Duration
	batchSize   int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler wires the scheduler to its collaborators.
func NewScheduler(store *switchboard.Client, classifier Classifier, deliver Deliverer, botUsername string, interval time.Duration, batchSize int) *Scheduler {
	return &Scheduler{
		store:       store,
		classifier:  classifier,
		deliver:     deliver,
		botUsername: botUsername,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Start launches the sweep ticker. Stop (or parent cancellation) prevents
// the next tick from being scheduled; an in-flight sweep finishes naturally.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Printf("[Triage] Started (interval=%s, batch=%d)", s.interval, s.batchSize)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[Triage] Stopped")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop cancels the ticker loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Sweep runs one triage pass over every registered chat. A store failure
// skips the whole tick; per-chat failures are logged and skipped so they do
// not block the rest of the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	chatIDs, err := s.store.GroupChatIDs(ctx)
	if err != nil {
		log.Printf("[Triage] Skipping tick, failed to read chat registry: %v", err)
		return
	}

	for _, chatID := range chatIDs {
		if err := s.sweepChat(ctx, chatID); err != nil {
			log.Printf("[Triage] Error sweeping chat %d: %v", chatID, err)
		}
	}
}

func (s *Scheduler) sweepChat(ctx context.Context, chatID int64) error {
	batch, err := s.store.PopGroupBatch(ctx, chatID, s.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	messageID, ok, err := s.classifier.ClassifyBatch(ctx, batch)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var target *switchboard.BufferedMessage
	for i := range batch {
		if batch[i].MessageID == messageID {
			target = &batch[i]
			break
		}
	}
	if target == nil {
		// Classifier hallucinated an id outside the batch
		log.Printf("[Triage] Flagged message %d not in batch for chat %d", messageID, chatID)
		return nil
	}

	reply, err := s.classifier.GroupReply(ctx, target.Text, s.botUsername)
	if err != nil {
		return err
	}

	if _, err := s.deliver.Send(ctx, chatID, reply, target.MessageID); err != nil {
		return err
	}

	log.Printf("[Triage] Replied to message %d in chat %d", target.MessageID, chatID)
	return nil
}
