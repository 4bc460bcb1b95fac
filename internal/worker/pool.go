// Package worker runs the fixed-size consumer pool that drains the shared
// job queue and dispatches each job to its handler. Workers hold no
// conversation state between jobs: every job carries its full context, so
// any number of pool processes can share one store.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kodikhq/switchboard/internal/agent"
	"github.com/kodikhq/switchboard/pkg/switchboard"
)

// dequeueTimeout bounds each blocking pop so the loop can re-check for
// shutdown between jobs.
const dequeueTimeout = 5 * time.Second

// Agent is the conversational collaborator invoked for every job.
type Agent interface {
	Invoke(ctx context.Context, threadID, userText string) (*agent.Result, error)
	Resume(ctx context.Context, threadID, humanReply string) (*agent.Result, error)
}

// Deliverer sends a message to a chat, optionally as a reply, and returns
// the delivery id.
type Deliverer interface {
	Send(ctx context.Context, chatID int64, text string, replyToMessageID int64) (int64, error)
}

// Notifier delivers an escalation question to the human operators and
// returns the outbound handle later matched against their reply.
type Notifier interface {
	Notify(ctx context.Context, question, threadID string) (int64, error)
}

// ExchangeLogger persists exchanges and escalations. All calls are
// fire-and-forget from the pool's perspective: failures are logged and
// never fail the user-visible turn.
type ExchangeLogger interface {
	LogExchange(ctx context.Context, userID, chatID int64, threadID, userText, aiResponse string) error
	CreateEscalation(ctx context.Context, threadID string, userChatID int64, question string, handle int64) error
	ResolveEscalation(ctx context.Context, threadID, adminReply string) error
}

// Pool owns numWorkers independent consumer loops over the shared queue.
type Pool struct {
	store      *switchboard.Client
	agent      Agent
	deliver    Deliverer
	notify     Notifier
	exlog      ExchangeLogger
	numWorkers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool wires the pool to its collaborators.
func NewPool(store *switchboard.Client, ag Agent, deliver Deliverer, notify Notifier, exlog ExchangeLogger, numWorkers int) *Pool {
	return &Pool{
		store:      store,
		agent:      ag,
		deliver:    deliver,
		notify:     notify,
		exlog:      exlog,
		numWorkers: numWorkers,
	}
}

// Start spawns all worker loops. The pool stops when Stop is called or the
// parent context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
	log.Printf("[WorkerPool] Started (%d workers)", p.numWorkers)
}

// Stop cancels every worker loop and waits for all of them to finish. A job
// in flight runs to completion; no loop survives the pool.
func (p *Pool) Stop() {
	log.Printf("[WorkerPool] Shutting down...")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	log.Printf("[WorkerPool] Stopped")
}

// workerLoop is a single consumer: dequeue, dispatch, repeat. Handler
// faults are caught here so a single bad job never terminates the loop;
// store errors are logged and retried on the next iteration.
func (p *Pool) workerLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	log.Printf("[Worker %d] Started", workerID)

	for {
		job, err := p.store.DequeueJob(ctx, dequeueTimeout)
		if ctx.Err() != nil {
			log.Printf("[Worker %d] Cancelled", workerID)
			return
		}
		if err != nil {
			log.Printf("[Worker %d] Dequeue error: %v", workerID, err)
			continue
		}
		if job == nil {
			continue // pop timeout, loop back for the shutdown check
		}

		p.process(ctx, workerID, job)
	}
}

// process dispatches one job, absorbing any fault at this boundary.
func (p *Pool) process(ctx context.Context, workerID int, job *switchboard.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker %d] Recovered from panic in %s handler: %v", workerID, job.Kind, r)
		}
	}()

	var err error
	switch job.Kind {
	case switchboard.JobKindNewTurn:
		err = p.handleNewTurn(ctx, job)
	case switchboard.JobKindResume:
		err = p.handleResume(ctx, job)
	case switchboard.JobKindAdminReply:
		err = p.handleAdminReply(ctx, job)
	default:
		log.Printf("[Worker %d] Unknown job kind %q, dropping", workerID, job.Kind)
		return
	}

	if err != nil {
		log.Printf("[Worker %d] Error processing %s job for thread %s: %v", workerID, job.Kind, job.ThreadID, err)
	}
}
