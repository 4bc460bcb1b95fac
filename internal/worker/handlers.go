package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kodikhq/switchboard/internal/agent"
	"github.com/kodikhq/switchboard/pkg/switchboard"
)

// holdingAck is sent to the user when their question is parked behind a
// human escalation, so the turn does not end in silence.
const holdingAck = "Your question requires input from our team. I'll get back to you shortly! ⏳"

// supportMarker prefixes messages relayed on behalf of the support team.
const supportMarker = "💬 Support team: "

// handleNewTurn processes a fresh inbound message. When the agent escalates,
// the handler notifies the operators, records the correlation row under the
// returned handle, and acknowledges the user — the turn is deliberately left
// incomplete until the human answer arrives.
func (p *Pool) handleNewTurn(ctx context.Context, job *switchboard.Job) error {
	result, err := p.agent.Invoke(ctx, job.ThreadID, job.Text)
	if err != nil {
		return fmt.Errorf("agent invocation failed: %w", err)
	}

	if result.Suspended {
		handle, err := p.notify.Notify(ctx, result.SuspendedQuestion, job.ThreadID)
		if err != nil {
			return fmt.Errorf("failed to notify operators: %w", err)
		}

		pending := &switchboard.EscalationPending{
			Handle:      handle,
			ThreadID:    job.ThreadID,
			UserChatID:  job.ChatID,
			UserID:      job.UserID,
			Question:    result.SuspendedQuestion,
			CreatedAtMs: time.Now().UnixMilli(),
		}
		if err := p.store.RegisterPending(ctx, pending); err != nil {
			return err
		}

		if err := p.exlog.CreateEscalation(ctx, job.ThreadID, job.ChatID, result.SuspendedQuestion, handle); err != nil {
			log.Printf("[Worker] Failed to log escalation for thread %s: %v", job.ThreadID, err)
		}

		if _, err := p.deliver.Send(ctx, job.ChatID, holdingAck, 0); err != nil {
			return fmt.Errorf("failed to send holding acknowledgment: %w", err)
		}
		return nil
	}

	text := agent.LastAssistantText(result.Messages)
	if text == "" {
		// Operational concern, not a crash: the user gets no reply
		log.Printf("[Worker] No assistant reply produced for thread %s", job.ThreadID)
		return nil
	}

	if _, err := p.deliver.Send(ctx, job.ChatID, text, job.ReplyToMessageID); err != nil {
		return fmt.Errorf("failed to deliver reply: %w", err)
	}

	if err := p.exlog.LogExchange(ctx, job.UserID, job.ChatID, job.ThreadID, job.Text, text); err != nil {
		log.Printf("[Worker] Failed to log exchange for thread %s: %v", job.ThreadID, err)
	}
	return nil
}

// handleResume continues a suspended conversation with the human answer. The
// correlation row was already consumed by the producer; this handler only
// drives the agent and relays its output.
func (p *Pool) handleResume(ctx context.Context, job *switchboard.Job) error {
	result, err := p.agent.Resume(ctx, job.ThreadID, job.HumanReply)
	if err != nil {
		return fmt.Errorf("agent resume failed: %w", err)
	}

	if err := p.exlog.ResolveEscalation(ctx, job.ThreadID, job.HumanReply); err != nil {
		log.Printf("[Worker] Failed to resolve escalation for thread %s: %v", job.ThreadID, err)
	}

	text := agent.LastAssistantText(result.Messages)
	if text == "" {
		log.Printf("[Worker] No assistant reply after resume for thread %s", job.ThreadID)
		return nil
	}

	if _, err := p.deliver.Send(ctx, job.UserChatID, text, 0); err != nil {
		return fmt.Errorf("failed to deliver resumed reply: %w", err)
	}
	return nil
}

// handleAdminReply re-runs a full agent turn with the human answer injected
// as a new conversation message, then relays the result to the user marked
// as a support-team answer.
func (p *Pool) handleAdminReply(ctx context.Context, job *switchboard.Job) error {
	injected := fmt.Sprintf("Answer from the support team: %s", job.AdminReplyText)
	result, err := p.agent.Invoke(ctx, job.ThreadID, injected)
	if err != nil {
		return fmt.Errorf("agent invocation failed: %w", err)
	}

	if err := p.exlog.ResolveEscalation(ctx, job.ThreadID, job.AdminReplyText); err != nil {
		log.Printf("[Worker] Failed to resolve escalation for thread %s: %v", job.ThreadID, err)
	}

	text := agent.LastAssistantText(result.Messages)
	if text == "" {
		log.Printf("[Worker] No assistant reply for admin relay on thread %s", job.ThreadID)
		return nil
	}

	if _, err := p.deliver.Send(ctx, job.ChatID, supportMarker+text, 0); err != nil {
		return fmt.Errorf("failed to relay support answer: %w", err)
	}
	return nil
}
