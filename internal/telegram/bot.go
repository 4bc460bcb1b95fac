// Package telegram is the chat transport: the producer side that turns
// Telegram updates into queue jobs, and the delivery side used by the worker
// pool and the triage scheduler to send messages back out.
//
// The update handler does no agent work itself. Every user message is
// enqueued and the handler returns immediately; processing happens in the
// worker pool.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/kodikhq/switchboard/pkg/switchboard"
)

// confirmForwarded acknowledges a consumed admin reply in the admin group.
const confirmForwarded = "✓ Reply forwarded to user."

// Bot connects to Telegram via long polling and routes updates into the
// shared store.
type Bot struct {
	bot          *telego.Bot
	store        *switchboard.Client
	adminGroupID int64
	botUsername  string
	relayMode    bool // enqueue admin_reply instead of resume
}

// New creates the transport. botUsername is the bot's public @username
// without the leading @; it gates which group messages start a real turn
// versus landing in the triage buffer.
func New(token string, store *switchboard.Client, adminGroupID int64, botUsername, adminReplyMode string, opts ...telego.BotOption) (*Bot, error) {
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Bot{
		bot:          bot,
		store:        store,
		adminGroupID: adminGroupID,
		botUsername:  strings.TrimPrefix(botUsername, "@"),
		relayMode:    adminReplyMode == "relay",
	}, nil
}

// Run starts long polling and blocks until ctx is cancelled or the update
// stream closes.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	log.Printf("[Telegram] Connected, polling for updates")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	var err error
	switch {
	case msg.Chat.ID == b.adminGroupID:
		err = b.handleAdminGroup(ctx, msg)
	case msg.Chat.Type == "group" || msg.Chat.Type == "supergroup":
		err = b.handleGroup(ctx, msg)
	default:
		err = b.handleDirect(ctx, msg)
	}
	if err != nil {
		log.Printf("[Telegram] Error handling message %d in chat %d: %v", msg.MessageID, msg.Chat.ID, err)
	}
}

// handleAdminGroup consumes replies to escalation cards. A reply whose
// parent is not a tracked escalation is an unrelated group message and is
// ignored silently.
func (b *Bot) handleAdminGroup(ctx context.Context, msg *telego.Message) error {
	if msg.ReplyToMessage == nil {
		return nil
	}

	handle := int64(msg.ReplyToMessage.MessageID)
	pending, err := b.store.ConsumePending(ctx, handle)
	if err != nil {
		return fmt.Errorf("failed to consume pending escalation: %w", err)
	}
	if pending == nil {
		return nil
	}

	reply := strings.TrimSpace(msg.Text)
	job := &switchboard.Job{
		Kind:       switchboard.JobKindResume,
		ThreadID:   pending.ThreadID,
		UserChatID: pending.UserChatID,
		HumanReply: reply,
	}
	if b.relayMode {
		job = &switchboard.Job{
			Kind:           switchboard.JobKindAdminReply,
			ThreadID:       pending.ThreadID,
			ChatID:         pending.UserChatID,
			UserID:         pending.UserID,
			AdminReplyText: reply,
		}
	}

	if err := b.store.EnqueueJob(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", job.Kind, err)
	}
	log.Printf("[Telegram] Queued %s for thread %s (handle %d)", job.Kind, pending.ThreadID, handle)

	confirm := tu.Message(tu.ID(b.adminGroupID), confirmForwarded)
	confirm.ReplyParameters = &telego.ReplyParameters{MessageID: msg.MessageID}
	if _, err := b.bot.SendMessage(ctx, confirm); err != nil {
		log.Printf("[Telegram] Failed to confirm forwarded reply: %v", err)
	}
	return nil
}

// handleGroup buffers unsolicited group traffic for triage. Messages that
// mention the bot are treated as direct questions and start a real turn.
func (b *Bot) handleGroup(ctx context.Context, msg *telego.Message) error {
	if MentionsBot(msg.Text, msg.Entities, b.botUsername) {
		return b.handleDirect(ctx, msg)
	}
	return b.store.PushGroupMessage(ctx, msg.Chat.ID, int64(msg.MessageID), msg.From.ID, msg.Text)
}

// handleDirect enqueues a conversation turn for a private message or a
// group mention.
func (b *Bot) handleDirect(ctx context.Context, msg *telego.Message) error {
	text := strings.TrimSpace(msg.Text)

	if text == "/reset" || text == "/reset@"+b.botUsername {
		return b.handleReset(ctx, msg)
	}

	threadID, err := b.store.ThreadForUser(ctx, msg.From.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve thread for user %d: %w", msg.From.ID, err)
	}

	// Acknowledge receipt so the user isn't left staring at nothing
	if err := b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(msg.Chat.ID), telego.ChatActionTyping)); err != nil {
		log.Printf("[Telegram] Failed to send typing action to chat %d: %v", msg.Chat.ID, err)
	}

	isGroup := msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"
	job := &switchboard.Job{
		Kind:     switchboard.JobKindNewTurn,
		UserID:   msg.From.ID,
		ChatID:   msg.Chat.ID,
		ThreadID: threadID,
		Text:     text,
	}
	if isGroup {
		// Reply threading keeps the answer attached to the question in a
		// busy group
		job.ReplyToMessageID = int64(msg.MessageID)
	}

	if err := b.store.EnqueueJob(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue turn: %w", err)
	}
	return nil
}

func (b *Bot) handleReset(ctx context.Context, msg *telego.Message) error {
	if _, err := b.store.ResetThread(ctx, msg.From.ID); err != nil {
		return fmt.Errorf("failed to reset thread for user %d: %w", msg.From.ID, err)
	}
	_, err := b.Send(ctx, msg.Chat.ID, "Conversation history has been reset.", 0)
	return err
}

// Send delivers text to a chat, optionally as a reply, and returns the sent
// message id.
func (b *Bot) Send(ctx context.Context, chatID int64, text string, replyToMessageID int64) (int64, error) {
	params := tu.Message(tu.ID(chatID), text)
	if replyToMessageID != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: int(replyToMessageID)}
	}

	sent, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return int64(sent.MessageID), nil
}

// Notify posts an escalation card to the admin group and returns the card's
// message id. That id is the correlation handle: an admin answers by
// replying to the card, and the reply handler looks the handle up to find
// the suspended conversation.
func (b *Bot) Notify(ctx context.Context, question, threadID string) (int64, error) {
	sent, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(b.adminGroupID), EscalationCard(question, threadID)))
	if err != nil {
		return 0, fmt.Errorf("failed to post escalation to admin group: %w", err)
	}
	return int64(sent.MessageID), nil
}

// EscalationCard formats the admin-group message for an escalated question.
func EscalationCard(question, threadID string) string {
	return fmt.Sprintf("🆘 Escalation from %s\n\n%s\n\n↩️ Reply to this message to answer the user.", threadID, question)
}

// MentionsBot reports whether any mention entity in text targets username.
// Entity offsets count UTF-16 code units, so the text is re-encoded before
// slicing; out-of-range entities are skipped rather than trusted.
func MentionsBot(text string, entities []telego.MessageEntity, username string) bool {
	if username == "" {
		return false
	}

	var units []uint16
	for _, e := range entities {
		if e.Type != "mention" {
			continue
		}
		if units == nil {
			units = utf16.Encode([]rune(text))
		}
		end := e.Offset + e.Length
		if e.Offset < 0 || end > len(units) {
			continue
		}
		mention := strings.TrimPrefix(string(utf16.Decode(units[e.Offset:end])), "@")
		if strings.EqualFold(mention, username) {
			return true
		}
	}
	return false
}
