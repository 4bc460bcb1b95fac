package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
	"github.com/tidwall/gjson"

	"github.com/kodikhq/switchboard/pkg/switchboard"
)

const classifierPrompt = `You are a strict classifier. You will receive a list of Telegram messages from a group chat about Kodik — an AI code editor.

Your task is to identify ONLY messages that contain a CLEAR, DETAILED bug description — meaning the user explicitly describes what went wrong, what they expected, or specific steps to reproduce the issue.

DO NOT flag:
- Vague statements like 'I found a bug', 'something is broken', 'I know one bug'
- Messages that merely mention bugs without describing them
- General complaints without specifics
- Feature requests or questions

Respond ONLY with a JSON array containing AT MOST ONE message ID — the single best, most detailed bug report in the batch. If none qualify, respond with an empty array: [].
Messages may be in Russian or English.`

const groupReplyPrompt = `You are the support bot for Kodik — an AI code editor. A user posted a bug report in a group chat. Write a short, friendly reply (2-4 sentences) in Russian regardless of the language the user wrote in. Briefly acknowledge the specific issue they described, then invite them to message you directly for more help. Mention that they can write to @%s. Do NOT use markdown formatting.`

// ClassifyBatch asks the model which buffered message, if any, is a
// reply-worthy bug report. Returns (id, true) for at most one message.
func (l *LLM) ClassifyBatch(ctx context.Context, batch []switchboard.BufferedMessage) (int64, bool, error) {
	if len(batch) == 0 {
		return 0, false, nil
	}

	var sb strings.Builder
	sb.WriteString("Messages:\n")
	for _, m := range batch {
		fmt.Fprintf(&sb, "[id=%d] %s\n", m.MessageID, truncateRunes(m.Text, 300))
	}
	sb.WriteString("\nReturn JSON array of qualifying message IDs.")

	completion, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(l.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierPrompt),
			openai.UserMessage(sb.String()),
		},
	})
	if err != nil {
		return 0, false, fmt.Errorf("classifier completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return 0, false, fmt.Errorf("classifier returned no choices")
	}

	ids := parseFlaggedIDs(completion.Choices[0].Message.Content)
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// GroupReply generates the public reply for a flagged group message.
func (l *LLM) GroupReply(ctx context.Context, bugText, botUsername string) (string, error) {
	bugText = truncateRunes(bugText, 500)

	completion, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(l.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(groupReplyPrompt, botUsername)),
			openai.UserMessage(bugText),
		},
	})
	if err != nil {
		return "", fmt.Errorf("group reply completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("group reply returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// truncateRunes shortens s to at most n runes. Counting runes rather than
// bytes keeps Cyrillic text valid UTF-8 after the cut.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// parseFlaggedIDs extracts message ids from the classifier's answer,
// tolerating markdown code fences around the JSON array. Anything that is
// not a JSON array of numbers yields no ids.
func parseFlaggedIDs(raw string) []int64 {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		parts := strings.SplitN(raw, "```", 3)
		if len(parts) >= 2 {
			raw = parts[1]
		}
		raw = strings.TrimPrefix(raw, "json")
		raw = strings.TrimSpace(raw)
	}

	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil
	}

	var ids []int64
	for _, el := range parsed.Array() {
		if el.Type == gjson.Number {
			ids = append(ids, el.Int())
		}
	}
	return ids
}
