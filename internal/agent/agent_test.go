package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestLastAssistantText(t *testing.T) {
	t.Run("picks the last tool-free assistant message", func(t *testing.T) {
		msgs := []ChatMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "1", Name: "search_knowledge_base"}}},
			{Role: "tool", ToolCallID: "1", Content: "result"},
			{Role: "assistant", Content: "final answer"},
		}
		assert.Equal(t, "final answer", LastAssistantText(msgs))
	})

	t.Run("ignores assistant messages that only request tools", func(t *testing.T) {
		msgs := []ChatMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "1", Name: "ask_human"}}},
		}
		assert.Equal(t, "", LastAssistantText(msgs))
	})

	t.Run("empty transcript", func(t *testing.T) {
		assert.Equal(t, "", LastAssistantText(nil))
	})
}

func TestTruncateRunes(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateRunes("hello", 300))
	})

	t.Run("cuts on a rune boundary", func(t *testing.T) {
		got := truncateRunes(strings.Repeat("ж", 400), 300)
		assert.Equal(t, 300, utf8.RuneCountInString(got))
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("mixed ascii and cyrillic", func(t *testing.T) {
		assert.Equal(t, "баг in", truncateRunes("баг in editor", 6))
	})
}

func TestParseFlaggedIDs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []int64
	}{
		{name: "plain array", raw: "[42]", want: []int64{42}},
		{name: "empty array", raw: "[]", want: nil},
		{name: "multiple ids keeps order", raw: "[7, 9]", want: []int64{7, 9}},
		{name: "fenced json", raw: "```json\n[13]\n```", want: []int64{13}},
		{name: "fenced without language", raw: "```\n[8]\n```", want: []int64{8}},
		{name: "prose instead of json", raw: "I think message 5 qualifies", want: nil},
		{name: "object instead of array", raw: `{"id": 5}`, want: nil},
		{name: "non-numeric elements skipped", raw: `["a", 3]`, want: []int64{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFlaggedIDs(tt.raw))
		})
	}
}
