package telegram

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
)

func TestMentionsBot(t *testing.T) {
	entities := func(offset, length int) []telego.MessageEntity {
		return []telego.MessageEntity{{Type: "mention", Offset: offset, Length: length}}
	}

	t.Run("matches the bot username", func(t *testing.T) {
		assert.True(t, MentionsBot("@support_bot help me", entities(0, 12), "support_bot"))
	})

	t.Run("matches case insensitively", func(t *testing.T) {
		assert.True(t, MentionsBot("@Support_Bot help me", entities(0, 12), "support_bot"))
	})

	t.Run("matches a mention after cyrillic text", func(t *testing.T) {
		// "привет " is 7 UTF-16 code units but 13 bytes; entity offsets
		// count the former
		assert.True(t, MentionsBot("привет @support_bot", entities(7, 12), "support_bot"))
	})

	t.Run("matches a mention between cyrillic words", func(t *testing.T) {
		text := "эй @support_bot помоги"
		assert.True(t, MentionsBot(text, entities(3, 12), "support_bot"))
	})

	t.Run("ignores mentions of other users", func(t *testing.T) {
		assert.False(t, MentionsBot("@someone_else look at this", entities(0, 13), "support_bot"))
	})

	t.Run("ignores non-mention entities", func(t *testing.T) {
		ents := []telego.MessageEntity{{Type: "bold", Offset: 0, Length: 5}}
		assert.False(t, MentionsBot("@support_bot hi", ents, "support_bot"))
	})

	t.Run("skips out-of-range offsets", func(t *testing.T) {
		assert.False(t, MentionsBot("short", entities(3, 40), "support_bot"))
	})

	t.Run("no entities means no mention", func(t *testing.T) {
		assert.False(t, MentionsBot("please ping support_bot", nil, "support_bot"))
	})

	t.Run("empty username never matches", func(t *testing.T) {
		assert.False(t, MentionsBot("@support_bot", entities(0, 12), ""))
	})
}

func TestEscalationCard(t *testing.T) {
	card := EscalationCard("Does Pro include offline mode?", "thread-42")
	assert.Contains(t, card, "thread-42")
	assert.Contains(t, card, "Does Pro include offline mode?")
	assert.Contains(t, card, "Reply to this message")
}
