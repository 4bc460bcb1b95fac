package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodikhq/switchboard/internal/config"
)

func TestCheckKnowledgeBase(t *testing.T) {
	t.Run("unconfigured path passes", func(t *testing.T) {
		assert.NoError(t, checkKnowledgeBase(&config.Config{}))
	})

	t.Run("missing file fails", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Storage.KnowledgeBasePath = filepath.Join(t.TempDir(), "missing.json")
		assert.Error(t, checkKnowledgeBase(cfg))
	})

	t.Run("empty knowledge base fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.json")
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

		cfg := &config.Config{}
		cfg.Storage.KnowledgeBasePath = path
		assert.Error(t, checkKnowledgeBase(cfg))
	})

	t.Run("populated knowledge base passes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.json")
		entries := `[{"section": "Billing", "text": "Pro includes offline mode."}]`
		require.NoError(t, os.WriteFile(path, []byte(entries), 0o644))

		cfg := &config.Config{}
		cfg.Storage.KnowledgeBasePath = path
		assert.NoError(t, checkKnowledgeBase(cfg))
	})
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	assert.Contains(t, rootCmd.Version, "1.2.3")
	assert.Contains(t, rootCmd.Version, "abc123")
}
