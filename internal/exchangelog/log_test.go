package exchangelog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLog(t *testing.T) *Log {
	l, err := New(filepath.Join(t.TempDir(), "switchboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLogExchange(t *testing.T) {
	ctx := context.Background()
	l := setupLog(t)

	require.NoError(t, l.LogExchange(ctx, 100, 200, "thread-1", "how do I enable vim mode?", "Settings > Editor > Vim mode."))
	require.NoError(t, l.LogExchange(ctx, 100, 200, "thread-1", "thanks", "You're welcome!"))

	var n int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE thread_id = ?`, "thread-1").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestEscalationLifecycle(t *testing.T) {
	ctx := context.Background()
	l := setupLog(t)

	require.NoError(t, l.CreateEscalation(ctx, "thread-1", 200, "Does the Pro plan include offline mode?", 9001))

	n, err := l.PendingEscalations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, l.ResolveEscalation(ctx, "thread-1", "Yes, offline mode ships with Pro."))

	n, err = l.PendingEscalations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var status, reply string
	require.NoError(t, l.db.QueryRow(
		`SELECT status, admin_reply FROM escalations WHERE handle = ?`, 9001).Scan(&status, &reply))
	assert.Equal(t, "resolved", status)
	assert.Equal(t, "Yes, offline mode ships with Pro.", reply)
}

func TestResolveLatestPendingOnly(t *testing.T) {
	ctx := context.Background()
	l := setupLog(t)

	require.NoError(t, l.CreateEscalation(ctx, "thread-1", 200, "first question", 1))
	require.NoError(t, l.CreateEscalation(ctx, "thread-1", 200, "second question", 2))

	// Force distinct created_at so "most recent" is deterministic
	_, err := l.db.Exec(`UPDATE escalations SET created_at = handle`)
	require.NoError(t, err)

	require.NoError(t, l.ResolveEscalation(ctx, "thread-1", "answer"))

	var status string
	require.NoError(t, l.db.QueryRow(`SELECT status FROM escalations WHERE handle = 2`).Scan(&status))
	assert.Equal(t, "resolved", status)
	require.NoError(t, l.db.QueryRow(`SELECT status FROM escalations WHERE handle = 1`).Scan(&status))
	assert.Equal(t, "pending", status)
}

func TestResolveWithoutPendingIsNoOp(t *testing.T) {
	ctx := context.Background()
	l := setupLog(t)

	require.NoError(t, l.ResolveEscalation(ctx, "thread-unknown", "answer"))
}

func TestCreateEscalationDuplicateHandle(t *testing.T) {
	ctx := context.Background()
	l := setupLog(t)

	require.NoError(t, l.CreateEscalation(ctx, "thread-1", 200, "original", 5))
	require.NoError(t, l.CreateEscalation(ctx, "thread-1", 200, "updated", 5))

	var question string
	require.NoError(t, l.db.QueryRow(`SELECT question FROM escalations WHERE handle = 5`).Scan(&question))
	assert.Equal(t, "updated", question)

	var n int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM escalations`).Scan(&n))
	assert.Equal(t, 1, n)
}
