// Package exchangelog persists user↔bot exchanges and escalations to
// SQLite. It is a fire-and-forget collaborator: callers log failures and
// never let them fail the user-visible turn.
package exchangelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Log is a SQLite-backed exchange and escalation log.
type Log struct {
	db *sql.DB
}

// New opens (or creates) the log database at path.
func New(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode for concurrent writers from the worker pool
	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := &Log{db: db}
	if err := l.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return l, nil
}

func (l *Log) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		chat_id INTEGER NOT NULL,
		thread_id TEXT NOT NULL,
		user_text TEXT NOT NULL,
		ai_response TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);

	CREATE TABLE IF NOT EXISTS escalations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT NOT NULL,
		user_chat_id INTEGER NOT NULL,
		question TEXT NOT NULL,
		handle INTEGER NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		admin_reply TEXT,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_thread ON escalations(thread_id);
	`
	_, err := l.db.Exec(query)
	return err
}

// Close closes the underlying database. Implements io.Closer.
func (l *Log) Close() error {
	return l.db.Close()
}

// LogExchange records one user↔bot exchange.
func (l *Log) LogExchange(ctx context.Context, userID, chatID int64, threadID, userText, aiResponse string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, chat_id, thread_id, user_text, ai_response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, chatID, threadID, userText, aiResponse, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// CreateEscalation records a new pending escalation. Re-recording the same
// handle (duplicate escalation delivery) is an upsert, not an error.
func (l *Log) CreateEscalation(ctx context.Context, threadID string, userChatID int64, question string, handle int64) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO escalations (thread_id, user_chat_id, question, handle, status, created_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)
		 ON CONFLICT(handle) DO UPDATE SET question = excluded.question`,
		threadID, userChatID, question, handle, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// ResolveEscalation marks the thread's most recent pending escalation as
// resolved with the human's answer. Resolving a thread with no pending row
// is a no-op.
func (l *Log) ResolveEscalation(ctx context.Context, threadID, adminReply string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE escalations
		 SET status = 'resolved', admin_reply = ?, resolved_at = ?
		 WHERE id = (
			SELECT id FROM escalations
			WHERE thread_id = ? AND status = 'pending'
			ORDER BY created_at DESC LIMIT 1
		 )`,
		adminReply, time.Now().Unix(), threadID)
	if err != nil {
		return fmt.Errorf("resolve escalation: %w", err)
	}
	return nil
}

// PendingEscalations returns the number of unresolved escalations, for
// diagnostics.
func (l *Log) PendingEscalations(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalations WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending escalations: %w", err)
	}
	return n, nil
}
