// Package cache is the bounded local conversation cache, backed by SQLite.
//
// It is the write-through backup and read fallback for the remote store:
// every recorded conversation lands here, and only the newest entries per
// user are retained.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"

	"github.com/quorum-ai/quorumd/internal/history"
)

// maxEntries is how many conversations are retained per user before the
// oldest are evicted.
const maxEntries = 50

type Cache struct {
	db  *sql.DB
	max int

	// guards the insert+evict critical section
	mu sync.Mutex
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	c := &Cache{db: db, max: maxEntries}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// SetMaxEntries overrides the retention bound, for tests.
func (c *Cache) SetMaxEntries(n int) {
	c.max = n
}

func (c *Cache) initSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			prompt     TEXT NOT NULL,
			response   TEXT NOT NULL,
			discussion TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations (user_id, seq DESC)`)
	if err != nil {
		return fmt.Errorf("init cache schema: %w", err)
	}
	return nil
}

// Put stores a conversation and evicts the user's oldest entries beyond the
// retention bound. When the conversation has no id yet (the remote write
// never happened), the monotonically increasing sequence number becomes its
// id.
func (c *Cache) Put(ctx context.Context, conv history.StoredConversation) (history.StoredConversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	blob, err := json.Marshal(conv.Discussion)
	if err != nil {
		return history.StoredConversation{}, fmt.Errorf("marshal discussion: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return history.StoredConversation{}, fmt.Errorf("begin cache tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, prompt, response, discussion, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Prompt, conv.Response, string(blob), conv.CreatedAt,
	)
	if err != nil {
		return history.StoredConversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	if conv.ID == "" {
		seq, err := res.LastInsertId()
		if err != nil {
			return history.StoredConversation{}, fmt.Errorf("read sequence: %w", err)
		}
		conv.ID = strconv.FormatInt(seq, 10)
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET id = ? WHERE seq = ?`, conv.ID, seq); err != nil {
			return history.StoredConversation{}, fmt.Errorf("assign id: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM conversations
		WHERE user_id = ?
		  AND seq NOT IN (
			SELECT seq FROM conversations
			WHERE user_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)`, conv.UserID, conv.UserID, c.max)
	if err != nil {
		return history.StoredConversation{}, fmt.Errorf("evict old conversations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return history.StoredConversation{}, fmt.Errorf("commit cache tx: %w", err)
	}
	return conv, nil
}

// List returns the user's cached conversations, newest first.
func (c *Cache) List(ctx context.Context, userID string) ([]history.StoredConversation, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, prompt, response, discussion, created_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cached conversations: %w", err)
	}
	defer rows.Close()

	var convs []history.StoredConversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cached conversations: %w", err)
	}
	return convs, nil
}

// Get returns one cached conversation, or history.ErrNotFound.
func (c *Cache) Get(ctx context.Context, userID, id string) (history.StoredConversation, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, prompt, response, discussion, created_at
		FROM conversations
		WHERE user_id = ? AND id = ?`, userID, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.StoredConversation{}, history.ErrNotFound
	}
	if err != nil {
		return history.StoredConversation{}, err
	}
	return conv, nil
}

// Delete removes one cached conversation.
func (c *Cache) Delete(ctx context.Context, userID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete cached conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cached conversation: %w", err)
	}
	if n == 0 {
		return history.ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanConversation(row scannable) (history.StoredConversation, error) {
	var (
		conv history.StoredConversation
		blob string
	)
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Prompt, &conv.Response, &blob, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.StoredConversation{}, err
		}
		return history.StoredConversation{}, fmt.Errorf("scan cached conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(blob), &conv.Discussion); err != nil {
		return history.StoredConversation{}, fmt.Errorf("unmarshal discussion: %w", err)
	}
	return conv, nil
}
