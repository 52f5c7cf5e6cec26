// Package store is the Postgres-backed remote conversation store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorum-ai/quorumd/internal/classifier"
	"github.com/quorum-ai/quorumd/internal/history"
	"github.com/quorum-ai/quorumd/internal/synthesis"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id                 UUID PRIMARY KEY,
			user_id            TEXT NOT NULL,
			user_query         TEXT NOT NULL,
			prompt_type        TEXT NOT NULL,
			model_group        TEXT NOT NULL,
			selected_models    JSONB NOT NULL,
			initial_responses  JSONB NOT NULL,
			model_interactions JSONB NOT NULL,
			final_consensus    TEXT NOT NULL,
			confidence         DOUBLE PRECISION NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations (user_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Create inserts a discussion and returns it with its storage identity.
func (s *Store) Create(ctx context.Context, userID string, d synthesis.Discussion) (history.StoredConversation, error) {
	models, err := json.Marshal(d.SelectedModels)
	if err != nil {
		return history.StoredConversation{}, fmt.Errorf("marshal models: %w", err)
	}
	responses, err := json.Marshal(d.InitialResponses)
	if err != nil {
		return history.StoredConversation{}, fmt.Errorf("marshal responses: %w", err)
	}
	interactions, err := json.Marshal(d.ModelInteractions)
	if err != nil {
		return history.StoredConversation{}, fmt.Errorf("marshal interactions: %w", err)
	}

	conv := history.StoredConversation{
		ID:         uuid.New().String(),
		UserID:     userID,
		Prompt:     d.UserQuery,
		Response:   d.FinalConsensus,
		Discussion: d,
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (
			id, user_id, user_query, prompt_type, model_group,
			selected_models, initial_responses, model_interactions,
			final_consensus, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		conv.ID, userID, d.UserQuery, string(d.PromptType), d.ModelGroup,
		models, responses, interactions, d.FinalConsensus, d.Confidence,
	)
	if err := row.Scan(&conv.CreatedAt); err != nil {
		return history.StoredConversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	return conv, nil
}

// List returns a user's conversations, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]history.StoredConversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, user_query, prompt_type, model_group,
		       selected_models, initial_responses, model_interactions,
		       final_consensus, confidence, created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
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
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Get returns one conversation scoped to the user, or history.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, id string) (history.StoredConversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, user_query, prompt_type, model_group,
		       selected_models, initial_responses, model_interactions,
		       final_consensus, confidence, created_at
		FROM conversations
		WHERE id = $1 AND user_id = $2`, id, userID)

	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.StoredConversation{}, history.ErrNotFound
	}
	if err != nil {
		return history.StoredConversation{}, err
	}
	return conv, nil
}

// Delete removes one conversation scoped to the user.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return history.ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanConversation(row scannable) (history.StoredConversation, error) {
	var (
		conv         history.StoredConversation
		promptType   string
		models       []byte
		responses    []byte
		interactions []byte
	)
	err := row.Scan(
		&conv.ID, &conv.UserID, &conv.Discussion.UserQuery, &promptType,
		&conv.Discussion.ModelGroup, &models, &responses, &interactions,
		&conv.Discussion.FinalConsensus, &conv.Discussion.Confidence,
		&conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return history.StoredConversation{}, err
		}
		return history.StoredConversation{}, fmt.Errorf("scan conversation: %w", err)
	}

	conv.Discussion.PromptType = classifier.Category(promptType)
	if err := json.Unmarshal(models, &conv.Discussion.SelectedModels); err != nil {
		return history.StoredConversation{}, fmt.Errorf("unmarshal models: %w", err)
	}
	if err := json.Unmarshal(responses, &conv.Discussion.InitialResponses); err != nil {
		return history.StoredConversation{}, fmt.Errorf("unmarshal responses: %w", err)
	}
	if err := json.Unmarshal(interactions, &conv.Discussion.ModelInteractions); err != nil {
		return history.StoredConversation{}, fmt.Errorf("unmarshal interactions: %w", err)
	}
	conv.Discussion.Timestamp = conv.CreatedAt
	conv.Prompt = conv.Discussion.UserQuery
	conv.Response = conv.Discussion.FinalConsensus
	return conv, nil
}
