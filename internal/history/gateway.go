package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quorum-ai/quorumd/internal/synthesis"
)

// Gateway front-ends the remote store and the local cache. remote may be nil
// when the service runs cache-only.
type Gateway struct {
	remote Remote
	local  Local
	logger *slog.Logger
}

func NewGateway(remote Remote, local Local, logger *slog.Logger) *Gateway {
	return &Gateway{
		remote: remote,
		local:  local,
		logger: logger,
	}
}

// Record durably stores a discussion. The remote write is attempted only for
// authenticated callers and its failure is swallowed; the local write always
// happens. The returned conversation carries the remote id when the remote
// write succeeded, otherwise a cache-generated one.
func (g *Gateway) Record(ctx context.Context, userID string, d synthesis.Discussion) (StoredConversation, error) {
	conv := StoredConversation{
		UserID:     userID,
		Prompt:     d.UserQuery,
		Response:   d.FinalConsensus,
		Discussion: d,
		CreatedAt:  time.Now().UTC(),
	}
	remoteOK := false

	if g.remote != nil && userID != "" {
		stored, err := g.remote.Create(ctx, userID, d)
		if err != nil {
			g.logger.Warn("remote store write failed, keeping local copy", "error", err)
		} else {
			conv = stored
			remoteOK = true
		}
	}

	stored, err := g.local.Put(ctx, conv)
	if err != nil {
		if remoteOK {
			g.logger.Warn("local cache write failed", "error", err)
			return conv, nil
		}
		return StoredConversation{}, fmt.Errorf("cache conversation: %w", err)
	}

	return stored, nil
}

// List returns the caller's conversations newest first, from the remote when
// reachable, else entirely from the cache.
func (g *Gateway) List(ctx context.Context, userID string) ([]StoredConversation, error) {
	if g.remote != nil && userID != "" {
		convs, err := g.remote.List(ctx, userID)
		if err == nil {
			return convs, nil
		}
		g.logger.Warn("remote list failed, serving cache", "error", err)
	}
	return g.local.List(ctx, userID)
}

// Get returns one conversation, remote first with cache fallback. A miss in
// the serving store is ErrNotFound.
func (g *Gateway) Get(ctx context.Context, userID, id string) (StoredConversation, error) {
	if g.remote != nil && userID != "" {
		conv, err := g.remote.Get(ctx, userID, id)
		if err == nil {
			return conv, nil
		}
		if errors.Is(err, ErrNotFound) {
			// The remote answered; check the cache for locally-recorded
			// conversations that never reached it.
			return g.local.Get(ctx, userID, id)
		}
		g.logger.Warn("remote get failed, serving cache", "error", err)
	}
	return g.local.Get(ctx, userID, id)
}

// Remove deletes a conversation: best-effort against the remote, guaranteed
// against the cache.
func (g *Gateway) Remove(ctx context.Context, userID, id string) error {
	if g.remote != nil && userID != "" {
		if err := g.remote.Delete(ctx, userID, id); err != nil && !errors.Is(err, ErrNotFound) {
			g.logger.Warn("remote delete failed", "id", id, "error", err)
		}
	}
	if err := g.local.Delete(ctx, userID, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete cached conversation: %w", err)
	}
	return nil
}
