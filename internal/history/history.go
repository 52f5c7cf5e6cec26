// Package history is the dual-write persistence gateway for discussions.
//
// Writes go to the remote store opportunistically and to the local cache
// always; reads prefer remote and fall back to the cache wholesale. Remote
// reachability failures degrade behavior, they are never surfaced to the
// caller.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/quorum-ai/quorumd/internal/synthesis"
)

// ErrNotFound is returned when a conversation id does not exist in whichever
// store served the read.
var ErrNotFound = errors.New("conversation not found")

// StoredConversation is a recorded Discussion with its storage identity.
type StoredConversation struct {
	ID         string               `json:"id"`
	UserID     string               `json:"user_id,omitempty"`
	Prompt     string               `json:"prompt"`
	Response   string               `json:"response"`
	Discussion synthesis.Discussion `json:"discussion"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Remote is the authoritative store when reachable. Implemented by the
// Postgres store.
type Remote interface {
	Create(ctx context.Context, userID string, d synthesis.Discussion) (StoredConversation, error)
	List(ctx context.Context, userID string) ([]StoredConversation, error)
	Get(ctx context.Context, userID, id string) (StoredConversation, error)
	Delete(ctx context.Context, userID, id string) error
}

// Local is the bounded on-disk cache, authoritative when the remote is not.
type Local interface {
	Put(ctx context.Context, conv StoredConversation) (StoredConversation, error)
	List(ctx context.Context, userID string) ([]StoredConversation, error)
	Get(ctx context.Context, userID, id string) (StoredConversation, error)
	Delete(ctx context.Context, userID, id string) error
}
