package chatlog

import (
	"context"
	"errors"
	"strings"

	"github.com/adwski/chat-relay/backend/model"
)

var (
	ErrClosed    = errors.New("chat log store is closed")
	ErrQueueFull = errors.New("chat log append queue is full")
	ErrBadRoom   = errors.New("invalid room id")
)

// Store is the per-room append-only chat log. Append is an ordered enqueue:
// the actual write happens on the store's writer goroutine, so a slow or
// failing backend never blocks frame delivery. Load returns the full ordered
// log for a room, empty if the room has no history.
type Store interface {
	Append(ctx context.Context, msg model.ChatMessage) error
	Load(ctx context.Context, room string) ([]model.ChatMessage, error)
	Close()
}

func validRoom(room string) bool {
	if room == "" {
		return false
	}
	return !strings.ContainsAny(room, "/\\") && !strings.Contains(room, "..")
}
