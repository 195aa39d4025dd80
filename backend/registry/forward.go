package registry

import (
	"context"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimeout = time.Second
)

// Broadcast delivers f to every member of room, including whoever sent it.
// The member set is snapshotted under the lock; a recipient that went away
// mid-broadcast is skipped and never aborts delivery to the rest.
func (r *Registry) Broadcast(ctx context.Context, room string, f model.Frame) {
	var sent bool
	for _, sess := range r.Members(room) {
		frameSent, canceled := send(ctx, f, sess.Wire.TX, &r.logger)
		if canceled {
			return
		}
		if frameSent {
			sent = true
		}
	}
	if !sent {
		r.logger.Debug().
			Str("room", room).
			Str("type", f.Type).
			Msg("broadcast did not reach anyone")
	}
}

// Unicast delivers f only to members of room whose bound userID equals
// toUserID. Reports whether at least one recipient got the frame; a miss
// is the caller's usual silent-drop case.
func (r *Registry) Unicast(ctx context.Context, room, toUserID string, f model.Frame) bool {
	r.mx.RLock()
	members := r.rooms[room]
	targets := make([]*Session, 0, 1)
	for sess, m := range members {
		if m.userID == toUserID {
			targets = append(targets, sess)
		}
	}
	r.mx.RUnlock()

	if len(targets) == 0 {
		r.logger.Debug().
			Str("room", room).
			Str("to", toUserID).
			Str("type", f.Type).
			Msg("cannot forward, target not found")
		return false
	}

	var sent bool
	for _, sess := range targets {
		frameSent, canceled := send(ctx, f, sess.Wire.TX, &r.logger)
		if canceled {
			break
		}
		if frameSent {
			sent = true
		}
	}
	return sent
}

func send(ctx context.Context, f model.Frame, tx chan<- model.Frame, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultFwdTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Warn().Str("type", f.Type).Msg("dead endpoint")
	case tx <- f:
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
