package relay

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/adwski/chat-relay/backend/registry"
	"github.com/adwski/chat-relay/backend/storage/chatlog"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

// Per-connection router states. A connection starts unjoined, becomes
// joined on its first accepted join frame and ends closed on explicit
// leave or transport close. Closed is terminal.
const (
	stateUnjoined = iota
	stateJoined
	stateClosed
)

type connState struct {
	state  int
	userID string
}

type (
	// Relay is the single dispatch point for inbound frames. It classifies
	// each frame, drives the per-connection state machine and routes chat,
	// presence and signaling traffic through the registry.
	Relay struct {
		logger zerolog.Logger
		reg    *registry.Registry
		store  chatlog.Store

		mx     sync.Mutex
		states map[*registry.Session]*connState

		msgSeq atomic.Uint64
	}

	Config struct {
		Registry *registry.Registry
		Store    chatlog.Store
		Logger   *zerolog.Logger
	}
)

func New(cfg Config) *Relay {
	return &Relay{
		logger: cfg.Logger.With().Str("component", "relay").Logger(),
		reg:    cfg.Registry,
		store:  cfg.Store,
		states: make(map[*registry.Session]*connState),
	}
}

// Register binds a freshly opened transport session to the relay in the
// unjoined state. Only a join frame moves it further.
func (rl *Relay) Register(sess *registry.Session) {
	rl.mx.Lock()
	rl.states[sess] = &connState{state: stateUnjoined}
	rl.mx.Unlock()
	rl.logger.Debug().Str("session", sess.ID).Msg("session registered")
}

// HandleFrame routes one inbound frame. Returns true when the frame closed
// the connection (explicit leave), so the transport can stop reading.
func (rl *Relay) HandleFrame(ctx context.Context, sess *registry.Session, f model.Frame) bool {
	if rl.logger.GetLevel() <= zerolog.TraceLevel {
		rl.logger.Trace().Str("session", sess.ID).Msg(spew.Sdump(f))
	}

	switch f.Type {
	case model.FrameJoin:
		rl.handleJoin(ctx, sess, f)
	case model.FrameLeave:
		return rl.handleLeave(ctx, sess)
	case model.FrameMessage:
		rl.handleMessage(ctx, sess, f)
	case model.FrameOffer, model.FrameAnswer, model.FrameICE:
		rl.handleSignal(ctx, sess, f)
	default:
		rl.logger.Debug().
			Str("session", sess.ID).
			Str("type", f.Type).
			Msg("unknown frame type dropped")
	}
	return false
}

// Close releases all per-connection state and removes the session from its
// room. Safe to call multiple times, cleanup runs exactly once. Both
// graceful and abnormal transport closes funnel here.
func (rl *Relay) Close(ctx context.Context, sess *registry.Session) {
	rl.mx.Lock()
	st, ok := rl.states[sess]
	if !ok || st.state == stateClosed {
		rl.mx.Unlock()
		return
	}
	st.state = stateClosed
	delete(rl.states, sess)
	rl.mx.Unlock()

	if room, left := rl.reg.Leave(sess); left {
		rl.broadcastPresence(ctx, room)
	}
	rl.logger.Debug().Str("session", sess.ID).Msg("session closed")
}

func (rl *Relay) handleJoin(ctx context.Context, sess *registry.Session, f model.Frame) {
	rl.mx.Lock()
	st, ok := rl.states[sess]
	if !ok || st.state == stateClosed {
		rl.mx.Unlock()
		return
	}
	rl.mx.Unlock()

	prevRoom, joined := rl.reg.Join(sess, f.Room, f.UserID, f.Username)
	if !joined {
		rl.logger.Debug().
			Str("session", sess.ID).
			Msg("join rejected, missing room or user")
		return
	}

	rl.mx.Lock()
	st.state = stateJoined
	st.userID = f.UserID
	rl.mx.Unlock()

	if prevRoom != "" {
		rl.broadcastPresence(ctx, prevRoom)
	}
	rl.broadcastPresence(ctx, f.Room)
}

func (rl *Relay) handleLeave(ctx context.Context, sess *registry.Session) bool {
	if !rl.requireJoined(sess, model.FrameLeave) {
		return false
	}
	rl.Close(ctx, sess)
	return true
}

func (rl *Relay) handleMessage(ctx context.Context, sess *registry.Session, f model.Frame) {
	if !rl.requireJoined(sess, model.FrameMessage) {
		return
	}
	if f.Text == "" {
		rl.logger.Debug().
			Str("session", sess.ID).
			Str("room", f.Room).
			Msg("empty message dropped")
		return
	}

	room, ok := rl.reg.RoomOf(sess)
	if !ok {
		return
	}

	kind := f.Kind
	if kind != model.KindVoice {
		kind = model.KindText
	}
	msg := model.ChatMessage{
		ID:       rl.nextMessageID(),
		Room:     room,
		UserID:   f.UserID,
		Username: f.Username,
		Text:     f.Text,
		Kind:     kind,
		TS:       time.Now().UnixMilli(),
	}

	// Ordered enqueue; the store's writer does the blocking IO. A failed
	// append never stops the broadcast.
	if err := rl.store.Append(ctx, msg); err != nil {
		rl.logger.Error().Err(err).
			Str("room", room).
			Str("id", msg.ID).
			Msg("chat message not persisted")
	}

	rl.reg.Broadcast(ctx, room, model.Frame{
		Type:     model.FrameMessage,
		ID:       msg.ID,
		Room:     msg.Room,
		UserID:   msg.UserID,
		Username: msg.Username,
		Text:     msg.Text,
		Kind:     msg.Kind,
		TS:       msg.TS,
	})
}

func (rl *Relay) handleSignal(ctx context.Context, sess *registry.Session, f model.Frame) {
	rl.mx.Lock()
	st, ok := rl.states[sess]
	if !ok || st.state != stateJoined {
		rl.mx.Unlock()
		rl.logger.Debug().
			Str("session", sess.ID).
			Str("type", f.Type).
			Msg("frame dropped, connection not joined")
		return
	}
	from := st.userID
	rl.mx.Unlock()

	if f.Room == "" || f.To == "" {
		rl.logger.Debug().
			Str("session", sess.ID).
			Str("type", f.Type).
			Msg("signal frame missing room or target")
		return
	}

	f.From = from
	if !rl.reg.Unicast(ctx, f.Room, f.To, f) {
		// Negotiation is best-effort and time-sensitive, no queuing or NACK.
		rl.logger.Debug().
			Str("type", f.Type).
			Str("room", f.Room).
			Str("to", f.To).
			Msg("signal dropped, target not connected")
	}
}

func (rl *Relay) requireJoined(sess *registry.Session, frameType string) bool {
	rl.mx.Lock()
	st, ok := rl.states[sess]
	joined := ok && st.state == stateJoined
	rl.mx.Unlock()
	if !joined {
		rl.logger.Debug().
			Str("session", sess.ID).
			Str("type", frameType).
			Msg("frame dropped, connection not joined")
	}
	return joined
}

func (rl *Relay) broadcastPresence(ctx context.Context, room string) {
	rl.reg.Broadcast(ctx, room, model.Frame{
		Type:  model.FramePresence,
		Room:  room,
		Users: rl.reg.Presence(room),
	})
}

// nextMessageID yields time-based "msg_<unix-ms>" ids with a process-wide
// sequence so two messages in the same millisecond do not collide.
func (rl *Relay) nextMessageID() string {
	return "msg_" + strconv.FormatInt(time.Now().UnixMilli(), 10) +
		"_" + strconv.FormatUint(rl.msgSeq.Add(1), 10)
}
