package registry

import (
	"sync"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is one live transport connection known to the registry.
// It is created on transport open and discarded on transport close.
type Session struct {
	ID   string
	Wire model.Wire
}

func NewSession() *Session {
	return &Session{
		ID:   uuid.NewString(),
		Wire: model.NewWire(),
	}
}

type member struct {
	sess     *Session
	userID   string
	username string
	seq      uint64 // join order, keeps presence list order stable
}

// Registry is the single source of truth for room membership. It maps rooms
// to their member sessions and sessions back to their identity metadata.
// Rooms exist implicitly: created on first join, deleted on last leave.
type Registry struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	rooms  map[string]map[*Session]*member
	byConn map[*Session]string
	seq    uint64
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "registry").Logger(),
		mx:     &sync.RWMutex{},
		rooms:  make(map[string]map[*Session]*member),
		byConn: make(map[*Session]string),
	}
}

// Join registers sess under room. A session belongs to at most one room, so
// a join while already a member of another room performs an implicit leave
// first; prevRoom reports which room that was. Missing room or userID makes
// the whole call a no-op.
func (r *Registry) Join(sess *Session, room, userID, username string) (prevRoom string, ok bool) {
	if room == "" || userID == "" {
		r.logger.Debug().
			Str("room", room).
			Str("userID", userID).
			Msg("join ignored, missing room or user")
		return "", false
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	if prev, bound := r.byConn[sess]; bound && prev != room {
		r.removeLocked(sess, prev)
		prevRoom = prev
	}

	members, exists := r.rooms[room]
	if !exists {
		members = make(map[*Session]*member)
		r.rooms[room] = members
	}
	r.seq++
	members[sess] = &member{
		sess:     sess,
		userID:   userID,
		username: username,
		seq:      r.seq,
	}
	r.byConn[sess] = room

	r.logger.Debug().
		Str("room", room).
		Str("userID", userID).
		Str("session", sess.ID).
		Msg("session joined room")
	return prevRoom, true
}

// Leave removes sess from whatever room it belongs to. The room entry is
// deleted entirely once its member set becomes empty.
func (r *Registry) Leave(sess *Session) (room string, ok bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	room, ok = r.byConn[sess]
	if !ok {
		return "", false
	}
	r.removeLocked(sess, room)

	r.logger.Debug().
		Str("room", room).
		Str("session", sess.ID).
		Msg("session left room")
	return room, true
}

func (r *Registry) removeLocked(sess *Session, room string) {
	if members, exists := r.rooms[room]; exists {
		delete(members, sess)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.byConn, sess)
}

// Members returns a snapshot of the sessions currently joined to room,
// or nil if the room does not exist.
func (r *Registry) Members(room string) []*Session {
	r.mx.RLock()
	defer r.mx.RUnlock()

	members, exists := r.rooms[room]
	if !exists {
		return nil
	}
	out := make([]*Session, 0, len(members))
	for sess := range members {
		out = append(out, sess)
	}
	return out
}

// RoomOf reports the room sess currently belongs to.
func (r *Registry) RoomOf(sess *Session) (string, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	room, ok := r.byConn[sess]
	return room, ok
}
