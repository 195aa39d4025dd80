package chatlog

import (
	"context"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	defaultMigrateTimeout = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// PGStore persists the per-room log in a single messages table. Ordering is
// the bigserial insert order, and inserts go through the same single-writer
// queue as the file store.
type PGStore struct {
	logger zerolog.Logger
	pool   *pgxpool.Pool
	queue  chan model.ChatMessage
	done   chan struct{}
	closed chan struct{}
}

func NewPGStore(ctx context.Context, dsn string, logger *zerolog.Logger) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	ps := &PGStore{
		logger: logger.With().Str("component", "chatlog-pg").Logger(),
		pool:   pool,
		queue:  make(chan model.ChatMessage, defaultAppendQueueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	if err = ps.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	go ps.writeLoop()
	return ps, nil
}

func (ps *PGStore) migrate(ctx context.Context) error {
	mCtx, cancel := context.WithTimeout(ctx, defaultMigrateTimeout)
	defer cancel()
	_, err := ps.pool.Exec(mCtx, `
        CREATE TABLE IF NOT EXISTS chat_messages (
            seq BIGSERIAL PRIMARY KEY,
            id TEXT NOT NULL,
            room TEXT NOT NULL,
            user_id TEXT NOT NULL,
            username TEXT NOT NULL,
            text TEXT NOT NULL,
            kind TEXT NOT NULL,
            ts BIGINT NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room, seq);
    `)
	return err
}

func (ps *PGStore) Append(_ context.Context, msg model.ChatMessage) error {
	if !validRoom(msg.Room) {
		return ErrBadRoom
	}
	select {
	case <-ps.closed:
		return ErrClosed
	default:
	}
	select {
	case ps.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (ps *PGStore) Load(ctx context.Context, room string) ([]model.ChatMessage, error) {
	if !validRoom(room) {
		return nil, ErrBadRoom
	}
	rows, err := ps.pool.Query(ctx, `
        SELECT id, room, user_id, username, text, kind, ts
        FROM chat_messages
        WHERE room = $1
        ORDER BY seq
    `, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ChatMessage, 0)
	for rows.Next() {
		var m model.ChatMessage
		if err = rows.Scan(&m.ID, &m.Room, &m.UserID, &m.Username, &m.Text, &m.Kind, &m.TS); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (ps *PGStore) Close() {
	select {
	case <-ps.closed:
		return
	default:
	}
	close(ps.closed)
	close(ps.queue)
	<-ps.done
	ps.pool.Close()
}

func (ps *PGStore) writeLoop() {
	defer close(ps.done)
	for msg := range ps.queue {
		wCtx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		_, err := ps.pool.Exec(wCtx, `
            INSERT INTO chat_messages (id, room, user_id, username, text, kind, ts)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, msg.ID, msg.Room, msg.UserID, msg.Username, msg.Text, msg.Kind, msg.TS)
		cancel()
		if err != nil {
			ps.logger.Error().Err(err).
				Str("room", msg.Room).
				Str("id", msg.ID).
				Msg("failed to persist chat message")
		}
	}
}
