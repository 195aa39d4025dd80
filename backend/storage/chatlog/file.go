package chatlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultAppendQueueSize = 256

	chatDirPerm  = 0o755
	chatFilePerm = 0o644
)

// FileStore keeps one JSON array file per room under dir. Appends are
// read-modify-write cycles executed by a single writer goroutine, which
// makes the on-disk order the enqueue order.
type FileStore struct {
	logger zerolog.Logger
	dir    string
	mx     *sync.Mutex // guards file IO between writer and Load
	queue  chan model.ChatMessage
	done   chan struct{}
	closed chan struct{}
}

func NewFileStore(dir string, logger *zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, chatDirPerm); err != nil {
		return nil, err
	}
	fs := &FileStore{
		logger: logger.With().Str("component", "chatlog-file").Logger(),
		dir:    dir,
		mx:     &sync.Mutex{},
		queue:  make(chan model.ChatMessage, defaultAppendQueueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go fs.writeLoop()
	return fs, nil
}

func (fs *FileStore) Append(_ context.Context, msg model.ChatMessage) error {
	if !validRoom(msg.Room) {
		return ErrBadRoom
	}
	select {
	case <-fs.closed:
		return ErrClosed
	default:
	}
	select {
	case fs.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (fs *FileStore) Load(_ context.Context, room string) ([]model.ChatMessage, error) {
	if !validRoom(room) {
		return nil, ErrBadRoom
	}
	fs.mx.Lock()
	defer fs.mx.Unlock()
	return fs.readFile(room)
}

// Close stops accepting appends, drains what was already queued and waits
// for the writer to finish.
func (fs *FileStore) Close() {
	select {
	case <-fs.closed:
		return
	default:
	}
	close(fs.closed)
	close(fs.queue)
	<-fs.done
}

func (fs *FileStore) writeLoop() {
	defer close(fs.done)
	for msg := range fs.queue {
		fs.mx.Lock()
		if err := fs.appendFile(msg); err != nil {
			fs.logger.Error().Err(err).
				Str("room", msg.Room).
				Str("id", msg.ID).
				Msg("failed to persist chat message")
		}
		fs.mx.Unlock()
	}
}

func (fs *FileStore) path(room string) string {
	return filepath.Join(fs.dir, room+".json")
}

func (fs *FileStore) readFile(room string) ([]model.ChatMessage, error) {
	b, err := os.ReadFile(fs.path(room))
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ChatMessage{}, nil
		}
		return nil, err
	}
	var msgs []model.ChatMessage
	if err = json.Unmarshal(b, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (fs *FileStore) appendFile(msg model.ChatMessage) error {
	msgs, err := fs.readFile(msg.Room)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)
	b, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fs.path(msg.Room), b, chatFilePerm)
}
