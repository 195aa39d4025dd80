package chatlog

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T, dir string) *FileStore {
	t.Helper()
	logger := zerolog.Nop()
	fs, err := NewFileStore(dir, &logger)
	require.NoError(t, err)
	return fs
}

func testMessage(room, id, text string) model.ChatMessage {
	return model.ChatMessage{
		ID:       id,
		Room:     room,
		UserID:   "user1",
		Username: "skater_one",
		Text:     text,
		Kind:     model.KindText,
		TS:       time.Now().UnixMilli(),
	}
}

func TestFileStore_AppendLoadOrder(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir())
	defer fs.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		err := fs.Append(ctx, testMessage("lb_dancing", "msg_"+strconv.Itoa(i), "text "+strconv.Itoa(i)))
		require.NoError(t, err)
	}

	// Close drains the queue before Load sees a final state.
	fs.Close()

	msgs, err := fs.Load(ctx, "lb_dancing")
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i, m := range msgs {
		assert.Equal(t, "msg_"+strconv.Itoa(i), m.ID)
		assert.Equal(t, "text "+strconv.Itoa(i), m.Text)
	}
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs := newTestFileStore(t, dir)
	require.NoError(t, fs.Append(ctx, testMessage("bl_urban", "msg_1", "before restart")))
	fs.Close()

	fs = newTestFileStore(t, dir)
	defer fs.Close()

	msgs, err := fs.Load(ctx, "bl_urban")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "before restart", msgs[0].Text)

	require.NoError(t, fs.Append(ctx, testMessage("bl_urban", "msg_2", "after restart")))
	fs.Close()

	msgs, err = fs.Load(ctx, "bl_urban")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "after restart", msgs[1].Text)
}

func TestFileStore_LoadUnknownRoom(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir())
	defer fs.Close()

	msgs, err := fs.Load(context.Background(), "no_such_room")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFileStore_RoomsAreIsolated(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir())

	ctx := context.Background()
	require.NoError(t, fs.Append(ctx, testMessage("lb_dancing", "msg_1", "dance")))
	require.NoError(t, fs.Append(ctx, testMessage("qd_jam", "msg_2", "jam")))
	fs.Close()

	msgs, err := fs.Load(ctx, "lb_dancing")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "dance", msgs[0].Text)

	msgs, err = fs.Load(ctx, "qd_jam")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "jam", msgs[0].Text)
}

func TestFileStore_BadRoom(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir())
	defer fs.Close()

	ctx := context.Background()
	assert.ErrorIs(t, fs.Append(ctx, testMessage("../evil", "msg_1", "nope")), ErrBadRoom)
	_, err := fs.Load(ctx, "a/b")
	assert.ErrorIs(t, err, ErrBadRoom)
}

func TestFileStore_AppendAfterClose(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir())
	fs.Close()
	fs.Close() // idempotent

	err := fs.Append(context.Background(), testMessage("lb_dancing", "msg_1", "late"))
	assert.ErrorIs(t, err, ErrClosed)
}
