package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	msgs map[string][]model.ChatMessage
	err  error
}

func (sh *stubHistory) Load(_ context.Context, room string) ([]model.ChatMessage, error) {
	if sh.err != nil {
		return nil, sh.err
	}
	msgs, ok := sh.msgs[room]
	if !ok {
		return []model.ChatMessage{}, nil
	}
	return msgs, nil
}

type stubPresence struct {
	rooms map[string][]model.PresenceEntry
}

func (sp *stubPresence) Presence(room string) []model.PresenceEntry {
	entries, ok := sp.rooms[room]
	if !ok {
		return []model.PresenceEntry{}
	}
	return entries
}

func startTestServer(t *testing.T, history *stubHistory, presence *stubPresence) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	srv := NewServer(Config{
		Logger:     &logger,
		History:    history,
		Presence:   presence,
		ListenAddr: ":0",
	})
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_ChatHistory(t *testing.T) {
	history := &stubHistory{msgs: map[string][]model.ChatMessage{
		"lb_dancing": {
			{ID: "msg_1", Room: "lb_dancing", UserID: "user1", Username: "a", Text: "sup", Kind: "text", TS: 1},
			{ID: "msg_2", Room: "lb_dancing", UserID: "user2", Username: "b", Text: "yo", Kind: "text", TS: 2},
		},
	}}
	ts := startTestServer(t, history, &stubPresence{})

	resp, err := http.Get(ts.URL + "/api/chat/lb_dancing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var msgs []model.ChatMessage
	require.NoError(t, json.Unmarshal(b, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg_1", msgs[0].ID)
	assert.Equal(t, "yo", msgs[1].Text)
}

func TestServer_ChatHistoryEmptyRoom(t *testing.T) {
	ts := startTestServer(t, &stubHistory{}, &stubPresence{})

	resp, err := http.Get(ts.URL + "/api/chat/no_such_room")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(b))
}

func TestServer_ChatHistoryStoreFailure(t *testing.T) {
	ts := startTestServer(t, &stubHistory{err: errors.New("backend gone")}, &stubPresence{})

	resp, err := http.Get(ts.URL + "/api/chat/lb_dancing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_RoomPresence(t *testing.T) {
	presence := &stubPresence{rooms: map[string][]model.PresenceEntry{
		"bl_urban": {
			{UserID: "user1", Username: "a"},
			{UserID: "user2", Username: "b"},
		},
	}}
	ts := startTestServer(t, &stubHistory{}, presence)

	resp, err := http.Get(ts.URL + "/api/room/bl_urban/presence")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var entries []model.PresenceEntry
	require.NoError(t, json.Unmarshal(b, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "user1", entries[0].UserID)

	respGhost, err := http.Get(ts.URL + "/api/room/ghost_room/presence")
	require.NoError(t, err)
	defer func() { _ = respGhost.Body.Close() }()
	require.Equal(t, http.StatusOK, respGhost.StatusCode)
	b, err = io.ReadAll(respGhost.Body)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(b))
}
