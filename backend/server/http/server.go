package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultLoadTimeout = 5 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type ChatHistory interface {
	Load(ctx context.Context, room string) ([]model.ChatMessage, error)
}

type PresenceSource interface {
	Presence(room string) []model.PresenceEntry
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger   zerolog.Logger
	history  ChatHistory
	presence PresenceSource
	*http.Server
}

type Config struct {
	Logger     *zerolog.Logger
	History    ChatHistory
	Presence   PresenceSource
	ListenAddr string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:   cfg.Logger.With().Str("component", "api-server").Logger(),
		history:  cfg.History,
		presence: cfg.Presence,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /api/chat/{roomID}", srv.chatHistory)
	r.HandleFunc("GET /api/room/{roomID}/presence", srv.roomPresence)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	roomID := r.PathValue("roomID")
	if roomID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultLoadTimeout)
	defer cancel()

	msgs, err := srv.history.Load(ctx, roomID)
	if err != nil {
		srv.logger.Error().Err(err).Str("roomID", roomID).Msg("failed to load chat history")
		b, errJ := json.Marshal(&GenericResponse{Error: err.Error()})
		if errJ != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeBytes(w, http.StatusInternalServerError, b)
		return
	}

	b, err := json.Marshal(msgs)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func (srv *Server) roomPresence(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	roomID := r.PathValue("roomID")
	if roomID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b, err := json.Marshal(srv.presence.Presence(roomID))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
