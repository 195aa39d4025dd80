package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/adwski/chat-relay/backend/registry"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 65536
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	// FrameHandler owns per-connection routing state. The server feeds it
	// every parsed inbound frame and reports the transport close exactly
	// once through Close.
	FrameHandler interface {
		Register(sess *registry.Session)
		HandleFrame(ctx context.Context, sess *registry.Session, f model.Frame) bool
		Close(ctx context.Context, sess *registry.Session)
	}

	Config struct {
		Logger     *zerolog.Logger
		Handler    FrameHandler
		ListenAddr string
	}

	Server struct {
		handler FrameHandler
		ws      *websocket.Upgrader
		*http.Server

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:  cfg.Logger.With().Str("component", "websocket-server").Logger(),
		handler: cfg.Handler,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.relay)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
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

func (srv *Server) relay(w http.ResponseWriter, r *http.Request) {
	// Query params identify the connection for logging. The join frame is
	// authoritative for membership, a reconnecting client always re-joins.
	var (
		userID     = r.URL.Query().Get("userId")
		room       = r.URL.Query().Get("room")
		discipline = r.URL.Query().Get("discipline")
	)

	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := registry.NewSession()
	srv.handler.Register(sess)

	logger := srv.logger.With().
		Str("session", sess.ID).
		Str("userID", userID).
		Str("room", room).
		Str("discipline", discipline).
		Logger()
	logger.Debug().Msg("client connected")

	go srv.handleWSConn(conn, sess, &logger)
}

func (srv *Server) handleWSConn(
	conn *websocket.Conn,
	sess *registry.Session,
	logger *zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.TODO()) // long-living connection context

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		srv.webSocketReceiver(ctx, wg, conn, sess, logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, sess.Wire.TX, logger)
		cancel()
	}()

	wg.Wait()
	webSocketCloser(conn, logger)
	// Runs for graceful and abnormal closes alike; relay side is idempotent.
	srv.handler.Close(context.Background(), sess)
	logger.Debug().Msg("client disconnected")
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Frame,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
			}
			logger.Trace().Msg("ping sent")

		case f, ok := <-tx:
			if !ok {
				break SendLoop
			}

			b, wsErr := json.Marshal(&f)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to marshall outgoing frame")
				break SendLoop
			}

			wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsW, wsErr := conn.NextWriter(websocket.TextMessage)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to get websocket text writer")
				break SendLoop
			}
			_, wsErr = wsW.Write(b)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing frame")
				break SendLoop
			}
			wsErr = wsW.Close()
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to close websocket writer")
				break SendLoop
			}
		}
	}
}

func (srv *Server) webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	sess *registry.Session,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Warn().Err(wsErr).Msg("connection closed")
				} else {
					logger.Error().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}

			var f model.Frame
			if wsErr = json.Unmarshal(msg, &f); wsErr != nil {
				// Malformed frame keeps the connection open.
				logger.Error().Err(wsErr).Msg("failed to unmarshall incoming frame")
				continue
			}
			if srv.handler.HandleFrame(ctx, sess, f) {
				logger.Debug().Msg("connection left room")
				break RecvLoop
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to close websocket connection")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
