package client

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
	defaultWriteDeadline    = 5 * time.Second
)

var (
	// ErrLeft means the client left the room on purpose, no reconnect.
	ErrLeft = errors.New("left the room")
)

type (
	Config struct {
		Logger     *zerolog.Logger
		URL        string // relay websocket endpoint, e.g. ws://localhost:8888/ws
		Room       string
		UserID     string
		Username   string
		Discipline string

		// ReconnectDelay defaults to 5s, the relay keeps no session state
		// so every reconnect starts with a fresh join.
		ReconnectDelay time.Duration
	}

	// Client is the relay-side binding a well-behaved client follows: join
	// is the first frame on every (re)connect, and an unexpected disconnect
	// is retried after a fixed delay.
	Client struct {
		logger zerolog.Logger
		cfg    Config

		frames chan model.Frame
		out    chan model.Frame
	}
)

func New(cfg Config) *Client {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Client{
		logger: cfg.Logger.With().
			Str("component", "client").
			Str("userID", cfg.UserID).
			Logger(),
		cfg:    cfg,
		frames: make(chan model.Frame, 16),
		out:    make(chan model.Frame),
	}
}

// Frames exposes everything the relay pushes to this connection.
func (c *Client) Frames() <-chan model.Frame {
	return c.frames
}

// Run keeps the connection alive until ctx is canceled, re-dialing after
// ReconnectDelay on any transport failure.
func (c *Client) Run(ctx context.Context) {
ConnectLoop:
	for {
		err := c.runOnce(ctx)
		if errors.Is(err, ErrLeft) {
			break ConnectLoop
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn().Err(err).Msg("connection lost")
		}
		select {
		case <-ctx.Done():
			break ConnectLoop
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// SendMessage sends a chat message to the joined room.
func (c *Client) SendMessage(ctx context.Context, text, kind string) error {
	return c.send(ctx, model.Frame{
		Type:     model.FrameMessage,
		Room:     c.cfg.Room,
		UserID:   c.cfg.UserID,
		Username: c.cfg.Username,
		Text:     text,
		Kind:     kind,
	})
}

// SendSignal relays a negotiation payload to a single peer in the room.
func (c *Client) SendSignal(ctx context.Context, frameType, to string, payload []byte) error {
	return c.send(ctx, model.Frame{
		Type:    frameType,
		Room:    c.cfg.Room,
		To:      to,
		Payload: payload,
	})
}

// Leave announces departure from the room. The relay closes the room-side
// state; the caller should cancel Run's context afterwards.
func (c *Client) Leave(ctx context.Context) error {
	return c.send(ctx, model.Frame{
		Type: model.FrameLeave,
		Room: c.cfg.Room,
	})
}

func (c *Client) send(ctx context.Context, f model.Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.out <- f:
		return nil
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("userId", c.cfg.UserID)
	q.Set("room", c.cfg.Room)
	q.Set("discipline", c.cfg.Discipline)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) runOnce(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()
	c.logger.Debug().Str("endpoint", c.cfg.URL).Msg("connected")

	// Join goes out before anything else, the relay drops frames from
	// unjoined connections.
	err = c.writeFrame(conn, model.Frame{
		Type:     model.FrameJoin,
		Room:     c.cfg.Room,
		UserID:   c.cfg.UserID,
		Username: c.cfg.Username,
	})
	if err != nil {
		return err
	}

	errRecv := make(chan error, 1)
	go func() {
		for {
			var f model.Frame
			if rErr := conn.ReadJSON(&f); rErr != nil {
				errRecv <- rErr
				return
			}
			select {
			case c.frames <- f:
			case <-ctx.Done():
				errRecv <- ctx.Err()
				return
			}
		}
	}()

SessionLoop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break SessionLoop
		case err = <-errRecv:
			break SessionLoop
		case f := <-c.out:
			if err = c.writeFrame(conn, f); err != nil {
				break SessionLoop
			}
			if f.Type == model.FrameLeave {
				err = ErrLeft
				break SessionLoop
			}
		}
	}
	return err
}

func (c *Client) writeFrame(conn *websocket.Conn, f model.Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}
