// Package channel is the websocket client side of the shared session
// channel.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/volkzayaz/RR-sub003/internal/actor"
	"github.com/volkzayaz/RR-sub003/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

type Config struct {
	URL     string // ws://relay:3004/ws
	Session string
	Token   string
	Origin  string
}

// Dialer opens relay connections for one session.
type Dialer struct {
	cfg    Config
	ws     *websocket.Dialer
	logger zerolog.Logger
}

func NewDialer(cfg Config, logger zerolog.Logger) *Dialer {
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "channel").Str("session", cfg.Session).Logger(),
	}
}

func (d *Dialer) endpoint() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("channel: invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("session", d.cfg.Session)
	if d.cfg.Token != "" {
		q.Set("token", d.cfg.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects and starts the pumps.
func (d *Dialer) Dial(ctx context.Context) (actor.Conn, error) {
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if d.cfg.Origin != "" {
		header.Set("Origin", d.cfg.Origin)
	}
	ws, resp, err := d.ws.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("channel: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("channel: dial: %w", err)
	}

	c := newConn(ws, d.logger)
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Conn is one websocket connection to the relay.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	in     chan wire.Envelope
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newConn(ws *websocket.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		in:     make(chan wire.Envelope, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *Conn) Send(ctx context.Context, env wire.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("channel: encode %s: %w", env.Type, err)
	}
	select {
	case <-c.done:
		return actor.ErrDisconnected
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return actor.ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Inbound() <-chan wire.Envelope { return c.in }

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// readPump owns the read side and the inbound channel.
func (c *Conn) readPump() {
	defer func() {
		close(c.in)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("read")
			}
			return
		}
		env, err := wire.Parse(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping frame")
			continue
		}
		select {
		case c.in <- env:
		case <-c.done:
			return
		}
	}
}

// writePump owns the write side and the socket itself.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("write")
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
