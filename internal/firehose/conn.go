package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config controls a single firehose connection.
type Config struct {
	// URL is the subscribe endpoint, e.g. wss://host/subscribe.
	URL string
	// Collections narrows the subscription via wantedCollections params.
	Collections []string
	// Cursor optionally resumes the stream from a time_us position.
	Cursor int64
	// HandshakeTimeout bounds the websocket dial (default 45s).
	HandshakeTimeout time.Duration
	// Logger is optional.
	Logger *zap.Logger
}

// Conn owns one long-lived websocket subscription. Events are delivered on
// the Events channel in stream order; the channel closes when the transport
// fails or Close is called, after which Err reports the cause. A Conn does
// not reconnect; callers open a new one.
type Conn struct {
	ws     *websocket.Conn
	events chan Event
	logger *zap.Logger

	mu        sync.Mutex
	err       error
	closed    bool
	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
}

// Dial opens the subscription and starts the read loop. The context bounds
// the dial only; use Close to tear down an established connection.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	u, err := subscribeURL(cfg)
	if err != nil {
		return nil, err
	}

	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 45 * time.Second
	}
	dialer := &websocket.Dialer{HandshakeTimeout: handshake}

	ws, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial firehose: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Conn{
		ws:     ws,
		events: make(chan Event, 64),
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the decoded event stream. The channel closes on transport
// failure or Close.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Err returns the transport error that ended the stream, or nil after a
// clean Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears down the websocket and waits for the read loop to exit. It
// releases a read loop blocked on an unread events channel, so callers may
// Close without draining Events first.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)
		err = c.ws.Close()
		<-c.done
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = fmt.Errorf("read firehose message: %w", err)
			}
			c.mu.Unlock()
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Debug("skipping undecodable firehose message", zap.Error(err))
			continue
		}
		if evt.Kind != KindCommit {
			continue
		}
		select {
		case c.events <- evt:
		case <-c.quit:
			return
		}
	}
}

func subscribeURL(cfg Config) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse firehose url: %w", err)
	}
	q := u.Query()
	for _, col := range cfg.Collections {
		q.Add("wantedCollections", col)
	}
	if cfg.Cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cfg.Cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
