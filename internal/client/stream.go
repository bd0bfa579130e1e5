// README: WebSocket stream with capped exponential reconnect.
package client

import (
	"context"
	"encoding/json"
	"time"

	gw "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bento/internal/ws"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// WSStream dials the server's /ws endpoint and keeps the connection alive,
// reconnecting with capped exponential backoff. Each (re)connect emits true
// on States so the consumer can resync; each drop and each failed redial
// emits false so the consumer can see how long the stream has been down.
type WSStream struct {
	url    string
	events chan ws.Envelope
	states chan bool
	log    *zap.Logger
}

// NewWSStream takes the full dial URL including the token query parameter,
// e.g. wss://host/ws?token=....
func NewWSStream(url string, log *zap.Logger) *WSStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSStream{
		url:    url,
		events: make(chan ws.Envelope, 64),
		states: make(chan bool, 4),
		log:    log,
	}
}

func (s *WSStream) Events() <-chan ws.Envelope { return s.events }
func (s *WSStream) States() <-chan bool        { return s.states }

// Run dials and reads until ctx is cancelled.
func (s *WSStream) Run(ctx context.Context) {
	backoff := reconnectBase
	for {
		conn, _, err := gw.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.Warn("ws dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			s.notify(false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, reconnectMax)
			continue
		}
		backoff = reconnectBase
		s.notify(true)

		s.readLoop(ctx, conn)
		_ = conn.Close()
		s.notify(false)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *WSStream) readLoop(ctx context.Context, conn *gw.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env ws.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			s.log.Warn("bad envelope", zap.Error(err))
			continue
		}
		select {
		case s.events <- env:
		default:
			s.log.Warn("event buffer full, dropping", zap.Uint64("seq", env.Seq))
		}
	}
}

func (s *WSStream) notify(connected bool) {
	select {
	case s.states <- connected:
	default:
	}
}
