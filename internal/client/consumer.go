// README: Live event consumer. Folds stream events into the projection,
// resyncs from the API after every reconnect (discarding events buffered
// before the resync), and degrades to polling while the stream stays down
// for more than one reconnect cycle.
package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bento/internal/modules/order"
	"bento/internal/ws"
)

// Stream delivers server events plus connection-state changes (true on
// connect, false on drop). WSStream is the production implementation.
type Stream interface {
	Events() <-chan ws.Envelope
	States() <-chan bool
}

// Fetcher is the read slice of the API the consumer resyncs from.
type Fetcher interface {
	ListOrders(ctx context.Context, as string) ([]*order.Order, error)
}

const defaultPollInterval = 15 * time.Second

type Consumer struct {
	proj   *Projection
	api    Fetcher
	stream Stream
	// role selects which side of the order the poll fetches ("buyer",
	// "seller", "courier").
	role         string
	pollInterval time.Duration
	log          *zap.Logger
}

type ConsumerOption func(*Consumer)

func WithPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.pollInterval = d }
}

func NewConsumer(proj *Projection, api Fetcher, stream Stream, role string, log *zap.Logger, opts ...ConsumerOption) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Consumer{
		proj:         proj,
		api:          api,
		stream:       stream,
		role:         role,
		pollInterval: defaultPollInterval,
		log:          log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type resyncResult struct {
	gen uint64
	err error
}

// Run processes the stream until ctx is cancelled. Events that arrive
// between a reconnect and the completion of its resync are stale by
// construction and dropped; the resync carries the authoritative state.
func (c *Consumer) Run(ctx context.Context) {
	var (
		gen        uint64
		syncing    bool
		downs      int
		polling    bool
		resyncDone = make(chan resyncResult, 1)
	)

	poll := time.NewTicker(c.pollInterval)
	poll.Stop()
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-c.stream.Events():
			if !ok {
				return
			}
			if syncing {
				// Buffered from before the resync finished.
				continue
			}
			c.proj.ApplyEvent(env)

		case connected, ok := <-c.stream.States():
			if !ok {
				return
			}
			if !connected {
				// One down signal is the drop itself; every further one is
				// a reconnect cycle that failed to bring the stream back.
				downs++
				if downs > 1 && !polling {
					polling = true
					poll.Reset(c.pollInterval)
					c.log.Warn("stream down, enabling poll fallback")
				}
				continue
			}
			downs = 0
			if polling {
				polling = false
				poll.Stop()
				c.log.Info("stream recovered, disabling poll fallback")
			}
			gen++
			syncing = true
			go func(g uint64) {
				err := c.resync(ctx)
				resyncDone <- resyncResult{gen: g, err: err}
			}(gen)

		case res := <-resyncDone:
			if res.gen != gen {
				// A newer reconnect superseded this resync.
				continue
			}
			syncing = false
			if res.err != nil {
				c.log.Warn("resync failed", zap.Error(res.err))
			}

		case <-poll.C:
			if err := c.resync(ctx); err != nil {
				c.log.Warn("poll failed", zap.Error(err))
			}
		}
	}
}

func (c *Consumer) resync(ctx context.Context) error {
	orders, err := c.api.ListOrders(ctx, c.role)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, o := range orders {
		c.proj.ReplaceFromFetch(o, now)
	}
	return nil
}
