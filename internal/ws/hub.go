// README: WebSocket hub routes order events to the users they concern.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bento/internal/modules/order"
	"bento/internal/types"
)

const (
	EventOrderStatusUpdate = "order_status_update"
	EventNewOrderAvailable = "new_order_available"
)

// Envelope is the wire shape for every hub message. Seq increases
// monotonically per hub so consumers can spot resync boundaries.
type Envelope struct {
	Event         string              `json:"event"`
	OrderID       types.ID            `json:"order_id"`
	Status        order.Status        `json:"status,omitempty"`
	PaymentStatus order.PaymentStatus `json:"payment_status,omitempty"`
	Note          string              `json:"note,omitempty"`
	Source        string              `json:"source,omitempty"`
	Seq           uint64              `json:"seq"`
	Ts            time.Time           `json:"ts"`
}

type Client struct {
	hub    *Hub
	conn   wsConn
	send   chan []byte
	userID types.ID
}

type directed struct {
	userIDs []types.ID
	env     Envelope
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	send       chan directed
	done       chan struct{}
	clients    map[types.ID]map[*Client]bool
	seq        atomic.Uint64
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		send:       make(chan directed, 64),
		done:       make(chan struct{}),
		clients:    make(map[types.ID]map[*Client]bool),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[c.userID] = set
			}
			set[c] = true
		case c := <-h.unregister:
			if set, ok := h.clients[c.userID]; ok {
				if set[c] {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.clients, c.userID)
				}
			}
		case d := <-h.send:
			msg, err := json.Marshal(d.env)
			if err != nil {
				h.log.Warn("marshal envelope failed", zap.Error(err))
				continue
			}
			for _, uid := range d.userIDs {
				set, ok := h.clients[uid]
				if !ok {
					continue
				}
				for c := range set {
					select {
					case c.send <- msg:
					default:
						// Slow consumer: drop it, it will reconnect
						// and resync.
						delete(set, c)
						close(c.send)
					}
				}
			}
		case <-ctx.Done():
			close(h.done)
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			return
		}
	}
}

// PublishOrderStatus fans a status event out to every party on the order.
func (h *Hub) PublishOrderStatus(_ context.Context, o *order.Order, e *order.StatusEvent) error {
	ids := []types.ID{o.BuyerID, o.SellerID}
	if o.CourierID != nil {
		ids = append(ids, *o.CourierID)
	}
	h.dispatch(ids, Envelope{
		Event:         EventOrderStatusUpdate,
		OrderID:       o.ID,
		Status:        e.Status,
		PaymentStatus: e.PaymentStatus,
		Note:          e.Note,
		Source:        e.Source,
		Ts:            e.CreatedAt,
	})
	return nil
}

// NotifyNewOrder tells available couriers a delivery order is up for grabs.
func (h *Hub) NotifyNewOrder(o *order.Order, courierIDs []types.ID) {
	if len(courierIDs) == 0 {
		return
	}
	h.dispatch(courierIDs, Envelope{
		Event:         EventNewOrderAvailable,
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Ts:            time.Now(),
	})
}

// dispatch blocks when the outbound buffer is full rather than handing the
// envelope to a goroutine: same-order events must reach the clients in send
// order.
func (h *Hub) dispatch(userIDs []types.ID, env Envelope) {
	env.Seq = h.seq.Add(1)
	if env.Ts.IsZero() {
		env.Ts = time.Now()
	}
	select {
	case h.send <- directed{userIDs: userIDs, env: env}:
	case <-h.done:
	}
}
