// README: Fanout bridges order status events to websocket clients and the
// message broker. Delivery is at-least-once; consumers deduplicate.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bento/internal/modules/order"
	"bento/internal/types"
)

// StatusMessage is the broker payload for an order status change.
type StatusMessage struct {
	OrderID       types.ID            `json:"order_id"`
	BuyerID       types.ID            `json:"buyer_id"`
	SellerID      types.ID            `json:"seller_id"`
	Status        order.Status        `json:"status"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	Note          string              `json:"note,omitempty"`
	Source        string              `json:"source,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

type StatusPusher interface {
	PublishOrderStatus(ctx context.Context, o *order.Order, e *order.StatusEvent) error
}

// Fanout implements order.EventSink over the hub plus an optional broker
// publisher. Broker failures are logged, never surfaced: the live feed and
// the poll fallback cover dropped messages.
type Fanout struct {
	hub    StatusPusher
	broker Publisher
	log    *zap.Logger
}

func NewFanout(hub StatusPusher, broker Publisher, log *zap.Logger) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{hub: hub, broker: broker, log: log}
}

func (f *Fanout) PublishStatus(ctx context.Context, o *order.Order, e *order.StatusEvent) {
	if f.hub != nil {
		if err := f.hub.PublishOrderStatus(ctx, o, e); err != nil {
			f.log.Warn("push status to hub failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}
	if f.broker == nil {
		return
	}

	msg := StatusMessage{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		Status:        e.Status,
		PaymentStatus: e.PaymentStatus,
		Note:          e.Note,
		Source:        e.Source,
		OccurredAt:    e.CreatedAt,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		f.log.Warn("marshal status message failed", zap.Error(err))
		return
	}
	key := fmt.Sprintf("order.status.%s", e.Status)
	if err := f.broker.Publish(ctx, key, payload); err != nil {
		f.log.Warn("publish status to broker failed",
			zap.String("order_id", string(o.ID)),
			zap.String("routing_key", key),
			zap.Error(err),
		)
	}
}
