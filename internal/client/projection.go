// README: Client-side order projection. Applies status events idempotently,
// never lets a stale event or fetch move an order backwards, and guards
// held coordinates against invalid incoming ones.
package client

import (
	"sync"
	"time"

	"bento/internal/geo"
	"bento/internal/modules/order"
	"bento/internal/modules/pickup"
	"bento/internal/types"
	"bento/internal/ws"
)

// eventKey deduplicates at-least-once delivery.
type eventKey struct {
	orderID types.ID
	status  order.Status
	pay     order.PaymentStatus
}

type Projection struct {
	mu        sync.Mutex
	orders    map[types.ID]*order.Order
	fetchedAt map[types.ID]time.Time
	seen      map[eventKey]bool
	subs      map[types.ID][]func(order.Order)
	follows   map[types.ID]bool
}

func NewProjection() *Projection {
	return &Projection{
		orders:    make(map[types.ID]*order.Order),
		fetchedAt: make(map[types.ID]time.Time),
		seen:      make(map[eventKey]bool),
		subs:      make(map[types.ID][]func(order.Order)),
		follows:   make(map[types.ID]bool),
	}
}

// ApplyEvent folds a status event into the projection. Duplicate events
// (same order, status, payment status) are no-ops, and an event that would
// move the status backwards is discarded. Returns whether state changed.
func (p *Projection) ApplyEvent(env ws.Envelope) bool {
	if env.Event != ws.EventOrderStatusUpdate || env.OrderID == "" {
		return false
	}
	p.mu.Lock()
	key := eventKey{orderID: env.OrderID, status: env.Status, pay: env.PaymentStatus}
	if p.seen[key] {
		p.mu.Unlock()
		return false
	}
	p.seen[key] = true

	o, ok := p.orders[env.OrderID]
	if !ok {
		o = &order.Order{ID: env.OrderID}
		p.orders[env.OrderID] = o
	} else if order.Ordinal(env.Status) < order.Ordinal(o.Status) {
		// Late event from before the current status. Drop it.
		p.mu.Unlock()
		return false
	}

	o.Status = env.Status
	if env.PaymentStatus != "" {
		o.PaymentStatus = env.PaymentStatus
	}
	if !env.Ts.IsZero() {
		o.UpdatedAt = env.Ts
	}
	snapshot := *o
	subs := append([]func(order.Order){}, p.subs[env.OrderID]...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return true
}

// ReplaceFromFetch reconciles a fetched order into the projection. Only the
// most recent fetch wins, valid held coordinates survive an invalid fetch,
// and the status never moves backwards.
func (p *Projection) ReplaceFromFetch(fetched *order.Order, fetchedAt time.Time) {
	if fetched == nil || fetched.ID == "" {
		return
	}
	p.mu.Lock()

	if prev, ok := p.fetchedAt[fetched.ID]; ok && fetchedAt.Before(prev) {
		p.mu.Unlock()
		return
	}
	p.fetchedAt[fetched.ID] = fetchedAt

	next := *fetched
	if held, ok := p.orders[fetched.ID]; ok {
		next.PickupLocation, _ = geo.Merge(held.PickupLocation, fetched.PickupLocation)
		next.DeliveryLocation, _ = geo.Merge(held.DeliveryLocation, fetched.DeliveryLocation)
		if order.Ordinal(fetched.Status) < order.Ordinal(held.Status) {
			next.Status = held.Status
			next.PaymentStatus = held.PaymentStatus
		}
	}
	p.orders[fetched.ID] = &next

	snapshot := next
	subs := append([]func(order.Order){}, p.subs[fetched.ID]...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Order returns a copy of the projected order.
func (p *Projection) Order(id types.ID) (order.Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return order.Order{}, false
	}
	return *o, true
}

func (p *Projection) Orders() []order.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]order.Order, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out
}

// SubscribeOrder registers a callback invoked after each applied change.
func (p *Projection) SubscribeOrder(id types.ID, fn func(order.Order)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[id] = append(p.subs[id], fn)
}

// restore overwrites the projected order with a snapshot; the reconciler
// uses it to roll back failed optimistic mutations.
func (p *Projection) restore(snapshot order.Order) {
	p.mu.Lock()
	p.orders[snapshot.ID] = &snapshot
	p.mu.Unlock()
}

func (p *Projection) put(o order.Order) {
	p.mu.Lock()
	p.orders[o.ID] = &o
	p.mu.Unlock()
}

// SetFollowing records the local follow state for a seller.
func (p *Projection) SetFollowing(userID types.ID, following bool) {
	p.mu.Lock()
	p.follows[userID] = following
	p.mu.Unlock()
}

func (p *Projection) Following(userID types.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.follows[userID]
}

// PickupCountdown returns the remaining validity of the order's pickup code.
func (p *Projection) PickupCountdown(id types.ID, now time.Time) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok || o.PickupCodeExpiry == nil {
		return 0, false
	}
	return pickup.Countdown(*o.PickupCodeExpiry, now), true
}

// AgentDistance returns the distance in km from the courier's position to
// the order's delivery point, when both coordinates are usable.
func (p *Projection) AgentDistance(id types.ID, agent geo.Coordinate) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok || !agent.Valid() || !o.DeliveryLocation.Valid() {
		return 0, false
	}
	return geo.Distance(agent, o.DeliveryLocation), true
}
