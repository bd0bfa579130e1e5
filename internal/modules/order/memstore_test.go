// README: In-memory Store fake with the same CAS semantics as PgStore.
package order

import (
	"context"
	"sync"
	"time"

	"bento/internal/types"
)

type memStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
	events []*StatusEvent
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[types.ID]*Order)}
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.CourierID != nil {
		id := *o.CourierID
		c.CourierID = &id
	}
	if o.PickupCode != nil {
		v := *o.PickupCode
		c.PickupCode = &v
	}
	if o.PickupCodeExpiry != nil {
		t := *o.PickupCodeExpiry
		c.PickupCodeExpiry = &t
	}
	return &c
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && o.SellerID != f.SellerID {
			continue
		}
		if f.CourierID != "" && (o.CourierID == nil || *o.CourierID != f.CourierID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, pay *PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	if pay != nil {
		o.PaymentStatus = *pay
	}
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) SetPaymentStatus(_ context.Context, id types.ID, ps PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = ps
	return nil
}

func (m *memStore) SetPickupCode(_ context.Context, id types.ID, code *string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PickupCode = code
	o.PickupCodeExpiry = expiresAt
	return nil
}

func (m *memStore) AssignCourier(_ context.Context, id, courierID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.CourierID != nil {
		return false, nil
	}
	if o.Status != StatusConfirmed && o.Status != StatusPreparing {
		return false, nil
	}
	o.CourierID = &courierID
	return true, nil
}

func (m *memStore) ListConfirmedUnassigned(_ context.Context) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.Status == StatusConfirmed && o.CourierID == nil && o.DeliveryMethod != DeliveryPickup {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	return nil
}
