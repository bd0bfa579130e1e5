// README: Optimistic mutation layer. Each mutation snapshots local state,
// applies the expected result immediately, and restores the exact snapshot
// if the server call fails. One mutation per key at a time.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"bento/internal/modules/order"
	"bento/internal/types"
)

// ErrBusy means a mutation for the same key is already in flight; the
// caller should retry after it settles rather than stacking deltas.
var ErrBusy = errors.New("mutation in flight")

// Mutator is the write slice of the API the reconciler drives.
type Mutator interface {
	UpdateStatus(ctx context.Context, id types.ID, target order.Status, note string) (*order.Order, error)
	CompletePickup(ctx context.Context, id types.ID, code string) error
	ToggleFollow(ctx context.Context, userID types.ID) (bool, error)
	AcceptOrder(ctx context.Context, id types.ID) (*order.Order, error)
}

type Reconciler struct {
	proj *Projection
	api  Mutator

	mu       sync.Mutex
	inflight map[string]bool
}

func NewReconciler(proj *Projection, api Mutator) *Reconciler {
	return &Reconciler{proj: proj, api: api, inflight: make(map[string]bool)}
}

// do serializes mutations per key: optimistic runs immediately, call hits
// the server, and restore puts back the pre-mutation snapshot on failure.
// Restoring the snapshot, never applying an inverse delta, is what keeps a
// failed mutation from corrupting state that changed meanwhile.
func (r *Reconciler) do(key string, optimistic func(), restore func(), call func() error) error {
	r.mu.Lock()
	if r.inflight[key] {
		r.mu.Unlock()
		return ErrBusy
	}
	r.inflight[key] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
	}()

	optimistic()
	if err := call(); err != nil {
		restore()
		return err
	}
	return nil
}

// UpdateStatus optimistically moves the order and reconciles with the
// server's authoritative copy.
func (r *Reconciler) UpdateStatus(ctx context.Context, id types.ID, target order.Status, note string) error {
	snapshot, ok := r.proj.Order(id)
	if !ok {
		return order.ErrNotFound
	}
	return r.do("order:"+string(id),
		func() {
			next := snapshot
			next.Status = target
			next.UpdatedAt = time.Now()
			r.proj.put(next)
		},
		func() { r.proj.restore(snapshot) },
		func() error {
			o, err := r.api.UpdateStatus(ctx, id, target, note)
			if err != nil {
				return err
			}
			r.proj.ReplaceFromFetch(o, time.Now())
			return nil
		},
	)
}

// RedeemPickupCode optimistically marks the order delivered; mismatch or
// expiry rolls the order back untouched.
func (r *Reconciler) RedeemPickupCode(ctx context.Context, id types.ID, code string) error {
	snapshot, ok := r.proj.Order(id)
	if !ok {
		return order.ErrNotFound
	}
	return r.do("order:"+string(id),
		func() {
			next := snapshot
			next.Status = order.StatusDelivered
			next.UpdatedAt = time.Now()
			r.proj.put(next)
		},
		func() { r.proj.restore(snapshot) },
		func() error { return r.api.CompletePickup(ctx, id, code) },
	)
}

// ToggleFollow optimistically flips the local edge.
func (r *Reconciler) ToggleFollow(ctx context.Context, userID types.ID) error {
	before := r.proj.Following(userID)
	return r.do("follow:"+string(userID),
		func() { r.proj.SetFollowing(userID, !before) },
		func() { r.proj.SetFollowing(userID, before) },
		func() error {
			following, err := r.api.ToggleFollow(ctx, userID)
			if err != nil {
				return err
			}
			// Server answer is authoritative.
			r.proj.SetFollowing(userID, following)
			return nil
		},
	)
}

// AcceptOrder claims a delivery; losing the race restores the snapshot and
// surfaces the conflict.
func (r *Reconciler) AcceptOrder(ctx context.Context, id types.ID, courierID types.ID) error {
	snapshot, ok := r.proj.Order(id)
	if !ok {
		return order.ErrNotFound
	}
	return r.do("order:"+string(id),
		func() {
			next := snapshot
			next.CourierID = &courierID
			r.proj.put(next)
		},
		func() { r.proj.restore(snapshot) },
		func() error {
			o, err := r.api.AcceptOrder(ctx, id)
			if err != nil {
				return err
			}
			r.proj.ReplaceFromFetch(o, time.Now())
			return nil
		},
	)
}
