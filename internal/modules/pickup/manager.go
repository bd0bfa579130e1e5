// README: Pickup code manager; issues, verifies and redeems the one-time
// 4-digit collection code for self-pickup orders.
package pickup

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"bento/internal/types"
)

var (
	// ErrExpired covers both a lapsed window and a record the store no
	// longer holds.
	ErrExpired = errors.New("pickup code expired")
	// ErrMismatch covers a wrong code and a code already redeemed.
	ErrMismatch = errors.New("pickup code mismatch")
)

// DefaultWindow is how long an issued code stays redeemable.
const DefaultWindow = 20 * time.Minute

// Record is the stored state of one order's code. Exactly one record may
// be outstanding per order; issuing again overwrites.
type Record struct {
	Code      string
	ExpiresAt time.Time
	Redeemed  bool
}

// ConsumeResult is the outcome of an atomic redeem attempt.
type ConsumeResult int

const (
	ConsumeOK ConsumeResult = iota
	ConsumeExpired
	ConsumeMismatch
)

// Store persists code records. Consume must be atomic: concurrent redeems
// with the correct code yield exactly one ConsumeOK. Revoke marks a record
// redeemed in place; the record must survive until its TTL so later
// attempts answer mismatch rather than expired.
type Store interface {
	Put(ctx context.Context, orderID types.ID, rec Record, ttl time.Duration) error
	Get(ctx context.Context, orderID types.ID) (Record, bool, error)
	Consume(ctx context.Context, orderID types.ID, code string, now time.Time) (ConsumeResult, error)
	Revoke(ctx context.Context, orderID types.ID) error
}

// Deliverer completes the order once a code is redeemed.
type Deliverer interface {
	Deliver(ctx context.Context, orderID types.ID, source string) error
}

type Manager struct {
	store  Store
	orders Deliverer
	window time.Duration
	log    *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, orders Deliverer, window time.Duration, log *zap.Logger) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, orders: orders, window: window, log: log, now: time.Now}
}

// SetDeliverer breaks the construction cycle between the order service
// and the manager; called once during wiring.
func (m *Manager) SetDeliverer(d Deliverer) {
	m.orders = d
}

// Issue generates a fresh 4-digit code with a fixed expiry window. Any
// previously outstanding code for the order is superseded.
func (m *Manager) Issue(ctx context.Context, orderID types.ID) (string, time.Time, error) {
	code, err := generateCode()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := m.now().Add(m.window)
	rec := Record{Code: code, ExpiresAt: expiresAt}
	// TTL slightly outlives the window so a post-expiry verify can
	// still answer Expired instead of guessing.
	if err := m.store.Put(ctx, orderID, rec, m.window+time.Minute); err != nil {
		return "", time.Time{}, fmt.Errorf("store pickup code: %w", err)
	}
	m.log.Info("pickup code issued",
		zap.String("order_id", string(orderID)),
		zap.Time("expires_at", expiresAt),
	)
	return code, expiresAt, nil
}

// Verify checks a code without consuming it.
func (m *Manager) Verify(ctx context.Context, orderID types.ID, code string) error {
	rec, ok, err := m.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok || m.now().After(rec.ExpiresAt) {
		return ErrExpired
	}
	if rec.Redeemed || rec.Code != code {
		return ErrMismatch
	}
	return nil
}

// Redeem consumes the code exactly once and marks the order delivered.
// A repeat redeem with the correct code fails ErrMismatch: the code has
// been consumed.
func (m *Manager) Redeem(ctx context.Context, orderID types.ID, code string) error {
	res, err := m.store.Consume(ctx, orderID, code, m.now())
	if err != nil {
		return err
	}
	switch res {
	case ConsumeExpired:
		return ErrExpired
	case ConsumeMismatch:
		return ErrMismatch
	}
	if m.orders != nil {
		if err := m.orders.Deliver(ctx, orderID, "agent"); err != nil {
			return err
		}
	}
	m.log.Info("pickup code redeemed", zap.String("order_id", string(orderID)))
	return nil
}

// Invalidate revokes any outstanding code for the order. The record stays
// in the store until its TTL, flagged redeemed, so a later attempt with the
// old code answers ErrMismatch instead of ErrExpired.
func (m *Manager) Invalidate(ctx context.Context, orderID types.ID) error {
	return m.store.Revoke(ctx, orderID)
}

// Countdown returns the remaining redemption window, clamped at zero.
// Pure; display code calls it every tick.
func Countdown(expiresAt, now time.Time) time.Duration {
	d := expiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// generateCode draws a uniform 4-digit code in [1000, 9999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generate pickup code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+1000), nil
}
