// README: Courier service tracks agent availability and location and runs
// the nearby-order assignment protocol.
package courier

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"bento/internal/geo"
	"bento/internal/modules/order"
	"bento/internal/types"
)

var ErrInvalidLocation = errors.New("invalid location")

// Store is the redis-backed persistence surface; tests use a fake.
type Store interface {
	SetAvailable(ctx context.Context, id types.ID, available bool) error
	IsAvailable(ctx context.Context, id types.ID) (bool, error)
	AvailableCouriers(ctx context.Context) ([]types.ID, error)
	UpsertCourierPosition(ctx context.Context, id types.ID, pos geo.Coordinate) error
	AddOrderPickup(ctx context.Context, orderID types.ID, pos geo.Coordinate) error
	RemoveOrderPickup(ctx context.Context, orderID types.ID) error
	NearbyOrderIDs(ctx context.Context, pos geo.Coordinate, radiusKm float64) ([]types.ID, error)
	MarkRejected(ctx context.Context, courierID, orderID types.ID) error
	RejectedOrders(ctx context.Context, courierID types.ID) (map[types.ID]bool, error)
}

// Orders is the slice of the order service the courier flow needs.
type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	ListConfirmedUnassigned(ctx context.Context) ([]*order.Order, error)
	Assign(ctx context.Context, orderID, courierID types.ID) (*order.Order, error)
}

// Notifier pushes new-order events to connected couriers.
type Notifier interface {
	NotifyNewOrder(o *order.Order, courierIDs []types.ID)
}

type Config struct {
	SampleInterval time.Duration
	RadiusKm       float64
	// MinResults is the threshold under which proximity filtering falls
	// back to the full confirmed-unassigned list.
	MinResults int
}

// NearbyOrder pairs an open order with its distance from the courier.
// DistanceKm is -1 when the pickup coordinate is not resolvable.
type NearbyOrder struct {
	Order      *order.Order `json:"order"`
	DistanceKm float64      `json:"distance_km"`
}

type Service struct {
	store  Store
	orders Orders
	notify Notifier
	cfg    Config
	log    *zap.Logger

	mu     sync.Mutex
	latest map[types.ID]geo.Coordinate
}

func NewService(store Store, orders Orders, notify Notifier, cfg Config, log *zap.Logger) *Service {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 10 * time.Second
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 5.0
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  store,
		orders: orders,
		notify: notify,
		cfg:    cfg,
		log:    log,
		latest: make(map[types.ID]geo.Coordinate),
	}
}

func (s *Service) SetAvailability(ctx context.Context, courierID types.ID, available bool, pos geo.Coordinate) error {
	if err := s.store.SetAvailable(ctx, courierID, available); err != nil {
		return err
	}
	if available && pos.Valid() {
		s.rememberPosition(courierID, pos)
		return s.store.UpsertCourierPosition(ctx, courierID, pos)
	}
	return nil
}

// UpdateLocation records the latest reported position. The GEO index is
// refreshed immediately for available couriers; the sampler keeps it warm
// between reports.
func (s *Service) UpdateLocation(ctx context.Context, courierID types.ID, pos geo.Coordinate) error {
	if !pos.Valid() {
		return ErrInvalidLocation
	}
	s.rememberPosition(courierID, pos)

	available, err := s.store.IsAvailable(ctx, courierID)
	if err != nil {
		return err
	}
	if !available {
		return nil
	}
	return s.store.UpsertCourierPosition(ctx, courierID, pos)
}

// RunSampler periodically flushes the last reported position of every
// available courier to the GEO index.
func (s *Service) RunSampler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushPositions(ctx)
		}
	}
}

func (s *Service) flushPositions(ctx context.Context) {
	ids, err := s.store.AvailableCouriers(ctx)
	if err != nil {
		s.log.Warn("list available couriers failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		s.mu.Lock()
		pos, ok := s.latest[id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if err := s.store.UpsertCourierPosition(ctx, id, pos); err != nil {
			s.log.Warn("flush courier position failed", zap.String("courier_id", string(id)), zap.Error(err))
		}
	}
}

// NearbyOrders returns open orders around the courier sorted by distance.
// When the proximity search yields too few results it falls back to every
// confirmed unassigned order, so sparse areas still see work.
func (s *Service) NearbyOrders(ctx context.Context, courierID types.ID, pos geo.Coordinate) ([]NearbyOrder, error) {
	rejected, err := s.store.RejectedOrders(ctx, courierID)
	if err != nil {
		return nil, err
	}

	var out []NearbyOrder
	seen := make(map[types.ID]bool)

	if pos.Valid() {
		ids, err := s.store.NearbyOrderIDs(ctx, pos, s.cfg.RadiusKm)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if rejected[id] {
				continue
			}
			o, err := s.orders.Get(ctx, id)
			if err != nil {
				// Index entry may outlive the order; skip it.
				continue
			}
			if o.Status != order.StatusConfirmed || o.CourierID != nil {
				continue
			}
			out = append(out, NearbyOrder{Order: o, DistanceKm: distanceTo(pos, o)})
			seen[id] = true
		}
	}

	if len(out) < s.cfg.MinResults {
		all, err := s.orders.ListConfirmedUnassigned(ctx)
		if err != nil {
			return nil, err
		}
		for _, o := range all {
			if seen[o.ID] || rejected[o.ID] {
				continue
			}
			out = append(out, NearbyOrder{Order: o, DistanceKm: distanceTo(pos, o)})
		}
	}

	geo.SortByDistance(out, func(n NearbyOrder) float64 {
		if n.DistanceKm < 0 {
			// Unknown distances sort last.
			return 1e9
		}
		return n.DistanceKm
	})
	return out, nil
}

// Accept claims the order for the courier. Exactly one courier wins; the
// rest get order.ErrAlreadyAssigned.
func (s *Service) Accept(ctx context.Context, orderID, courierID types.ID) (*order.Order, error) {
	o, err := s.orders.Assign(ctx, orderID, courierID)
	if err != nil {
		return nil, err
	}
	s.log.Info("order accepted",
		zap.String("order_id", string(orderID)),
		zap.String("courier_id", string(courierID)),
	)
	return o, nil
}

// Reject hides the order from this courier's listings.
func (s *Service) Reject(ctx context.Context, orderID, courierID types.ID) error {
	return s.store.MarkRejected(ctx, courierID, orderID)
}

// OrderConfirmed implements order.Dispatcher: confirmed delivery orders
// enter the courier-visible pool.
func (s *Service) OrderConfirmed(ctx context.Context, o *order.Order) {
	if o.DeliveryMethod == order.DeliveryPickup {
		return
	}
	if o.PickupLocation.Valid() {
		if err := s.store.AddOrderPickup(ctx, o.ID, o.PickupLocation); err != nil {
			s.log.Warn("index order pickup failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}
	if s.notify != nil {
		ids, err := s.store.AvailableCouriers(ctx)
		if err != nil {
			s.log.Warn("list available couriers failed", zap.Error(err))
			return
		}
		s.notify.NotifyNewOrder(o, ids)
	}
}

// OrderClosed implements order.Dispatcher: assigned or terminal orders
// leave the pool.
func (s *Service) OrderClosed(ctx context.Context, orderID types.ID) {
	if err := s.store.RemoveOrderPickup(ctx, orderID); err != nil {
		s.log.Warn("remove order pickup failed", zap.String("order_id", string(orderID)), zap.Error(err))
	}
}

func (s *Service) rememberPosition(courierID types.ID, pos geo.Coordinate) {
	s.mu.Lock()
	s.latest[courierID] = pos
	s.mu.Unlock()
}

func distanceTo(pos geo.Coordinate, o *order.Order) float64 {
	if !pos.Valid() || !o.PickupLocation.Valid() {
		return -1
	}
	return geo.Distance(pos, o.PickupLocation)
}
