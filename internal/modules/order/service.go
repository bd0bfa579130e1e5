// README: Order service implements state transitions, derived pricing and
// the side effects hanging off each transition.
package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"bento/internal/geo"
	"bento/internal/types"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("order not found")
	ErrConflict          = errors.New("order state conflict")
	ErrAlreadyAssigned   = errors.New("order already assigned")
	ErrBadRequest        = errors.New("bad request")
)

// Store is the persistence surface the service needs. The production
// implementation is PgStore; tests use an in-memory fake.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	List(ctx context.Context, f Filter) ([]*Order, error)
	// UpdateStatus performs a compare-and-set on (status, status_version)
	// and reports whether the row was won.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, pay *PaymentStatus) (bool, error)
	SetPaymentStatus(ctx context.Context, id types.ID, ps PaymentStatus) error
	SetPickupCode(ctx context.Context, id types.ID, code *string, expiresAt *time.Time) error
	// AssignCourier wins only if the order is still open and unassigned.
	AssignCourier(ctx context.Context, id, courierID types.ID) (bool, error)
	ListConfirmedUnassigned(ctx context.Context) ([]*Order, error)
	AppendEvent(ctx context.Context, e *StatusEvent) error
}

type Filter struct {
	BuyerID   types.ID
	SellerID  types.ID
	CourierID types.ID
	Status    Status
}

// PickupCodes issues and invalidates one-time pickup verification codes.
type PickupCodes interface {
	Issue(ctx context.Context, orderID types.ID) (code string, expiresAt time.Time, err error)
	Invalidate(ctx context.Context, orderID types.ID) error
}

// FeeQuote is the derived cost breakdown added on top of the item subtotal.
type FeeQuote struct {
	Tax         types.Money
	DeliveryFee types.Money
	Discount    types.Money
}

// Fees computes the quote for a given distance and delivery method.
type Fees interface {
	Quote(ctx context.Context, distanceKm float64, method DeliveryMethod, subtotal types.Money) (FeeQuote, error)
}

// EventSink receives every applied transition for fan-out to observers.
type EventSink interface {
	PublishStatus(ctx context.Context, o *Order, e *StatusEvent)
}

// Dispatcher is notified when an order enters or leaves the pool couriers
// can pick from.
type Dispatcher interface {
	OrderConfirmed(ctx context.Context, o *Order)
	OrderClosed(ctx context.Context, orderID types.ID)
}

type Service struct {
	store    Store
	codes    PickupCodes
	fees     Fees
	sink     EventSink
	dispatch Dispatcher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Store, codes PickupCodes, fees Fees, sink EventSink, dispatch Dispatcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		codes:    codes,
		fees:     fees,
		sink:     sink,
		dispatch: dispatch,
		log:      log,
		now:      time.Now,
	}
}

// SetDispatcher breaks the construction cycle with the courier service;
// called once during wiring.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatch = d
}

type CreateCommand struct {
	BuyerID          types.ID
	SellerID         types.ID
	PaymentMethod    PaymentMethod
	DeliveryMethod   DeliveryMethod
	Items            []Item
	PickupLocation   geo.Coordinate
	DeliveryLocation geo.Coordinate
	PickupAddress    string
	Discount         types.Money
}

type TransitionCommand struct {
	OrderID       types.ID
	Target        Status
	PaymentStatus *PaymentStatus
	Note          string
	Source        string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.BuyerID == "" || cmd.SellerID == "" || len(cmd.Items) == 0 {
		return nil, ErrBadRequest
	}
	switch cmd.DeliveryMethod {
	case DeliveryStandard, DeliveryExpress, DeliveryPickup:
	default:
		return nil, ErrBadRequest
	}

	now := s.now()
	subtotal := types.Money{Currency: currencyOf(cmd.Items)}
	for _, it := range cmd.Items {
		if it.Quantity <= 0 {
			return nil, ErrBadRequest
		}
		subtotal.Amount += it.UnitPrice.Amount * int64(it.Quantity)
	}

	var quote FeeQuote
	if s.fees != nil {
		distanceKm := 0.0
		if cmd.PickupLocation.Valid() && cmd.DeliveryLocation.Valid() {
			distanceKm = geo.Distance(cmd.PickupLocation, cmd.DeliveryLocation)
		}
		q, err := s.fees.Quote(ctx, distanceKm, cmd.DeliveryMethod, subtotal)
		if err != nil {
			return nil, err
		}
		quote = q
	}
	quote.Discount = quote.Discount.Add(cmd.Discount)

	o := &Order{
		ID:               types.NewID(),
		BuyerID:          cmd.BuyerID,
		SellerID:         cmd.SellerID,
		Status:           InitialStatus(cmd.PaymentMethod),
		StatusVersion:    0,
		PaymentStatus:    PaymentPending,
		PaymentMethod:    cmd.PaymentMethod,
		DeliveryMethod:   cmd.DeliveryMethod,
		Items:            cmd.Items,
		Subtotal:         subtotal,
		Tax:              quote.Tax,
		DeliveryFee:      quote.DeliveryFee,
		Discount:         quote.Discount,
		Total:            subtotal.Add(quote.Tax).Add(quote.DeliveryFee).Sub(quote.Discount),
		PickupLocation:   cmd.PickupLocation,
		DeliveryLocation: cmd.DeliveryLocation,
		PickupAddress:    cmd.PickupAddress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}

	// Cash pickup orders are confirmed on placement. The code is issued
	// only once the row exists so a failed insert cannot strand a code
	// record in the code store.
	if o.Status == StatusConfirmed && o.DeliveryMethod == DeliveryPickup {
		if err := s.issueCode(ctx, o); err != nil {
			s.log.Warn("pickup code issue failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		} else if err := s.store.SetPickupCode(ctx, o.ID, o.PickupCode, o.PickupCodeExpiry); err != nil {
			s.log.Warn("pickup code persist failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}
	s.appendAndPublish(ctx, o, "", "buyer")
	if o.Status == StatusConfirmed && s.dispatch != nil {
		s.dispatch.OrderConfirmed(ctx, o)
	}
	return o, nil
}

// Transition moves an order to the target status, rejecting moves not in
// the graph and losing gracefully on concurrent writers.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.DeliveryMethod, o.Status, cmd.Target) {
		return nil, ErrInvalidTransition
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, cmd.Target, o.StatusVersion, cmd.PaymentStatus)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	o.Status = cmd.Target
	o.StatusVersion++
	o.UpdatedAt = s.now()
	if cmd.PaymentStatus != nil {
		o.PaymentStatus = *cmd.PaymentStatus
	}

	switch {
	case cmd.Target == StatusConfirmed:
		if o.DeliveryMethod == DeliveryPickup {
			if err := s.issueCode(ctx, o); err != nil {
				s.log.Warn("pickup code issue failed", zap.String("order_id", string(o.ID)), zap.Error(err))
			} else if err := s.store.SetPickupCode(ctx, o.ID, o.PickupCode, o.PickupCodeExpiry); err != nil {
				s.log.Warn("pickup code persist failed", zap.String("order_id", string(o.ID)), zap.Error(err))
			}
		}
		if s.dispatch != nil {
			s.dispatch.OrderConfirmed(ctx, o)
		}
	case cmd.Target == StatusDelivered && o.PickupCode != nil:
		if s.codes != nil {
			if err := s.codes.Invalidate(ctx, o.ID); err != nil {
				s.log.Warn("pickup code invalidate failed", zap.String("order_id", string(o.ID)), zap.Error(err))
			}
		}
		o.PickupCode = nil
		o.PickupCodeExpiry = nil
		if err := s.store.SetPickupCode(ctx, o.ID, nil, nil); err != nil {
			s.log.Warn("pickup code clear failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}
	if Terminal(cmd.Target) && s.dispatch != nil {
		s.dispatch.OrderClosed(ctx, o.ID)
	}

	s.appendAndPublish(ctx, o, cmd.Note, cmd.Source)
	return o, nil
}

// Deliver marks an order delivered on behalf of the redeeming agent. Cash
// orders settle on hand-over.
func (s *Service) Deliver(ctx context.Context, orderID types.ID, source string) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	var pay *PaymentStatus
	if o.PaymentMethod == PayCash && o.PaymentStatus == PaymentPending {
		paid := PaymentPaid
		pay = &paid
	}
	_, err = s.Transition(ctx, TransitionCommand{
		OrderID:       orderID,
		Target:        StatusDelivered,
		PaymentStatus: pay,
		Source:        source,
	})
	return err
}

// MarkPaid reacts to the external payment-succeeded signal. It is not
// authoritative for settlement; it only records the outcome.
func (s *Service) MarkPaid(ctx context.Context, orderID types.ID, source string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	paid := PaymentPaid
	if o.Status == StatusProcessing {
		return s.Transition(ctx, TransitionCommand{
			OrderID:       orderID,
			Target:        StatusConfirmed,
			PaymentStatus: &paid,
			Source:        source,
		})
	}
	if err := s.store.SetPaymentStatus(ctx, orderID, paid); err != nil {
		return nil, err
	}
	o.PaymentStatus = paid
	o.UpdatedAt = s.now()
	s.appendAndPublish(ctx, o, "payment confirmed", source)
	return o, nil
}

// Assign atomically claims an order for a courier. Exactly one courier
// wins; losers get ErrAlreadyAssigned.
func (s *Service) Assign(ctx context.Context, orderID, courierID types.ID) (*Order, error) {
	ok, err := s.store.AssignCourier(ctx, orderID, courierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyAssigned
	}
	if s.dispatch != nil {
		s.dispatch.OrderClosed(ctx, orderID)
	}
	return s.store.Get(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Order, error) {
	return s.store.List(ctx, f)
}

func (s *Service) ListConfirmedUnassigned(ctx context.Context) ([]*Order, error) {
	return s.store.ListConfirmedUnassigned(ctx)
}

func (s *Service) issueCode(ctx context.Context, o *Order) error {
	if s.codes == nil {
		return nil
	}
	code, expiresAt, err := s.codes.Issue(ctx, o.ID)
	if err != nil {
		return err
	}
	o.PickupCode = &code
	o.PickupCodeExpiry = &expiresAt
	return nil
}

func (s *Service) appendAndPublish(ctx context.Context, o *Order, note, source string) {
	e := &StatusEvent{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Note:          note,
		Source:        source,
		CreatedAt:     s.now(),
	}
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.Warn("append status event failed", zap.String("order_id", string(o.ID)), zap.Error(err))
	}
	if s.sink != nil {
		s.sink.PublishStatus(ctx, o, e)
	}
}

func currencyOf(items []Item) string {
	for _, it := range items {
		if it.UnitPrice.Currency != "" {
			return it.UnitPrice.Currency
		}
	}
	return "USD"
}
