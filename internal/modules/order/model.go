// README: Order aggregate, status definitions and transition rules.
package order

import (
	"time"

	"bento/internal/geo"
	"bento/internal/types"
)

type Status string

const (
	StatusProcessing     Status = "processing"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PayCash   PaymentMethod = "cash"
	PayWallet PaymentMethod = "wallet"
	PayCard   PaymentMethod = "card"
)

type DeliveryMethod string

const (
	DeliveryStandard DeliveryMethod = "standard"
	DeliveryExpress  DeliveryMethod = "express"
	DeliveryPickup   DeliveryMethod = "pickup"
)

type Order struct {
	ID               types.ID       `json:"id"`
	BuyerID          types.ID       `json:"buyer_id"`
	SellerID         types.ID       `json:"seller_id"`
	CourierID        *types.ID      `json:"courier_id,omitempty"`
	Status           Status         `json:"status"`
	StatusVersion    int            `json:"status_version"`
	PaymentStatus    PaymentStatus  `json:"payment_status"`
	PaymentMethod    PaymentMethod  `json:"payment_method"`
	DeliveryMethod   DeliveryMethod `json:"delivery_method"`
	Items            []Item         `json:"items"`
	Subtotal         types.Money    `json:"subtotal"`
	Tax              types.Money    `json:"tax"`
	DeliveryFee      types.Money    `json:"delivery_fee"`
	Discount         types.Money    `json:"discount"`
	Total            types.Money    `json:"total"`
	PickupLocation   geo.Coordinate `json:"pickup_location"`
	DeliveryLocation geo.Coordinate `json:"delivery_location"`
	PickupAddress    string         `json:"pickup_address,omitempty"`
	PickupCode       *string        `json:"pickup_code,omitempty"`
	PickupCodeExpiry *time.Time     `json:"pickup_code_expires_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type Item struct {
	ProductID types.ID    `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UnitPrice types.Money `json:"unit_price"`
}

// StatusEvent is the audit record for a transition. Consumers deduplicate
// on (OrderID, Status, PaymentStatus).
type StatusEvent struct {
	ID            int64         `json:"id"`
	OrderID       types.ID      `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	Note          string        `json:"note,omitempty"`
	Source        string        `json:"source"`
	CreatedAt     time.Time     `json:"created_at"`
}

// AllowedTransitions represents the order status flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusProcessing:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
}

// statusOrdinal orders statuses along the forward path; display code uses
// it to discard a lower event that arrives after a higher one.
var statusOrdinal = map[Status]int{
	StatusProcessing:     0,
	StatusConfirmed:      1,
	StatusPreparing:      2,
	StatusOutForDelivery: 3,
	StatusDelivered:      4,
	StatusCancelled:      5,
}

// Ordinal returns the position of s along the forward path, or -1 for an
// unknown status.
func Ordinal(s Status) int {
	if n, ok := statusOrdinal[s]; ok {
		return n
	}
	return -1
}

func Terminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an order using the given delivery method
// may move from one status to another. Cancellation is reachable from any
// non-terminal state; self-pickup orders skip the courier leg and are
// delivered directly on code redemption.
func CanTransition(method DeliveryMethod, from, to Status) bool {
	if Terminal(from) {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	if method == DeliveryPickup && to == StatusDelivered &&
		(from == StatusConfirmed || from == StatusPreparing) {
		return true
	}
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InitialStatus derives the status a fresh order starts in. Cash orders
// are accepted on placement, a deliberate business rule.
func InitialStatus(method PaymentMethod) Status {
	if method == PayCash {
		return StatusConfirmed
	}
	return StatusProcessing
}

// Display-only derivations; no transition effect.

var statusLabels = map[Status]string{
	StatusProcessing:     "Waiting for payment",
	StatusConfirmed:      "Order confirmed",
	StatusPreparing:      "Being prepared",
	StatusOutForDelivery: "Out for delivery",
	StatusDelivered:      "Delivered",
	StatusCancelled:      "Cancelled",
}

var statusColors = map[Status]string{
	StatusProcessing:     "orange",
	StatusConfirmed:      "blue",
	StatusPreparing:      "purple",
	StatusOutForDelivery: "teal",
	StatusDelivered:      "green",
	StatusCancelled:      "red",
}

func StatusLabel(s Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func StatusColor(s Status) string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "gray"
}
