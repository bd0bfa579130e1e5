// README: Pricing service computes the fee quote for an order.
package pricing

import (
	"context"
	"math"

	"bento/internal/modules/order"
	"bento/internal/types"
)

// RateSource looks up the rate for a delivery method; a miss falls back
// to the built-in defaults.
type RateSource interface {
	Rate(ctx context.Context, method string) (Rate, bool, error)
}

type Service struct {
	rates RateSource
}

func NewService(rates RateSource) *Service {
	return &Service{rates: rates}
}

// Quote derives tax and delivery fee for the given distance and method.
// Self-pickup orders carry no delivery fee regardless of distance.
func (s *Service) Quote(ctx context.Context, distanceKm float64, method order.DeliveryMethod, subtotal types.Money) (order.FeeQuote, error) {
	rate, ok := defaultRates[string(method)]
	if s.rates != nil {
		r, found, err := s.rates.Rate(ctx, string(method))
		if err != nil {
			return order.FeeQuote{}, err
		}
		if found {
			rate, ok = r, true
		}
	}
	if !ok {
		rate = Rate{Method: string(method)}
	}

	fee := rate.BaseFee + int64(math.Ceil(distanceKm))*rate.PerKm
	if method == order.DeliveryPickup {
		fee = 0
	}
	tax := subtotal.Amount * taxPermille / 1000

	return order.FeeQuote{
		Tax:         types.Money{Amount: tax, Currency: subtotal.Currency},
		DeliveryFee: types.Money{Amount: fee, Currency: subtotal.Currency},
		Discount:    types.Money{Currency: subtotal.Currency},
	}, nil
}
