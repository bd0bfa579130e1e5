// README: HTTP API client used by observer apps (buyer, seller, courier).
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"bento/internal/geo"
	"bento/internal/modules/order"
	"bento/internal/types"
)

var ErrUnauthorized = errors.New("unauthorized")

// API wraps the server's REST surface. Only idempotent GETs are retried;
// mutations go through the reconciler, which owns rollback.
type API struct {
	http *resty.Client
	// onUnauthorized fires once per 401 so the app can drop its cached
	// credentials and re-login.
	onUnauthorized func()
}

type APIOption func(*API)

func WithUnauthorizedHandler(fn func()) APIOption {
	return func(a *API) { a.onUnauthorized = fn }
}

func NewAPI(baseURL, token string, opts ...APIOption) *API {
	a := &API{}
	a.http = resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r != nil && r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) SetToken(token string) {
	a.http.SetAuthToken(token)
}

type apiError struct {
	Error string `json:"error"`
}

func (a *API) check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == http.StatusUnauthorized:
		if a.onUnauthorized != nil {
			a.onUnauthorized()
		}
		return ErrUnauthorized
	default:
		msg := resp.Status()
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			msg = e.Error
		}
		return fmt.Errorf("api: %s %s: %s", resp.Request.Method, resp.Request.URL, msg)
	}
}

type PlaceOrderRequest struct {
	SellerID         types.ID        `json:"seller_id"`
	PaymentMethod    string          `json:"payment_method"`
	DeliveryMethod   string          `json:"delivery_method"`
	Items            []PlaceItem     `json:"items"`
	PickupLocation   *geo.Coordinate `json:"pickup_location,omitempty"`
	DeliveryLocation *geo.Coordinate `json:"delivery_location,omitempty"`
	PickupAddress    string          `json:"pickup_address,omitempty"`
}

type PlaceItem struct {
	ProductID types.ID `json:"product_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	Currency  string   `json:"currency,omitempty"`
}

func (a *API) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	var o order.Order
	resp, err := a.http.R().SetContext(ctx).
		SetBody(req).SetResult(&o).SetError(&apiError{}).
		Post("/api/orders")
	if err := a.check(resp, err); err != nil {
		return nil, err
	}
	return &o, nil
}

func (a *API) GetOrder(ctx context.Context, id types.ID) (*order.Order, error) {
	var o order.Order
	resp, err := a.http.R().SetContext(ctx).
		SetResult(&o).SetError(&apiError{}).
		Get("/api/orders/" + string(id))
	if err := a.check(resp, err); err != nil {
		return nil, err
	}
	return &o, nil
}

type listOrdersResp struct {
	Orders []*order.Order `json:"orders"`
}

func (a *API) ListOrders(ctx context.Context, as string) ([]*order.Order, error) {
	var body listOrdersResp
	resp, err := a.http.R().SetContext(ctx).
		SetQueryParam("as", as).
		SetResult(&body).SetError(&apiError{}).
		Get("/api/orders")
	if err := a.check(resp, err); err != nil {
		return nil, err
	}
	return body.Orders, nil
}

func (a *API) UpdateStatus(ctx context.Context, id types.ID, target order.Status, note string) (*order.Order, error) {
	var o order.Order
	resp, err := a.http.R().SetContext(ctx).
		SetBody(map[string]string{"status": string(target), "note": note}).
		SetResult(&o).SetError(&apiError{}).
		Put("/api/orders/" + string(id) + "/status")
	if err := a.check(resp, err); err != nil {
		return nil, err
	}
	return &o, nil
}

func (a *API) VerifyPickup(ctx context.Context, id types.ID, code string) error {
	resp, err := a.http.R().SetContext(ctx).
		SetBody(map[string]string{"order_id": string(id), "code": code}).
		SetError(&apiError{}).
		Post("/api/orders/verify-pickup")
	return a.check(resp, err)
}

func (a *API) CompletePickup(ctx context.Context, id types.ID, code string) error {
	resp, err := a.http.R().SetContext(ctx).
		SetBody(map[string]string{"order_id": string(id), "code": code}).
		SetError(&apiError{}).
		Post("/api/orders/complete-pickup")
	return a.check(resp, err)
}

func (a *API) ConfirmPayment(ctx context.Context, id types.ID) (*order.Order, error) {
	var o order.Order
	resp, err := a.http.R().SetContext(ctx).
		SetBody(map[string]string{"order_id": string(id)}).
		SetResult(&o).SetError(&apiError{}).
		Post("/api/payments/confirm")
	if err := a.check(resp, err); err != nil {
		return nil, err
	}
	return &o, nil
}

type followResp struct {
	Following bool `json:"following"`
}

func (a *API) ToggleFollow(ctx context.Context, userID types.ID) (bool, error) {
	var body followResp
	resp, err := a.http.R().SetContext(ctx).
		SetResult(&body).SetError(&apiError{}).
		Post("/api/users/" + string(userID) + "/follow")
	if err := a.check(resp, err); err != nil {
		return false, err
	}
	return body.Following, nil
}

func (a *API) AcceptOrder(ctx context.Context, id types.ID) (*order.Order, error) {
	var o order.Order
	resp, err := a.http.R().SetContext(ctx).
		SetResult(&o).SetError(&apiError{}).
		Post("/api/delivery/accept/" + string(id))
	if err := a.check(resp, err); err != nil {
		return nil, err
	}
	return &o, nil
}

// NearbyOrder mirrors the server's nearby-orders response entry.
type NearbyOrder struct {
	Order      *order.Order `json:"order"`
	DistanceKm float64      `json:"distance_km"`
}

type nearbyOrdersResp struct {
	Orders []NearbyOrder `json:"orders"`
}

func (a *API) NearbyOrders(ctx context.Context, pos geo.Coordinate) ([]NearbyOrder, error) {
	var body nearbyOrdersResp
	req := a.http.R().SetContext(ctx).
		SetResult(&body).SetError(&apiError{})
	if pos.Valid() {
		req.SetQueryParam("lng", fmt.Sprintf("%f", pos.Lng))
		req.SetQueryParam("lat", fmt.Sprintf("%f", pos.Lat))
	}
	resp, err := req.Get("/api/delivery/nearby-orders")
	if err := a.check(resp, err); err != nil {
		return nil, err
	}
	return body.Orders, nil
}

func (a *API) RejectOrder(ctx context.Context, id types.ID) error {
	resp, err := a.http.R().SetContext(ctx).
		SetError(&apiError{}).
		Post("/api/delivery/reject/" + string(id))
	return a.check(resp, err)
}

func (a *API) UpdateLocation(ctx context.Context, pos geo.Coordinate) error {
	resp, err := a.http.R().SetContext(ctx).
		SetBody(map[string]float64{"lng": pos.Lng, "lat": pos.Lat}).
		SetError(&apiError{}).
		Put("/api/delivery/location")
	return a.check(resp, err)
}
