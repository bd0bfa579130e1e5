// README: Order handlers for placement, listing, status changes, pickup
// code verification and payment confirmation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bento/internal/geo"
	"bento/internal/http/middleware"
	"bento/internal/modules/order"
	"bento/internal/modules/pickup"
	"bento/internal/types"
)

type OrderHandler struct {
	order  *order.Service
	pickup *pickup.Manager
}

func NewOrderHandler(orderSvc *order.Service, pickupMgr *pickup.Manager) *OrderHandler {
	return &OrderHandler{order: orderSvc, pickup: pickupMgr}
}

type pointReq struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (p pointReq) coordinate() geo.Coordinate {
	return geo.Coordinate{Lng: p.Lng, Lat: p.Lat, Provenance: geo.ProvenanceOrderField}
}

type itemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
}

type createOrderReq struct {
	SellerID         string    `json:"seller_id"`
	PaymentMethod    string    `json:"payment_method"`
	DeliveryMethod   string    `json:"delivery_method"`
	Items            []itemReq `json:"items"`
	PickupLocation   *pointReq `json:"pickup_location"`
	DeliveryLocation *pointReq `json:"delivery_location"`
	PickupAddress    string    `json:"pickup_address"`
	DiscountAmount   int64     `json:"discount_amount"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.CreateCommand{
		BuyerID:        types.ID(middleware.CallerUID(c)),
		SellerID:       types.ID(req.SellerID),
		PaymentMethod:  order.PaymentMethod(req.PaymentMethod),
		DeliveryMethod: order.DeliveryMethod(req.DeliveryMethod),
		PickupAddress:  req.PickupAddress,
	}
	for _, it := range req.Items {
		currency := it.Currency
		if currency == "" {
			currency = "USD"
		}
		cmd.Items = append(cmd.Items, order.Item{
			ProductID: types.ID(it.ProductID),
			Quantity:  it.Quantity,
			UnitPrice: types.Money{Amount: it.UnitPrice, Currency: currency},
		})
	}
	if req.PickupLocation != nil {
		cmd.PickupLocation = req.PickupLocation.coordinate()
	}
	if req.DeliveryLocation != nil {
		cmd.DeliveryLocation = req.DeliveryLocation.coordinate()
	}
	if req.DiscountAmount > 0 {
		cmd.Discount = types.Money{Amount: req.DiscountAmount, Currency: "USD"}
	}

	o, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) List(c *gin.Context) {
	f := order.Filter{Status: order.Status(c.Query("status"))}
	uid := types.ID(middleware.CallerUID(c))
	switch c.Query("as") {
	case "seller":
		f.SellerID = uid
	case "courier":
		f.CourierID = uid
	default:
		f.BuyerID = uid
	}
	orders, err := h.order.List(c.Request.Context(), f)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

type updateStatusReq struct {
	Status        string  `json:"status"`
	PaymentStatus *string `json:"payment_status"`
	Note          string  `json:"note"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.TransitionCommand{
		OrderID: types.ID(id),
		Target:  order.Status(req.Status),
		Note:    req.Note,
		Source:  middleware.CallerRole(c),
	}
	if req.PaymentStatus != nil {
		ps := order.PaymentStatus(*req.PaymentStatus)
		cmd.PaymentStatus = &ps
	}
	o, err := h.order.Transition(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type pickupCodeReq struct {
	OrderID string `json:"order_id"`
	Code    string `json:"code"`
}

// VerifyPickup checks the code without consuming it.
func (h *OrderHandler) VerifyPickup(c *gin.Context) {
	var req pickupCodeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" || req.Code == "" {
		writeError(c, http.StatusBadRequest, "order_id and code required")
		return
	}
	if err := h.pickup.Verify(c.Request.Context(), types.ID(req.OrderID), req.Code); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"valid": true})
}

// CompletePickup redeems the code and hands the order over.
func (h *OrderHandler) CompletePickup(c *gin.Context) {
	var req pickupCodeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" || req.Code == "" {
		writeError(c, http.StatusBadRequest, "order_id and code required")
		return
	}
	if err := h.pickup.Redeem(c.Request.Context(), types.ID(req.OrderID), req.Code); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": order.StatusDelivered})
}

type confirmPaymentReq struct {
	OrderID string `json:"order_id"`
}

// ConfirmPayment records an external payment-succeeded signal.
func (h *OrderHandler) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		writeError(c, http.StatusBadRequest, "order_id required")
		return
	}
	o, err := h.order.MarkPaid(c.Request.Context(), types.ID(req.OrderID), "payment")
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
