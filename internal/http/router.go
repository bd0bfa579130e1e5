// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bento/internal/http/handlers"
	"bento/internal/http/middleware"
	"bento/internal/infra"
	"bento/internal/modules/courier"
	"bento/internal/modules/follow"
	"bento/internal/modules/order"
	"bento/internal/modules/pickup"
	"bento/internal/types"
	"bento/internal/ws"
)

type RouterDeps struct {
	Order    *order.Service
	Pickup   *pickup.Manager
	Courier  *courier.Service
	Follow   *follow.Service
	Hub      *ws.Hub
	Verifier infra.TokenVerifier
	Log      *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	wsHandler := ws.NewHandler(deps.Hub, queryVerifier{deps.Verifier}, deps.Log)
	r.GET("/ws", wsHandler.Serve)

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order, deps.Pickup)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.PUT("/orders/:id/status", orderHandler.UpdateStatus)
	api.POST("/orders/verify-pickup", orderHandler.VerifyPickup)
	api.POST("/orders/complete-pickup", orderHandler.CompletePickup)
	api.POST("/payments/confirm", orderHandler.ConfirmPayment)

	courierHandler := handlers.NewCourierHandler(deps.Courier)
	api.POST("/delivery/availability", courierHandler.SetAvailability)
	api.PUT("/delivery/location", courierHandler.UpdateLocation)
	api.GET("/delivery/nearby-orders", courierHandler.NearbyOrders)
	api.POST("/delivery/accept/:orderId", courierHandler.Accept)
	api.POST("/delivery/reject/:orderId", courierHandler.Reject)

	followHandler := handlers.NewFollowHandler(deps.Follow)
	api.POST("/users/:id/follow", followHandler.Toggle)
	api.GET("/users/:id/follow", followHandler.Status)

	return r
}

// queryVerifier adapts infra.TokenVerifier for websocket upgrades, where
// the token rides a query parameter instead of a header.
type queryVerifier struct {
	verifier infra.TokenVerifier
}

func (q queryVerifier) Verify(c *gin.Context, token string) (types.ID, error) {
	t, err := q.verifier.VerifyIDToken(c.Request.Context(), token)
	if err != nil {
		return "", err
	}
	return types.ID(t.UID), nil
}
