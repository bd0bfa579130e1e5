// README: Courier handlers for availability, location, and order claims.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bento/internal/geo"
	"bento/internal/http/middleware"
	"bento/internal/modules/courier"
	"bento/internal/types"
)

type CourierHandler struct {
	courier *courier.Service
}

func NewCourierHandler(svc *courier.Service) *CourierHandler {
	return &CourierHandler{courier: svc}
}

type availabilityReq struct {
	Available bool      `json:"available"`
	Location  *pointReq `json:"location"`
}

func (h *CourierHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	var pos geo.Coordinate
	if req.Location != nil {
		pos = geo.Coordinate{Lng: req.Location.Lng, Lat: req.Location.Lat, Provenance: geo.ProvenanceDevice}
	}
	if err := h.courier.SetAvailability(c.Request.Context(), uid, req.Available, pos); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"available": req.Available})
}

func (h *CourierHandler) UpdateLocation(c *gin.Context) {
	var req pointReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	pos := geo.Coordinate{Lng: req.Lng, Lat: req.Lat, Provenance: geo.ProvenanceDevice}
	if err := h.courier.UpdateLocation(c.Request.Context(), uid, pos); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (h *CourierHandler) NearbyOrders(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	var pos geo.Coordinate
	if lng, lat := c.Query("lng"), c.Query("lat"); lng != "" && lat != "" {
		if err := bindFloat(lng, &pos.Lng); err != nil {
			writeError(c, http.StatusBadRequest, "bad lng")
			return
		}
		if err := bindFloat(lat, &pos.Lat); err != nil {
			writeError(c, http.StatusBadRequest, "bad lat")
			return
		}
		pos.Provenance = geo.ProvenanceDevice
	}
	orders, err := h.courier.NearbyOrders(c.Request.Context(), uid, pos)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *CourierHandler) Accept(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	orderID := types.ID(c.Param("orderId"))
	o, err := h.courier.Accept(c.Request.Context(), orderID, uid)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *CourierHandler) Reject(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	orderID := types.ID(c.Param("orderId"))
	if err := h.courier.Reject(c.Request.Context(), orderID, uid); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}
