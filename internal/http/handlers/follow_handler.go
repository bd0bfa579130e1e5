// README: Follow handlers for toggling seller follows.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bento/internal/http/middleware"
	"bento/internal/modules/follow"
	"bento/internal/types"
)

type FollowHandler struct {
	follow *follow.Service
}

func NewFollowHandler(svc *follow.Service) *FollowHandler {
	return &FollowHandler{follow: svc}
}

// Toggle flips the follow edge from the caller to the target user and
// returns the resulting state.
func (h *FollowHandler) Toggle(c *gin.Context) {
	followee := types.ID(c.Param("id"))
	follower := types.ID(middleware.CallerUID(c))
	following, err := h.follow.Toggle(c.Request.Context(), follower, followee)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"following": following})
}

func (h *FollowHandler) Status(c *gin.Context) {
	followee := types.ID(c.Param("id"))
	follower := types.ID(middleware.CallerUID(c))
	following, err := h.follow.IsFollowing(c.Request.Context(), follower, followee)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"following": following})
}
