package handler

import (
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	service *services.PresenceService
}

func NewPresenceHandler(service *services.PresenceService) *PresenceHandler {
	return &PresenceHandler{service: service}
}

func (h *PresenceHandler) Update(c *gin.Context) {
	var req httpdto.PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	online, err := services.ParsePresenceAction(req.Action)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.service.Signal(c.Request.Context(), userID, online); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}
