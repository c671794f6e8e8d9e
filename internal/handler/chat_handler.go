package handler

import (
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves direct chats between two users.
type ChatHandler struct {
	service *services.DirectChatService
}

func NewChatHandler(service *services.DirectChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) Create(c *gin.Context) {
	var req httpdto.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chat, err := h.service.Create(c.Request.Context(), userID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, chat)
}

func (h *ChatHandler) Get(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chat, err := h.service.Get(c.Request.Context(), userID, chatID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, chat)
}

func (h *ChatHandler) Delete(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), userID, chatID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}
