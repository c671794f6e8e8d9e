package handler

import (
	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	service  *services.ConversationService
	messages *services.MessageService
}

func NewConversationHandler(service *services.ConversationService, messages *services.MessageService) *ConversationHandler {
	return &ConversationHandler{service: service, messages: messages}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req httpdto.ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	kind, _ := c.Get(kindKey)
	k, _ := kind.(conversation.Kind)

	conv, err := h.service.Create(c.Request.Context(), userID, k, req.Details())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, conv)
}

func (h *ConversationHandler) Search(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	kind, _ := c.Get(kindKey)
	k, _ := kind.(conversation.Kind)

	items, err := h.service.Search(c.Request.Context(), k, c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, gin.H{"items": items})
}

func (h *ConversationHandler) View(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, err := h.service.View(c.Request.Context(), userID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, page)
}

func (h *ConversationHandler) Preview(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.messages.PreviewMessages(c.Request.Context(), userID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, gin.H{"messages": items})
}

func (h *ConversationHandler) Edit(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	var req httpdto.ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, err := h.service.Edit(c.Request.Context(), userID, ref, req.Details())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, conv)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), userID, ref); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *ConversationHandler) CreateDiscussion(c *gin.Context) {
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	group, err := h.service.CreateDiscussion(c.Request.Context(), userID, channelID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, group)
}

func (h *ConversationHandler) DeleteDiscussion(c *gin.Context) {
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteDiscussion(c.Request.Context(), userID, channelID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}
