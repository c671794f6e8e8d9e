package handler

import (
	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	kind, err := conversation.ParseKind(req.Type)
	if err != nil {
		writeError(c, err)
		return
	}

	attachments := make([]services.AttachmentInput, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, attachmentInput(a))
	}
	msg, err := h.service.CreateMessage(c.Request.Context(), userID, conversation.Ref{Kind: kind, ID: req.SmthID}, req.Content, attachments)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, msg)
}

func (h *MessageHandler) List(c *gin.Context) {
	var q httpdto.ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	kind, err := conversation.ParseKind(q.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	items, err := h.service.FetchMessages(c.Request.Context(), userID, conversation.Ref{Kind: kind, ID: q.SmthID}, q.Cursor, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, gin.H{"messages": items})
}

func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.service.EditMessage(c.Request.Context(), userID, messageID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, msg)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteMessage(c.Request.Context(), userID, messageID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), userID, messageID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *MessageHandler) Attach(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.AttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.service.AttachMedia(c.Request.Context(), userID, messageID, attachmentInput(req))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, msg)
}

func attachmentInput(req httpdto.AttachmentRequest) services.AttachmentInput {
	return services.AttachmentInput{ObjectKey: req.ObjectKey, ContentType: req.ContentType, SizeBytes: req.SizeBytes}
}
