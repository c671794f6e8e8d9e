package handler

import (
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type MemberHandler struct {
	service *services.MembershipService
}

func NewMemberHandler(service *services.MembershipService) *MemberHandler {
	return &MemberHandler{service: service}
}

func (h *MemberHandler) Add(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	var req httpdto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.AddMember(c.Request.Context(), userID, ref, req.UserID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *MemberHandler) Join(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Join(c.Request.Context(), ref, userID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *MemberHandler) Remove(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.RemoveMember(c.Request.Context(), userID, ref, targetID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *MemberHandler) List(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	members, err := h.service.ListMembers(c.Request.Context(), userID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, gin.H{"members": members})
}

func (h *MemberHandler) SetNotifications(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	var req httpdto.NotificationSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.ChangeNotificationSetting(c.Request.Context(), userID, ref, *req.Muted); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *MemberHandler) GetNotifications(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	counter, err := h.service.GetNotification(c.Request.Context(), userID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, counter)
}
