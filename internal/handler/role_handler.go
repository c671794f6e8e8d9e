package handler

import (
	"errors"

	"parley-chat/internal/domain/permission"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"
	parley_errors "parley-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	service *services.PermissionService
}

func NewRoleHandler(service *services.PermissionService) *RoleHandler {
	return &RoleHandler{service: service}
}

// Permissions lists the closed permission catalog.
func (h *RoleHandler) Permissions(c *gin.Context) {
	respond(c, gin.H{"permissions": h.service.ListPermissions()})
}

// Check answers whether the caller's role grants :permission.
func (h *RoleHandler) Check(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	p, err := permission.Parse(c.Param("permission"))
	if err != nil {
		writeError(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	err = h.service.CheckPermission(c.Request.Context(), userID, ref, p)
	if err != nil && !errors.Is(err, parley_errors.ErrForbidden) {
		writeError(c, err)
		return
	}
	respond(c, httpdto.PermissionCheckResponse{Permission: p.String(), Allowed: err == nil})
}

func (h *RoleHandler) List(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	roles, err := h.service.ListRoles(c.Request.Context(), userID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, gin.H{"roles": roles})
}

func (h *RoleHandler) Create(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	var req httpdto.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.service.CreateRole(c.Request.Context(), userID, ref, roleInput(req))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, view)
}

func (h *RoleHandler) Edit(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	var req httpdto.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.service.EditRole(c.Request.Context(), userID, ref, c.Param("name"), roleInput(req))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, view)
}

func (h *RoleHandler) Delete(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(c.Request.Context(), userID, ref, c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *RoleHandler) Assign(c *gin.Context) {
	ref, ok := conversationRef(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req httpdto.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.AssignRole(c.Request.Context(), userID, ref, targetID, req.RoleName); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func (h *RoleHandler) Remove(c *gin.Context) {
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
	if err := h.service.RemoveRole(c.Request.Context(), userID, ref, targetID); err != nil {
		writeError(c, err)
		return
	}
	done(c)
}

func roleInput(req httpdto.RoleRequest) services.RoleInput {
	return services.RoleInput{Name: req.Name, Color: req.Color, Permissions: req.Permissions}
}
