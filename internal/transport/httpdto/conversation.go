package httpdto

import "parley-chat/internal/domain/conversation"

// ConversationRequest is used for POST /groups, POST /channels and PATCH /{kind}s/:id.
// An edit replaces every field.
type ConversationRequest struct {
	Name        string `json:"name" binding:"required,max=64"`
	Description string `json:"description" binding:"max=256"`
	Avatar      string `json:"avatar" binding:"max=512"`
	IsPrivate   bool   `json:"isPrivate"`
}

func (r ConversationRequest) Details() conversation.Details {
	return conversation.Details{
		Name:        r.Name,
		Description: r.Description,
		Avatar:      r.Avatar,
		IsPrivate:   r.IsPrivate,
	}
}

type AddMemberRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

type NotificationSettingRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

type PermissionCheckResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}
