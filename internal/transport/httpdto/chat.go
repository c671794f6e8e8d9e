package httpdto

type CreateChatRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

type PresenceRequest struct {
	Action string `json:"action" binding:"required"`
}
