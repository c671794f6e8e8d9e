package httpdto

type AttachmentRequest struct {
	ObjectKey   string `json:"object_key" binding:"required"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes" binding:"gte=0"`
}

type SendMessageRequest struct {
	Type        string              `json:"type" binding:"required"`
	SmthID      int64               `json:"smthId" binding:"required,gt=0"`
	Content     string              `json:"content"`
	Attachments []AttachmentRequest `json:"attachments" binding:"dive"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

// ListMessagesQuery is bound from GET /messages
type ListMessagesQuery struct {
	Type   string `form:"type" binding:"required"`
	SmthID int64  `form:"id" binding:"required,gt=0"`
	Cursor int64  `form:"cursor" binding:"gte=0"`
	Limit  int    `form:"limit" binding:"gte=0"`
}
