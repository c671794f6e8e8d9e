package httpdto

// PresignRequest is used for POST /attachments/presign
type PresignRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type" binding:"required"`
	SizeBytes   int64  `json:"size_bytes" binding:"required,gt=0"`
}
