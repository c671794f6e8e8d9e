package message

import "time"

// Attachment represents the message_attachments table. The object itself lives in S3.
type Attachment struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	MessageID   int64     `gorm:"not null;index" json:"messageId"`
	ObjectKey   string    `gorm:"size:512;not null" json:"objectKey"`
	URL         string    `gorm:"size:1024" json:"url"`
	ContentType string    `gorm:"size:128" json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Attachment) TableName() string {
	return "message_attachments"
}
