package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley-chat/internal/storage"
	parley_errors "parley-chat/pkg/errors"
)

const maxAttachmentBytes = 50 << 20

// AttachmentService hands out presigned upload URLs. The object key it returns is what
// CreateMessage and AttachMedia accept afterwards.
type AttachmentService struct {
	storage *storage.Client
}

func NewAttachmentService(storage *storage.Client) *AttachmentService {
	return &AttachmentService{storage: storage}
}

type PresignInput struct {
	UploaderID  int64
	FileName    string
	ContentType string
	SizeBytes   int64
}

type PresignResult struct {
	UploadURL string            `json:"upload_url"`
	ObjectKey string            `json:"object_key"`
	PublicURL string            `json:"public_url,omitempty"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func (s *AttachmentService) Presign(ctx context.Context, input PresignInput) (PresignResult, error) {
	if s.storage == nil {
		return PresignResult{}, fmt.Errorf("%w: attachment storage is not configured", parley_errors.ErrServiceUnavailable)
	}
	input.ContentType = strings.TrimSpace(input.ContentType)
	if input.UploaderID <= 0 || input.ContentType == "" {
		return PresignResult{}, fmt.Errorf("%w: content type is required", parley_errors.ErrInvalidInput)
	}
	if input.SizeBytes <= 0 || input.SizeBytes > maxAttachmentBytes {
		return PresignResult{}, fmt.Errorf("%w: size must be between 1 and %d bytes", parley_errors.ErrInvalidInput, maxAttachmentBytes)
	}

	key := storage.ObjectKey(input.UploaderID, input.FileName)
	url, headers, err := s.storage.PresignPut(ctx, key, input.ContentType, input.SizeBytes)
	if err != nil {
		return PresignResult{}, err
	}

	return PresignResult{
		UploadURL: url,
		ObjectKey: key,
		PublicURL: s.storage.PublicURL(key),
		Headers:   headers,
		ExpiresAt: time.Now().Add(s.storage.ExpiresIn()),
	}, nil
}

// PublicURL resolves the download URL of an uploaded object, empty without a public base.
func (s *AttachmentService) PublicURL(key string) string {
	if s == nil || s.storage == nil {
		return ""
	}
	return s.storage.PublicURL(key)
}
