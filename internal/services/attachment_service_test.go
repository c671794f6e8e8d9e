package services

import (
	"context"
	"testing"

	parley_errors "parley-chat/pkg/errors"
)

func TestPresignWithoutStorage(t *testing.T) {
	svc := NewAttachmentService(nil)
	_, err := svc.Presign(context.Background(), PresignInput{UploaderID: 1, ContentType: "image/png", SizeBytes: 10})
	assertIs(t, err, parley_errors.ErrServiceUnavailable)
	if got := svc.PublicURL("attachments/1/x"); got != "" {
		t.Errorf("public url without storage = %q", got)
	}
}
