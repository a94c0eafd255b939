package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/common"
	"github.com/dmitrijs2005/tasktracker/internal/server/validation"
	"github.com/google/uuid"
)

// AvatarStore signs direct-to-bucket uploads. *avatars.Presigner implements it.
type AvatarStore interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PublicURL(key string) string
	Expiry() time.Duration
}

// AvatarUploadInput names the MIME type the client will upload.
type AvatarUploadInput struct {
	ContentType string `json:"contentType" validate:"omitempty,oneof=image/png image/jpeg image/gif image/webp"`
}

// AvatarUpload tells the client where to PUT the image and which URL to save
// on its profile afterwards. ExpiresIn is in seconds.
type AvatarUpload struct {
	UploadURL string `json:"uploadUrl"`
	AvatarURL string `json:"avatarUrl"`
	ExpiresIn int64  `json:"expiresIn"`
}

// AvatarService issues presigned upload URLs for profile pictures. The
// object is written by the client directly; the service never sees the bytes.
type AvatarService struct {
	store     AvatarStore
	validator *validation.Validator
}

// NewAvatarService constructs an AvatarService over store, which signs the
// upload URLs and knows their expiry.
func NewAvatarService(store AvatarStore, v *validation.Validator) *AvatarService {
	return &AvatarService{store: store, validator: v}
}

// AvatarKey is the object key of a fresh avatar for userID.
func AvatarKey(userID string) string {
	return fmt.Sprintf("avatars/%s/%s", userID, uuid.New())
}

// PresignUpload returns a one-off upload URL under the user's avatar prefix.
func (s *AvatarService) PresignUpload(ctx context.Context, userID string, in AvatarUploadInput) (*AvatarUpload, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	key := AvatarKey(userID)

	url, err := s.store.PresignPut(ctx, key, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: presign avatar upload: %w", common.ErrorInternal, err)
	}

	return &AvatarUpload{
		UploadURL: url,
		AvatarURL: s.store.PublicURL(key),
		ExpiresIn: int64(s.store.Expiry().Seconds()),
	}, nil
}
