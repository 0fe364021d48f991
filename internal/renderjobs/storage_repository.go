package renderjobs

import (
	"context"

	"github.com/amankumarsingh77/render-worker/internal/models"
)

// StorageRepository stores final artifacts. PutObject overwrites an existing key.
type StorageRepository interface {
	PutObject(ctx context.Context, input models.UploadInput) error
	PublicURL(bucket, key string) string
}
