package repository

import (
	"context"
	"strings"

	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
)

type minioRepository struct {
	client        *miniogo.Client
	publicBaseURL string
}

// NewMinioRepository falls back to the endpoint URL for public links.
func NewMinioRepository(client *miniogo.Client, publicBaseURL string) renderjobs.StorageRepository {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" && client.EndpointURL() != nil {
		base = strings.TrimRight(client.EndpointURL().String(), "/")
	}
	return &minioRepository{client: client, publicBaseURL: base}
}

func (m *minioRepository) PutObject(ctx context.Context, input models.UploadInput) error {
	_, err := m.client.PutObject(ctx, input.BucketName, input.Key, input.File, input.Size, miniogo.PutObjectOptions{
		ContentType: input.MimeType,
	})
	if err != nil {
		return errors.Wrap(err, "minioRepository.PutObject")
	}
	return nil
}

func (m *minioRepository) PublicURL(bucket, key string) string {
	return joinPublicURL(m.publicBaseURL, bucket, key)
}
