package repository

import (
	"context"
	"strings"

	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

type awsRepository struct {
	client        *s3.Client
	publicBaseURL string
}

func NewAwsRepository(awsClient *s3.Client, publicBaseURL string) renderjobs.StorageRepository {
	return &awsRepository{
		client:        awsClient,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (a *awsRepository) PutObject(ctx context.Context, input models.UploadInput) error {
	_, err := a.client.PutObject(
		ctx,
		&s3.PutObjectInput{
			Bucket:        &input.BucketName,
			Key:           &input.Key,
			ContentType:   &input.MimeType,
			ContentLength: &input.Size,
			Body:          input.File,
		},
	)
	if err != nil {
		return errors.Wrap(err, "awsRepository.PutObject")
	}
	return nil
}

// PublicURL is empty unless a public base URL is configured; S3 offers no
// anonymous locator of its own.
func (a *awsRepository) PublicURL(bucket, key string) string {
	return joinPublicURL(a.publicBaseURL, bucket, key)
}

func joinPublicURL(base, bucket, key string) string {
	if base == "" {
		return ""
	}
	return base + "/" + bucket + "/" + key
}
