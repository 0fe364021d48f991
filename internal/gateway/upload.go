package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	"github.com/google/uuid"
)

const artifactContentType = "video/mp4"

var ErrEmptyPublicURL = errors.New("upload ok but public URL empty (bucket must be public)")

type Uploader struct {
	storage renderjobs.StorageRepository
	bucket  string
}

func NewUploader(storage renderjobs.StorageRepository, bucket string) *Uploader {
	return &Uploader{storage: storage, bucket: bucket}
}

// ArtifactKey builds renders/<escaped request id>/<random hex>.mp4.
func ArtifactKey(requestID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("renders/%s/%s.mp4", url.PathEscape(requestID), suffix)
}

// Upload stores the artifact at localPath and returns where it can be fetched.
func (u *Uploader) Upload(ctx context.Context, localPath, requestID string) (*models.RenderResult, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	key := ArtifactKey(requestID)
	if err := u.storage.PutObject(ctx, models.UploadInput{
		File:       bytes.NewReader(data),
		MimeType:   artifactContentType,
		Size:       int64(len(data)),
		Key:        key,
		BucketName: u.bucket,
	}); err != nil {
		return nil, fmt.Errorf("upload error: %w", err)
	}
	publicURL := u.storage.PublicURL(u.bucket, key)
	if publicURL == "" {
		return nil, ErrEmptyPublicURL
	}
	return &models.RenderResult{
		PublicURL:  publicURL,
		Bucket:     u.bucket,
		ObjectPath: key,
		RequestID:  requestID,
	}, nil
}
