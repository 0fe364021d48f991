package repository

import (
	"context"
	"fmt"
	"io"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	awsdb "github.com/amankumarsingh77/render-worker/pkg/db/aws"
	miniodb "github.com/amankumarsingh77/render-worker/pkg/db/minio"
	"github.com/amankumarsingh77/render-worker/pkg/db/postgres"
	redisdb "github.com/amankumarsingh77/render-worker/pkg/db/redis"
)

// NewQueueRepository connects to the configured queue backend. The closer
// releases the underlying connection.
func NewQueueRepository(cfg *config.Config) (renderjobs.Repository, io.Closer, error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverRedis:
		client, err := redisdb.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis: %w", err)
		}
		return NewRenderJobsRedisRepo(client, cfg), client, nil
	case config.QueueDriverPostgres, "":
		db, err := postgres.NewPsqlDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewRenderJobsRepo(db, cfg), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

// NewStorageRepository builds the configured artifact store client.
func NewStorageRepository(ctx context.Context, cfg *config.Config) (renderjobs.StorageRepository, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMinio:
		client, err := miniodb.NewMinioClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewMinioRepository(client, cfg.Storage.PublicBaseURL), nil
	case config.StorageDriverS3, "":
		client, err := awsdb.NewAWSClient(ctx, cfg.Storage.Endpoint, cfg.Storage.Region, cfg.Storage.AccessKey, cfg.Storage.SecretKey)
		if err != nil {
			return nil, err
		}
		return NewAwsRepository(client, cfg.Storage.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
