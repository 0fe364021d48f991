package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// claimScript pops queued ids until one still has a job hash, then marks it
// as owned by the caller. Running inside Redis makes the claim atomic.
var claimScript = redis.NewScript(`
while true do
	local id = redis.call('RPOP', KEYS[1])
	if not id then
		return false
	end
	local key = ARGV[1] .. id
	if redis.call('EXISTS', key) == 1 then
		redis.call('HSET', key, 'status', ARGV[2], 'worker_id', ARGV[3], 'started_at', ARGV[4])
		return redis.call('HGETALL', key)
	end
end
`)

type renderJobsRedisRepo struct {
	redisClient      *redis.Client
	queueKey         string
	jobKeyPrefix     string
	queuedStatus     string
	processingStatus string
}

func NewRenderJobsRedisRepo(redisClient *redis.Client, cfg *config.Config) renderjobs.Repository {
	return &renderJobsRedisRepo{
		redisClient:      redisClient,
		queueKey:         cfg.Redis.KeyPrefix + ":queue",
		jobKeyPrefix:     cfg.Redis.KeyPrefix + ":job:",
		queuedStatus:     cfg.Statuses.Queued,
		processingStatus: cfg.Statuses.Processing,
	}
}

func (r *renderJobsRedisRepo) jobKey(jobID string) string {
	return r.jobKeyPrefix + jobID
}

func (r *renderJobsRedisRepo) Claim(ctx context.Context, workerID string) (*models.RenderJob, error) {
	res, err := claimScript.Run(
		ctx,
		r.redisClient,
		[]string{r.queueKey},
		r.jobKeyPrefix,
		r.processingStatus,
		workerID,
		time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "renderJobsRedisRepo.Claim.Run")
	}
	pairs, ok := res.([]interface{})
	if !ok {
		return nil, errors.Errorf("renderJobsRedisRepo.Claim: unexpected reply %T", res)
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields[fmt.Sprint(pairs[i])] = fmt.Sprint(pairs[i+1])
	}
	return jobFromHash(fields)
}

func (r *renderJobsRedisRepo) GetByID(ctx context.Context, jobID string) (*models.RenderJob, error) {
	fields, err := r.redisClient.HGetAll(ctx, r.jobKey(jobID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "renderJobsRedisRepo.GetByID.HGetAll")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return jobFromHash(fields)
}

func (r *renderJobsRedisRepo) UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) error {
	key := r.jobKey(jobID)
	exists, err := r.redisClient.Exists(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "renderJobsRedisRepo.UpdateJob.Exists")
	}
	if exists == 0 {
		return errors.Errorf("renderJobsRedisRepo.UpdateJob: job %s not found", jobID)
	}

	set := make(map[string]interface{}, len(patch))
	var clear []string
	for column, value := range patch {
		if value == nil {
			clear = append(clear, column)
			continue
		}
		str, err := hashValue(value)
		if err != nil {
			return errors.Wrapf(err, "renderJobsRedisRepo.UpdateJob.%s", column)
		}
		set[column] = str
	}

	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(set) > 0 {
			pipe.HSet(ctx, key, set)
		}
		if len(clear) > 0 {
			pipe.HDel(ctx, key, clear...)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "renderJobsRedisRepo.UpdateJob.TxPipelined")
	}
	return nil
}

func (r *renderJobsRedisRepo) Enqueue(ctx context.Context, payload json.RawMessage) (*models.RenderJob, error) {
	now := time.Now().UTC()
	job := &models.RenderJob{
		ID:        uuid.NewString(),
		Payload:   payload,
		Status:    models.JobStatus(r.queuedStatus),
		CreatedAt: &now,
	}
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.jobKey(job.ID), map[string]interface{}{
			models.ColumnID:        job.ID,
			models.ColumnPayload:   string(payload),
			models.ColumnStatus:    r.queuedStatus,
			models.ColumnProgress:  "0",
			models.ColumnCreatedAt: now.Format(time.RFC3339Nano),
		})
		pipe.LPush(ctx, r.queueKey, job.ID)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "renderJobsRedisRepo.Enqueue.TxPipelined")
	}
	return job, nil
}

func jobFromHash(fields map[string]string) (*models.RenderJob, error) {
	id := fields[models.ColumnID]
	if id == "" {
		return nil, nil
	}
	job := &models.RenderJob{
		ID:           id,
		Status:       models.JobStatus(fields[models.ColumnStatus]),
		WorkerID:     fields[models.ColumnWorkerID],
		ErrorMessage: fields[models.ColumnErrorMessage],
	}
	if p := fields[models.ColumnPayload]; p != "" {
		job.Payload = json.RawMessage(p)
	}
	if res := fields[models.ColumnResult]; res != "" {
		job.Result = json.RawMessage(res)
	}
	if p := fields[models.ColumnProgress]; p != "" {
		progress, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.Wrap(err, "jobFromHash.progress")
		}
		job.Progress = int(progress)
	}
	var err error
	for column, dst := range map[string]**time.Time{
		models.ColumnCreatedAt:   &job.CreatedAt,
		models.ColumnStartedAt:   &job.StartedAt,
		models.ColumnFinishedAt:  &job.FinishedAt,
		models.ColumnCompletedAt: &job.CompletedAt,
	} {
		if *dst, err = parseHashTime(fields[column]); err != nil {
			return nil, errors.Wrapf(err, "jobFromHash.%s", column)
		}
	}
	return job, nil
}

func parseHashTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func hashValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case models.JobStatus:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case json.RawMessage:
		return string(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
