package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*renderJobsRedisRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRenderJobsRedisRepo(client, testConfig()).(*renderJobsRedisRepo), mr
}

func TestRedisEnqueueAndClaim(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, json.RawMessage(`{"requestId":"a"}`))
	require.NoError(t, err)
	second, err := repo.Enqueue(ctx, json.RawMessage(`{"requestId":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, "queued", mr.HGet("render_jobs:job:"+first.ID, "status"))

	claimed, err := repo.Claim(ctx, "worker_a")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, models.JobStatusProcessing, claimed.Status)
	assert.Equal(t, "worker_a", claimed.WorkerID)
	assert.NotNil(t, claimed.StartedAt)
	assert.JSONEq(t, `{"requestId":"a"}`, string(claimed.Payload))

	claimed, err = repo.Claim(ctx, "worker_b")
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	claimed, err = repo.Claim(ctx, "worker_a")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestRedisClaimSkipsOrphanIDs(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()

	job, err := repo.Enqueue(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = mr.Lpush("render_jobs:queue", "orphan")
	require.NoError(t, err)
	// orphan-2 is popped first and has no job hash.
	_, err = mr.RPush("render_jobs:queue", "orphan-2")
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
}

func TestRedisUpdateJobSetsAndClears(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()

	job, err := repo.Enqueue(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	key := "render_jobs:job:" + job.ID
	mr.HSet(key, "error_message", "old failure")

	done := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err = repo.UpdateJob(ctx, job.ID, models.JobPatch{
		models.ColumnStatus:       models.JobStatusCompleted,
		models.ColumnProgress:     100,
		models.ColumnCompletedAt:  done,
		models.ColumnResult:       models.RenderResult{PublicURL: "https://x", Bucket: "b", ObjectPath: "o", RequestID: "r"},
		models.ColumnErrorMessage: nil,
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Empty(t, got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.JSONEq(t, `{"publicUrl":"https://x","bucket":"b","objectPath":"o","requestId":"r"}`, string(got.Result))
	assert.Empty(t, mr.HGet(key, "error_message"))
}

func TestRedisUpdateUnknownJob(t *testing.T) {
	repo, _ := newRedisRepo(t)
	err := repo.UpdateJob(context.Background(), "missing", models.JobPatch{models.ColumnProgress: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRedisGetByIDMissing(t *testing.T) {
	repo, _ := newRedisRepo(t)
	job, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, job)
}
