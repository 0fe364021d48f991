package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/internal/models"
	"github.com/amankumarsingh77/render-worker/internal/renderjobs"
	"github.com/jackc/pgx/v4"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type renderJobsRepo struct {
	db           *sqlx.DB
	table        string
	claimQuery   string
	getQuery     string
	enqueueQuery string
	queuedStatus string
}

func NewRenderJobsRepo(db *sqlx.DB, cfg *config.Config) renderjobs.Repository {
	table := quoteIdentifier(cfg.Queue.Table)
	return &renderJobsRepo{
		db:           db.Unsafe(),
		table:        table,
		claimQuery:   fmt.Sprintf(claimJobQuery, quoteIdentifier(cfg.Queue.ClaimFunction)),
		getQuery:     fmt.Sprintf(getJobByIDQuery, table),
		enqueueQuery: fmt.Sprintf(enqueueJobQuery, table),
		queuedStatus: cfg.Statuses.Queued,
	}
}

// jobRow tolerates NULLs everywhere: the claim function returns an all-NULL
// row when the queue is empty.
type jobRow struct {
	ID           sql.NullString  `db:"id"`
	Payload      []byte          `db:"payload"`
	Status       sql.NullString  `db:"status"`
	Progress     sql.NullFloat64 `db:"progress"`
	WorkerID     sql.NullString  `db:"worker_id"`
	CreatedAt    sql.NullTime    `db:"created_at"`
	StartedAt    sql.NullTime    `db:"started_at"`
	FinishedAt   sql.NullTime    `db:"finished_at"`
	CompletedAt  sql.NullTime    `db:"completed_at"`
	ErrorMessage sql.NullString  `db:"error_message"`
	Result       []byte          `db:"result"`
}

func (r *jobRow) toModel() *models.RenderJob {
	if !r.ID.Valid || r.ID.String == "" {
		return nil
	}
	return &models.RenderJob{
		ID:           r.ID.String,
		Payload:      json.RawMessage(r.Payload),
		Status:       models.JobStatus(r.Status.String),
		Progress:     int(r.Progress.Float64),
		WorkerID:     r.WorkerID.String,
		CreatedAt:    nullTime(r.CreatedAt),
		StartedAt:    nullTime(r.StartedAt),
		FinishedAt:   nullTime(r.FinishedAt),
		CompletedAt:  nullTime(r.CompletedAt),
		ErrorMessage: r.ErrorMessage.String,
		Result:       json.RawMessage(r.Result),
	}
}

func (r *renderJobsRepo) Claim(ctx context.Context, workerID string) (*models.RenderJob, error) {
	row := &jobRow{}
	if err := r.db.QueryRowxContext(ctx, r.claimQuery, workerID).StructScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "renderJobsRepo.Claim.StructScan")
	}
	return row.toModel(), nil
}

func (r *renderJobsRepo) GetByID(ctx context.Context, jobID string) (*models.RenderJob, error) {
	row := &jobRow{}
	if err := r.db.QueryRowxContext(ctx, r.getQuery, jobID).StructScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "renderJobsRepo.GetByID.StructScan")
	}
	return row.toModel(), nil
}

func (r *renderJobsRepo) UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) error {
	if len(patch) == 0 {
		return nil
	}
	columns := make([]string, 0, len(patch))
	for column := range patch {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, column := range columns {
		value, err := sqlValue(patch[column])
		if err != nil {
			return errors.Wrapf(err, "renderJobsRepo.UpdateJob.%s", column)
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", quoteIdentifier(column), i+1))
		args = append(args, value)
	}
	args = append(args, jobID)

	query := fmt.Sprintf(updateJobQuery, r.table, strings.Join(assignments, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "renderJobsRepo.UpdateJob.ExecContext")
	}
	return nil
}

func (r *renderJobsRepo) Enqueue(ctx context.Context, payload json.RawMessage) (*models.RenderJob, error) {
	row := &jobRow{}
	if err := r.db.QueryRowxContext(ctx, r.enqueueQuery, string(payload), r.queuedStatus).StructScan(row); err != nil {
		return nil, errors.Wrap(err, "renderJobsRepo.Enqueue.StructScan")
	}
	job := row.toModel()
	if job == nil {
		return nil, errors.New("renderJobsRepo.Enqueue: insert returned no id")
	}
	return job, nil
}

func quoteIdentifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// sqlValue converts patch values into something the pgx stdlib driver can bind.
// JSON documents are sent as text and cast by the column type.
func sqlValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case models.JobStatus:
		return string(val), nil
	case time.Time:
		return val.UTC(), nil
	case json.RawMessage:
		return string(val), nil
	case models.RenderResult, *models.RenderResult:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return val, nil
	}
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
