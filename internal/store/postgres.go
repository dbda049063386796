package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"studentjobs/collector-service/internal/model"
)

// PostgresJobStore persists canonical jobs in the jobs table, with the full
// record as a JSONB payload next to the columns worth indexing.
type PostgresJobStore struct {
	pool *pgxpool.Pool
}

// NewPostgresJobStore constructs a JobStore backed by the given pool.
func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

// GetExisting loads all stored jobs. The dedup pass needs the full set; the
// table is expected to stay in the tens of thousands.
func (s *PostgresJobStore) GetExisting(ctx context.Context) ([]model.CanonicalJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT raw_data FROM jobs`)
	if err != nil {
		return nil, errors.Wrap(err, "query jobs")
	}
	defer rows.Close()

	var jobs []model.CanonicalJob
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan job row")
		}
		var job model.CanonicalJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return nil, errors.Wrap(err, "unmarshal job row")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CreateMany inserts new jobs, skipping any row whose (source, external_id)
// already exists, and returns the number actually inserted.
func (s *PostgresJobStore) CreateMany(ctx context.Context, jobs []model.CanonicalJob) (int, error) {
	inserted := 0
	for _, job := range jobs {
		raw, err := json.Marshal(job)
		if err != nil {
			return inserted, errors.Wrapf(err, "marshal job %s/%s", job.Source, job.ExternalID)
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO jobs (source, external_id, raw_data, quality_score, updated_at)
			 VALUES ($1, $2, $3::jsonb, $4, now())
			 ON CONFLICT (source, external_id) DO NOTHING`,
			job.Source, job.ExternalID, string(raw), job.QualityScore,
		)
		if err != nil {
			return inserted, errors.Wrapf(err, "insert job %s/%s", job.Source, job.ExternalID)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// UpdateMany upserts jobs by (source, external_id) and returns the number of
// rows written.
func (s *PostgresJobStore) UpdateMany(ctx context.Context, jobs []model.CanonicalJob) (int, error) {
	updated := 0
	for _, job := range jobs {
		raw, err := json.Marshal(job)
		if err != nil {
			return updated, errors.Wrapf(err, "marshal job %s/%s", job.Source, job.ExternalID)
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO jobs (source, external_id, raw_data, quality_score, updated_at)
			 VALUES ($1, $2, $3::jsonb, $4, now())
			 ON CONFLICT (source, external_id)
			 DO UPDATE SET raw_data = EXCLUDED.raw_data,
			               quality_score = EXCLUDED.quality_score,
			               updated_at = now()`,
			job.Source, job.ExternalID, string(raw), job.QualityScore,
		)
		if err != nil {
			return updated, errors.Wrapf(err, "update job %s/%s", job.Source, job.ExternalID)
		}
		updated += int(tag.RowsAffected())
	}
	return updated, nil
}
