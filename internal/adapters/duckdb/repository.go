package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              VARCHAR PRIMARY KEY,
	kind            VARCHAR NOT NULL,
	status          VARCHAR NOT NULL,
	total_items     INTEGER NOT NULL,
	completed_items INTEGER NOT NULL,
	artifacts       INTEGER NOT NULL,
	failed_variants INTEGER NOT NULL,
	error           VARCHAR,
	output_location VARCHAR NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS artifacts (
	job_id     VARCHAR NOT NULL,
	item_id    VARCHAR NOT NULL,
	variant    INTEGER NOT NULL,
	path       VARCHAR NOT NULL,
	size_bytes BIGINT NOT NULL,
	mime_type  VARCHAR NOT NULL,
	mode       VARCHAR NOT NULL,
	digest     VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (job_id, item_id, variant)
);`

// Repository keeps job history and artifact records in a DuckDB file so
// status queries keep working after a job is evicted from memory.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at path. An empty path
// opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Repository{db: db}, nil
}

var _ ports.JobRepository = (*Repository)(nil)

func (r *Repository) SaveJob(ctx context.Context, job domain.Job) error {
	query := `
	INSERT INTO jobs (id, kind, status, total_items, completed_items, artifacts, failed_variants, error, output_location, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		completed_items = excluded.completed_items,
		artifacts = excluded.artifacts,
		failed_variants = excluded.failed_variants,
		error = excluded.error,
		updated_at = excluded.updated_at;
	`
	var errMsg sql.NullString
	if job.Error != nil {
		errMsg = sql.NullString{String: *job.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		string(job.ID), string(job.Kind), string(job.Status),
		job.TotalItems, job.CompletedItems, job.Artifacts, job.FailedVariants,
		errMsg, job.OutputLocation, job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

const jobColumns = `id, kind, status, total_items, completed_items, artifacts, failed_variants, error, output_location, created_at, updated_at`

func (r *Repository) GetJob(ctx context.Context, id domain.JobID) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, string(id))
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return domain.Job{}, err
	}
	return job, nil
}

// ListJobs returns the most recent jobs first. limit <= 0 means no limit.
func (r *Repository) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *Repository) SaveArtifact(ctx context.Context, a domain.Artifact) error {
	query := `
	INSERT INTO artifacts (job_id, item_id, variant, path, size_bytes, mime_type, mode, digest, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (job_id, item_id, variant) DO UPDATE SET
		path = excluded.path,
		size_bytes = excluded.size_bytes,
		mime_type = excluded.mime_type,
		mode = excluded.mode,
		digest = excluded.digest;
	`
	_, err := r.db.ExecContext(ctx, query,
		string(a.JobID), a.ItemID, a.Variant, a.Path, a.SizeBytes, a.MimeType, string(a.Mode),
		strconv.FormatUint(a.Digest, 16), a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.Path, err)
	}
	return nil
}

func (r *Repository) ListArtifacts(ctx context.Context, id domain.JobID) ([]domain.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT job_id, item_id, variant, path, size_bytes, mime_type, mode, digest, created_at
	FROM artifacts WHERE job_id = ? ORDER BY created_at, item_id, variant`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	arts := []domain.Artifact{}
	for rows.Next() {
		var a domain.Artifact
		var jobID, mode, digest string
		if err := rows.Scan(&jobID, &a.ItemID, &a.Variant, &a.Path, &a.SizeBytes, &a.MimeType, &mode, &digest, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.JobID = domain.JobID(jobID)
		a.Mode = domain.CaptureMode(mode)
		a.Digest, _ = strconv.ParseUint(digest, 16, 64)
		arts = append(arts, a)
	}
	return arts, rows.Err()
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.Job, error) {
	var j domain.Job
	var id, kind, status string
	var errMsg sql.NullString
	var created, updated time.Time

	err := row.Scan(&id, &kind, &status, &j.TotalItems, &j.CompletedItems, &j.Artifacts, &j.FailedVariants,
		&errMsg, &j.OutputLocation, &created, &updated)
	if err != nil {
		return domain.Job{}, err
	}
	j.ID = domain.JobID(id)
	j.Kind = domain.JobKind(kind)
	j.Status = domain.JobStatus(status)
	if errMsg.Valid {
		msg := errMsg.String
		j.Error = &msg
	}
	j.CreatedAt = created.UTC()
	j.UpdatedAt = updated.UTC()
	return j, nil
}
