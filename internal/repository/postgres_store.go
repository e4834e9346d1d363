package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// postgresStore implements JobStore on a jobs table with a version column
type postgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore opens the database, optionally migrates it and returns a job store
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (JobStore, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if cfg.MigrateOnStart {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("connected to postgres")

	return &postgresStore{db: db, logger: logger}, nil
}

// Migrate runs all pending database migrations from the embedded migrations/ directory
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

func (s *postgresStore) Load(ctx context.Context, jobID string) (*model.Job, int64, error) {
	var (
		data    []byte
		version int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot, version FROM jobs WHERE id = $1`, jobID,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, version, nil
}

func (s *postgresStore) Save(ctx context.Context, job *model.Job, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO jobs (id, state, version, snapshot, created_at, updated_at)
			 VALUES ($1, $2, 1, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			job.ID, string(job.State), data, job.CreatedAt, job.UpdatedAt)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET state = $1, version = version + 1, snapshot = $2, updated_at = $3
			 WHERE id = $4 AND version = $5`,
			string(job.State), data, job.UpdatedAt, job.ID, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("job %s expected version %d: %w", job.ID, expectedVersion, model.ErrVersionConflict)
	}

	return expectedVersion + 1, nil
}

func (s *postgresStore) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE state NOT IN ('completed', 'cancelled', 'failed') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim upserts the lease row; the update only applies when owner already
// holds it or the current lease has expired.
func (s *postgresStore) Claim(ctx context.Context, jobID, owner string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_leases (job_id, owner, expires_at)
		 VALUES ($1, $2, NOW() + make_interval(secs => $3))
		 ON CONFLICT (job_id) DO UPDATE
		 SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		 WHERE job_leases.owner = EXCLUDED.owner OR job_leases.expires_at < NOW()`,
		jobID, owner, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, model.ErrLeaseHeld)
	}
	return nil
}

func (s *postgresStore) Renew(ctx context.Context, jobID, owner string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_leases SET expires_at = NOW() + make_interval(secs => $3)
		 WHERE job_id = $1 AND owner = $2`,
		jobID, owner, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("failed to renew lease of job %s: %w", jobID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to renew lease of job %s: %w", jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, model.ErrLeaseLost)
	}
	return nil
}

func (s *postgresStore) Release(ctx context.Context, jobID, owner string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM job_leases WHERE job_id = $1 AND owner = $2`, jobID, owner,
	); err != nil {
		return fmt.Errorf("failed to release job %s: %w", jobID, err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
