package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirychukyurii/domain-search/internal/logger"
	"github.com/kirychukyurii/domain-search/internal/model"
)

func newMockStore(t *testing.T) (*postgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &postgresStore{db: db, logger: logger.Discard()}, mock
}

func TestPostgresStore_Load(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	job := newTestJob("job-1")
	data, _ := json.Marshal(job)

	mock.ExpectQuery(`SELECT snapshot, version FROM jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"snapshot", "version"}).AddRow(data, int64(4)))

	loaded, version, err := store.Load(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if version != 4 {
		t.Errorf("got version %d, want 4", version)
	}
	if loaded.ID != "job-1" || loaded.Brief.BusinessName != "Sunrise Bakery" {
		t.Errorf("unexpected job: %+v", loaded)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_LoadNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectQuery(`SELECT snapshot, version FROM jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, _, err := store.Load(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	job := newTestJob("job-1")

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs("job-1", "created", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	version, err := store.Save(context.Background(), job, 0)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if version != 1 {
		t.Errorf("got version %d, want 1", version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_UpdateConflict(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	job := newTestJob("job-1")
	job.State = model.JobStateRunning

	mock.ExpectExec(`UPDATE jobs SET state = \$1, version = version \+ 1`).
		WithArgs("running", sqlmock.AnyArg(), sqlmock.AnyArg(), "job-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := store.Save(context.Background(), job, 3); !errors.Is(err, model.ErrVersionConflict) {
		t.Errorf("expected version conflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_Update(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	job := newTestJob("job-1")
	job.State = model.JobStateRunning

	mock.ExpectExec(`UPDATE jobs SET state = \$1, version = version \+ 1`).
		WithArgs("running", sqlmock.AnyArg(), sqlmock.AnyArg(), "job-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	version, err := store.Save(context.Background(), job, 3)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if version != 4 {
		t.Errorf("got version %d, want 4", version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_ListActive(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectQuery(`SELECT id FROM jobs WHERE state NOT IN`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("c"))

	ids, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("got %v, want [a c]", ids)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_Claim(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectExec(`INSERT INTO job_leases .* ON CONFLICT \(job_id\) DO UPDATE`).
		WithArgs("job-1", "instance-a", float64(15)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO job_leases`).
		WithArgs("job-1", "instance-b", float64(15)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Claim(context.Background(), "job-1", "instance-a", 15*time.Second); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.Claim(context.Background(), "job-1", "instance-b", 15*time.Second); !errors.Is(err, model.ErrLeaseHeld) {
		t.Errorf("expected lease held, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_RenewAndRelease(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectExec(`UPDATE job_leases SET expires_at`).
		WithArgs("job-1", "instance-a", float64(15)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE job_leases SET expires_at`).
		WithArgs("job-1", "instance-b", float64(15)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM job_leases WHERE job_id = \$1 AND owner = \$2`).
		WithArgs("job-1", "instance-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := store.Renew(ctx, "job-1", "instance-a", 15*time.Second); err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	if err := store.Renew(ctx, "job-1", "instance-b", 15*time.Second); !errors.Is(err, model.ErrLeaseLost) {
		t.Errorf("expected lease lost, got %v", err)
	}
	if err := store.Release(ctx, "job-1", "instance-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
