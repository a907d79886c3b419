package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"time"

	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/core"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// NewInMemoryStore creates a store backed by an in-memory SQLite database.
func NewInMemoryStore(opts ...backend.Option) *sqliteStore {
	s := newSqliteStore("file::memory:?mode=memory&cache=shared", opts...)

	// Keep a single connection, otherwise the in-memory database vanishes
	// when the pool cycles.
	s.db.SetMaxOpenConns(1)

	return s
}

// NewSqliteStore creates a store backed by a SQLite database at the given
// path.
func NewSqliteStore(path string, opts ...backend.Option) *sqliteStore {
	return newSqliteStore(fmt.Sprintf("file:%v?_pragma=busy_timeout(5000)", path), opts...)
}

func newSqliteStore(dsn string, opts ...backend.Option) *sqliteStore {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	if _, err := db.Exec(schema); err != nil {
		panic(fmt.Errorf("initializing database: %w", err))
	}

	return &sqliteStore{
		db:      db,
		options: backend.ApplyOptions(opts...),
	}
}

type sqliteStore struct {
	db      *sql.DB
	options backend.Options
}

var _ backend.Store = (*sqliteStore)(nil)

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) LoadInstance(ctx context.Context, id string) (*core.WorkflowInstance, error) {
	var data []byte
	var version int64

	err := s.db.QueryRowContext(
		ctx, "SELECT data, version FROM instances WHERE id = ?", id,
	).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, core.ErrInstanceNotFound
	} else if err != nil {
		return nil, fmt.Errorf("loading instance: %w", err)
	}

	var instance core.WorkflowInstance
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("unmarshaling instance: %w", err)
	}

	instance.Version = version

	return &instance, nil
}

func (s *sqliteStore) SaveInstance(ctx context.Context, instance *core.WorkflowInstance) error {
	now := s.options.Clock.Now().UTC()
	next := instance.Version + 1
	prev := instance.Version
	instance.Version = next

	data, err := json.Marshal(instance)
	if err != nil {
		instance.Version = prev
		return fmt.Errorf("marshaling instance: %w", err)
	}

	if prev == 0 {
		err = insertRow(ctx, s.db, "instances", row{
			id: instance.ID, companyID: instance.CompanyID,
			status: string(instance.Status), version: next, data: data, now: now,
		})
	} else {
		err = updateRow(ctx, s.db, "instances", row{
			id: instance.ID, status: string(instance.Status),
			version: next, data: data, now: now,
		}, prev)
	}

	if err != nil {
		instance.Version = prev
		return err
	}

	return nil
}

func (s *sqliteStore) ListActiveInstances(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx, "SELECT id FROM instances WHERE status = ? ORDER BY created_at", string(core.InstanceStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("listing active instances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning instance id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *sqliteStore) LoadBatch(ctx context.Context, id string) (*core.BatchJob, error) {
	var data []byte
	var version int64

	err := s.db.QueryRowContext(
		ctx, "SELECT data, version FROM batches WHERE id = ?", id,
	).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, core.ErrBatchNotFound
	} else if err != nil {
		return nil, fmt.Errorf("loading batch: %w", err)
	}

	var batch core.BatchJob
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("unmarshaling batch: %w", err)
	}

	batch.Version = version

	return &batch, nil
}

func (s *sqliteStore) SaveBatch(ctx context.Context, batch *core.BatchJob) error {
	now := s.options.Clock.Now().UTC()
	next := batch.Version + 1
	prev := batch.Version
	batch.Version = next

	data, err := json.Marshal(batch)
	if err != nil {
		batch.Version = prev
		return fmt.Errorf("marshaling batch: %w", err)
	}

	if prev == 0 {
		err = insertRow(ctx, s.db, "batches", row{
			id: batch.ID, status: string(batch.Status), version: next, data: data, now: now,
		})
	} else {
		err = updateRow(ctx, s.db, "batches", row{
			id: batch.ID, status: string(batch.Status), version: next, data: data, now: now,
		}, prev)
	}

	if err != nil {
		batch.Version = prev
		return err
	}

	return nil
}

type row struct {
	id        string
	companyID string
	status    string
	version   int64
	data      []byte
	now       time.Time
}

func insertRow(ctx context.Context, db *sql.DB, table string, r row) error {
	var err error
	if table == "instances" {
		_, err = db.ExecContext(
			ctx,
			"INSERT INTO instances (id, company_id, status, version, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			r.id, r.companyID, r.status, r.version, r.data, r.now, r.now,
		)
	} else {
		_, err = db.ExecContext(
			ctx,
			"INSERT INTO batches (id, status, version, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			r.id, r.status, r.version, r.data, r.now, r.now,
		)
	}

	if err != nil {
		// A duplicate insert is a conflicting write from a concurrent
		// creator, not an internal fault.
		var exists bool
		if checkErr := db.QueryRowContext(
			ctx, fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", table), r.id,
		).Scan(&exists); checkErr == nil && exists {
			return &core.ConflictError{ID: r.id, Version: 0}
		}

		return fmt.Errorf("inserting into %s: %w", table, err)
	}

	return nil
}

func updateRow(ctx context.Context, db *sql.DB, table string, r row, prev int64) error {
	res, err := db.ExecContext(
		ctx,
		fmt.Sprintf("UPDATE %s SET status = ?, version = ?, data = ?, updated_at = ? WHERE id = ? AND version = ?", table),
		r.status, r.version, r.data, r.now, r.id, prev,
	)
	if err != nil {
		return fmt.Errorf("updating %s: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}

	if affected == 0 {
		return &core.ConflictError{ID: r.id, Version: prev}
	}

	return nil
}
