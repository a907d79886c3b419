package mysql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/core"
	godriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

type mysqlStore struct {
	db      *sql.DB
	options backend.Options
}

var _ backend.Store = (*mysqlStore)(nil)

// NewMysqlStore connects to the given database and applies any pending
// migrations.
func NewMysqlStore(host string, port int, user, password, database string, opts ...backend.Option) (*mysqlStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true", user, password, host, port, database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &mysqlStore{
		db:      db,
		options: backend.ApplyOptions(opts...),
	}

	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate applies any pending database migrations.
func (s *mysqlStore) Migrate() error {
	dbi, err := mysqlmigrate.WithInstance(s.db, &mysqlmigrate.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "mysql", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func (s *mysqlStore) Close() error {
	return s.db.Close()
}

func (s *mysqlStore) LoadInstance(ctx context.Context, id string) (*core.WorkflowInstance, error) {
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

func (s *mysqlStore) SaveInstance(ctx context.Context, instance *core.WorkflowInstance) error {
	prev := instance.Version
	next := prev + 1
	instance.Version = next

	data, err := json.Marshal(instance)
	if err != nil {
		instance.Version = prev
		return fmt.Errorf("marshaling instance: %w", err)
	}

	now := s.options.Clock.Now().UTC()

	if prev == 0 {
		_, err = s.db.ExecContext(
			ctx,
			"INSERT INTO instances (id, company_id, status, version, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			instance.ID, instance.CompanyID, string(instance.Status), next, data, now, now,
		)
		if err != nil {
			instance.Version = prev
			if isDuplicateEntry(err) {
				return &core.ConflictError{ID: instance.ID, Version: prev}
			}
			return fmt.Errorf("inserting instance: %w", err)
		}

		return nil
	}

	res, err := s.db.ExecContext(
		ctx,
		"UPDATE instances SET status = ?, version = ?, data = ?, updated_at = ? WHERE id = ? AND version = ?",
		string(instance.Status), next, data, now, instance.ID, prev,
	)
	if err != nil {
		instance.Version = prev
		return fmt.Errorf("updating instance: %w", err)
	}

	if affected, err := res.RowsAffected(); err != nil {
		instance.Version = prev
		return fmt.Errorf("checking update result: %w", err)
	} else if affected == 0 {
		instance.Version = prev
		return &core.ConflictError{ID: instance.ID, Version: prev}
	}

	return nil
}

func (s *mysqlStore) ListActiveInstances(ctx context.Context) ([]string, error) {
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

func (s *mysqlStore) LoadBatch(ctx context.Context, id string) (*core.BatchJob, error) {
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

func (s *mysqlStore) SaveBatch(ctx context.Context, batch *core.BatchJob) error {
	prev := batch.Version
	next := prev + 1
	batch.Version = next

	data, err := json.Marshal(batch)
	if err != nil {
		batch.Version = prev
		return fmt.Errorf("marshaling batch: %w", err)
	}

	now := s.options.Clock.Now().UTC()

	if prev == 0 {
		_, err = s.db.ExecContext(
			ctx,
			"INSERT INTO batches (id, status, version, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			batch.ID, string(batch.Status), next, data, now, now,
		)
		if err != nil {
			batch.Version = prev
			if isDuplicateEntry(err) {
				return &core.ConflictError{ID: batch.ID, Version: prev}
			}
			return fmt.Errorf("inserting batch: %w", err)
		}

		return nil
	}

	res, err := s.db.ExecContext(
		ctx,
		"UPDATE batches SET status = ?, version = ?, data = ?, updated_at = ? WHERE id = ? AND version = ?",
		string(batch.Status), next, data, now, batch.ID, prev,
	)
	if err != nil {
		batch.Version = prev
		return fmt.Errorf("updating batch: %w", err)
	}

	if affected, err := res.RowsAffected(); err != nil {
		batch.Version = prev
		return fmt.Errorf("checking update result: %w", err)
	} else if affected == 0 {
		batch.Version = prev
		return &core.ConflictError{ID: batch.ID, Version: prev}
	}

	return nil
}

func isDuplicateEntry(err error) bool {
	// MySQL error 1062, ER_DUP_ENTRY.
	var me *godriver.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}

	return false
}
