// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/query"
	"github.com/fernwood/procure/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateField(ctx context.Context, accountID string, field *model.Field, resourceTypes []model.ResourceType) error {
	return queryCreateField(ctx, s.db, accountID, field, resourceTypes)
}

func (s *PostgresStore) GetField(ctx context.Context, accountID, id string) (*model.Field, error) {
	return queryGetField(ctx, s.db, accountID, id)
}

func (s *PostgresStore) ListFields(ctx context.Context, accountID string) ([]*model.Field, error) {
	return queryListFields(ctx, s.db, accountID)
}

func (s *PostgresStore) UpdateField(ctx context.Context, accountID string, field *model.Field) error {
	return queryUpdateField(ctx, s.db, accountID, field)
}

func (s *PostgresStore) DeleteField(ctx context.Context, accountID, id string) error {
	return queryDeleteField(ctx, s.db, accountID, id)
}

func (s *PostgresStore) GetSchema(ctx context.Context, accountID string, resourceType model.ResourceType) (*model.Schema, error) {
	return queryGetSchema(ctx, s.db, accountID, resourceType)
}

func (s *PostgresStore) CreateSection(ctx context.Context, accountID string, resourceType model.ResourceType, section *model.Section) error {
	return queryCreateSection(ctx, s.db, accountID, resourceType, section)
}

func (s *PostgresStore) CreateResource(ctx context.Context, res *model.Resource) error {
	return queryCreateResource(ctx, s.db, res)
}

func (s *PostgresStore) GetResource(ctx context.Context, accountID, id string) (*model.Resource, error) {
	return queryGetResource(ctx, s.db, accountID, id)
}

func (s *PostgresStore) GetResourceByKey(ctx context.Context, accountID string, resourceType model.ResourceType, key int64) (*model.Resource, error) {
	return queryGetResourceByKey(ctx, s.db, accountID, resourceType, key)
}

func (s *PostgresStore) SearchResources(ctx context.Context, accountID string, resourceType model.ResourceType, plan *query.Plan) ([]string, error) {
	return querySearchResources(ctx, s.db, accountID, resourceType, plan)
}

func (s *PostgresStore) UpsertResourceValue(ctx context.Context, accountID, resourceID, fieldID string, value model.Value) error {
	return queryUpsertResourceValue(ctx, s.db, accountID, resourceID, fieldID, value)
}

func (s *PostgresStore) DeleteResource(ctx context.Context, accountID, id string) error {
	return queryDeleteResource(ctx, s.db, accountID, id)
}

func (s *PostgresStore) ListReferencing(ctx context.Context, accountID, fieldID, resourceID string) ([]string, error) {
	return queryListReferencing(ctx, s.db, accountID, fieldID, resourceID)
}

func (s *PostgresStore) SumFieldByLink(ctx context.Context, accountID, sumFieldID, linkFieldID, linkedID string) (float64, error) {
	return querySumFieldByLink(ctx, s.db, accountID, sumFieldID, linkFieldID, linkedID)
}

func (s *PostgresStore) AddCost(ctx context.Context, accountID string, cost *model.Cost) error {
	return queryAddCost(ctx, s.db, accountID, cost)
}

func (s *PostgresStore) DeleteCost(ctx context.Context, accountID, costID string) error {
	return queryDeleteCost(ctx, s.db, accountID, costID)
}

func (s *PostgresStore) CreateContact(ctx context.Context, accountID, id, name, email string) error {
	return queryCreateContact(ctx, s.db, accountID, id, name, email)
}

func (s *PostgresStore) GetContactName(ctx context.Context, accountID, id string) (string, error) {
	return queryGetContactName(ctx, s.db, accountID, id)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateField(ctx context.Context, accountID string, field *model.Field, resourceTypes []model.ResourceType) error {
	return queryCreateField(ctx, s.tx, accountID, field, resourceTypes)
}

func (s *txStore) GetField(ctx context.Context, accountID, id string) (*model.Field, error) {
	return queryGetField(ctx, s.tx, accountID, id)
}

func (s *txStore) ListFields(ctx context.Context, accountID string) ([]*model.Field, error) {
	return queryListFields(ctx, s.tx, accountID)
}

func (s *txStore) UpdateField(ctx context.Context, accountID string, field *model.Field) error {
	return queryUpdateField(ctx, s.tx, accountID, field)
}

func (s *txStore) DeleteField(ctx context.Context, accountID, id string) error {
	return queryDeleteField(ctx, s.tx, accountID, id)
}

func (s *txStore) GetSchema(ctx context.Context, accountID string, resourceType model.ResourceType) (*model.Schema, error) {
	return queryGetSchema(ctx, s.tx, accountID, resourceType)
}

func (s *txStore) CreateSection(ctx context.Context, accountID string, resourceType model.ResourceType, section *model.Section) error {
	return queryCreateSection(ctx, s.tx, accountID, resourceType, section)
}

func (s *txStore) CreateResource(ctx context.Context, res *model.Resource) error {
	return queryCreateResource(ctx, s.tx, res)
}

func (s *txStore) GetResource(ctx context.Context, accountID, id string) (*model.Resource, error) {
	return queryGetResource(ctx, s.tx, accountID, id)
}

func (s *txStore) GetResourceByKey(ctx context.Context, accountID string, resourceType model.ResourceType, key int64) (*model.Resource, error) {
	return queryGetResourceByKey(ctx, s.tx, accountID, resourceType, key)
}

func (s *txStore) SearchResources(ctx context.Context, accountID string, resourceType model.ResourceType, plan *query.Plan) ([]string, error) {
	return querySearchResources(ctx, s.tx, accountID, resourceType, plan)
}

func (s *txStore) UpsertResourceValue(ctx context.Context, accountID, resourceID, fieldID string, value model.Value) error {
	return queryUpsertResourceValue(ctx, s.tx, accountID, resourceID, fieldID, value)
}

func (s *txStore) DeleteResource(ctx context.Context, accountID, id string) error {
	return queryDeleteResource(ctx, s.tx, accountID, id)
}

func (s *txStore) ListReferencing(ctx context.Context, accountID, fieldID, resourceID string) ([]string, error) {
	return queryListReferencing(ctx, s.tx, accountID, fieldID, resourceID)
}

func (s *txStore) SumFieldByLink(ctx context.Context, accountID, sumFieldID, linkFieldID, linkedID string) (float64, error) {
	return querySumFieldByLink(ctx, s.tx, accountID, sumFieldID, linkFieldID, linkedID)
}

func (s *txStore) AddCost(ctx context.Context, accountID string, cost *model.Cost) error {
	return queryAddCost(ctx, s.tx, accountID, cost)
}

func (s *txStore) DeleteCost(ctx context.Context, accountID, costID string) error {
	return queryDeleteCost(ctx, s.tx, accountID, costID)
}

func (s *txStore) CreateContact(ctx context.Context, accountID, id, name, email string) error {
	return queryCreateContact(ctx, s.tx, accountID, id, name, email)
}

func (s *txStore) GetContactName(ctx context.Context, accountID, id string) (string, error) {
	return queryGetContactName(ctx, s.tx, accountID, id)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
