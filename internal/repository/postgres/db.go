package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/skuwatch/internal/config"
)

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

// A batch run persists a handful of large transactions, not request
// traffic; the pool stays small. txPermits must not exceed maxOpenConns
// or a permitted transaction could stall waiting for a connection.
const (
	maxOpenConns = 4
	maxIdleConns = 1
	connLifetime = 30 * time.Minute
	txPermits    = 2
)

var (
	dbInstance *DB
	once       sync.Once
)

// NewDB creates the shared database connection pool.
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	var err error
	once.Do(func() {
		connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

		var db *sqlx.DB
		db, err = sqlx.Connect("pgx", connStr)
		if err != nil {
			return
		}

		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connLifetime)

		dbInstance = &DB{
			DB:  db,
			sem: semaphore.NewWeighted(txPermits), // limit concurrent transactions
		}
	})

	return dbInstance, err
}

// WithTx executes a function within a transaction.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx.Tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}
