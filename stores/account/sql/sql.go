// Package sql implements the account store on postgres or sqlite, selected
// by the store URL scheme.
package sql

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/settings"
	"github.com/surfswift213us/coinblesk-server/stores/account"
	"github.com/surfswift213us/coinblesk-server/ulogger"
	"github.com/surfswift213us/coinblesk-server/util"
)

type SQL struct {
	queries

	db     *sql.DB
	engine util.SQLEngine
	logger ulogger.Logger
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func New(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*SQL, error) {
	db, err := util.InitSQLDB(logger, storeURL, tSettings)
	if err != nil {
		return nil, errors.NewStorageError("failed to init sql db", err)
	}

	switch util.SQLEngine(storeURL.Scheme) {
	case util.Postgres:
		if err = createPostgresSchema(db); err != nil {
			return nil, err
		}

	case util.Sqlite, util.SqliteMemory:
		if err = createSqliteSchema(db); err != nil {
			return nil, err
		}

	default:
		return nil, errors.NewConfigurationError("unknown database engine: %s", storeURL.Scheme)
	}

	return &SQL{
		queries: queries{db: db},
		db:      db,
		engine:  util.SQLEngine(storeURL.Scheme),
		logger:  logger,
	}, nil
}

// WithTx runs fn inside one serializable transaction. Conflicts map to
// ErrStorageConflict so callers can retry with util.Retry.
func (s *SQL) WithTx(ctx context.Context, fn func(q account.Queries) error) error {
	opts := &sql.TxOptions{}
	if s.engine == util.Postgres {
		opts.Isolation = sql.LevelSerializable
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return mapSQLError(err, "failed to begin transaction")
	}

	if err = fn(&queries{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		_ = tx.Rollback()
		return mapSQLError(err, "failed to commit transaction")
	}

	return nil
}

func (s *SQL) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.NewStorageError("database not reachable", err)
	}

	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// mapSQLError folds engine-specific failures into the store error codes:
// unique violations become ErrStorageConflict, as do postgres serialization
// failures and sqlite busy errors.
func mapSQLError(err error, message string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError(message, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001":
			return errors.NewStorageConflictError(message, err)
		}
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_BUSY:
			return errors.NewStorageConflictError(message, err)
		}
	}

	return errors.NewStorageError(message, err)
}

func createPostgresSchema(db *sql.DB) error {
	if _, err := db.Exec(`
	  CREATE TABLE IF NOT EXISTS accounts (
	    client_public_key   BYTEA PRIMARY KEY
	    ,server_private_key BYTEA NOT NULL
	    ,server_public_key  BYTEA NOT NULL
	    ,virtual_balance    BIGINT NOT NULL DEFAULT 0
	    ,nonce              BIGINT NOT NULL DEFAULT 0
	    ,locked             BOOLEAN NOT NULL DEFAULT FALSE
	    ,channel_tx         BYTEA
	    ,broadcast_before   BIGINT NOT NULL DEFAULT 0
	    ,time_created       BIGINT NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create accounts table", err)
	}

	if _, err := db.Exec(`
	  CREATE TABLE IF NOT EXISTS addresses (
	    address_hash        BYTEA PRIMARY KEY
	    ,client_public_key  BYTEA NOT NULL REFERENCES accounts(client_public_key)
	    ,redeem_script      BYTEA NOT NULL
	    ,lock_time          BIGINT NOT NULL
	    ,time_created       BIGINT NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create addresses table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_addresses_client ON addresses (client_public_key);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_addresses_client index", err)
	}

	if _, err := db.Exec(`
	  CREATE TABLE IF NOT EXISTS events (
	    id                  VARCHAR(36) PRIMARY KEY
	    ,client_public_key  BYTEA NOT NULL
	    ,type               VARCHAR(32) NOT NULL
	    ,detail             TEXT NOT NULL DEFAULT ''
	    ,amount             BIGINT NOT NULL DEFAULT 0
	    ,ts                 BIGINT NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create events table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_client_ts ON events (client_public_key, ts DESC);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_events_client_ts index", err)
	}

	return nil
}

func createSqliteSchema(db *sql.DB) error {
	if _, err := db.Exec(`
	  CREATE TABLE IF NOT EXISTS accounts (
	    client_public_key   BLOB PRIMARY KEY
	    ,server_private_key BLOB NOT NULL
	    ,server_public_key  BLOB NOT NULL
	    ,virtual_balance    BIGINT NOT NULL DEFAULT 0
	    ,nonce              BIGINT NOT NULL DEFAULT 0
	    ,locked             BOOLEAN NOT NULL DEFAULT FALSE
	    ,channel_tx         BLOB
	    ,broadcast_before   BIGINT NOT NULL DEFAULT 0
	    ,time_created       BIGINT NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create accounts table", err)
	}

	if _, err := db.Exec(`
	  CREATE TABLE IF NOT EXISTS addresses (
	    address_hash        BLOB PRIMARY KEY
	    ,client_public_key  BLOB NOT NULL REFERENCES accounts(client_public_key)
	    ,redeem_script      BLOB NOT NULL
	    ,lock_time          BIGINT NOT NULL
	    ,time_created       BIGINT NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create addresses table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_addresses_client ON addresses (client_public_key);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_addresses_client index", err)
	}

	if _, err := db.Exec(`
	  CREATE TABLE IF NOT EXISTS events (
	    id                  VARCHAR(36) PRIMARY KEY
	    ,client_public_key  BLOB NOT NULL
	    ,type               VARCHAR(32) NOT NULL
	    ,detail             TEXT NOT NULL DEFAULT ''
	    ,amount             BIGINT NOT NULL DEFAULT 0
	    ,ts                 BIGINT NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create events table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_client_ts ON events (client_public_key, ts DESC);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_events_client_ts index", err)
	}

	return nil
}
