package util

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/labstack/gommon/random"
	_ "modernc.org/sqlite"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/settings"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

type SQLEngine string

const (
	Postgres     SQLEngine = "postgres"
	Sqlite       SQLEngine = "sqlite"
	SqliteMemory SQLEngine = "sqlitememory"
)

// InitSQLDB opens the database named by storeURL. The scheme selects the
// engine: postgres, sqlite (file under the data folder) or sqlitememory.
func InitSQLDB(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*sql.DB, error) {
	switch storeURL.Scheme {
	case "postgres":
		return initPostgresDB(logger, storeURL)
	case "sqlite", "sqlitememory":
		return initSQLiteDB(logger, storeURL, tSettings)
	}

	return nil, errors.NewConfigurationError("db: unknown scheme: %s", storeURL.Scheme)
}

func initPostgresDB(logger ulogger.Logger, storeURL *url.URL) (*sql.DB, error) {
	dbHost := storeURL.Hostname()
	dbPort, _ := strconv.Atoi(storeURL.Port())
	dbName := storeURL.Path[1:]

	dbUser := ""
	dbPassword := ""

	if storeURL.User != nil {
		dbUser = storeURL.User.Username()
		dbPassword, _ = storeURL.User.Password()
	}

	sslMode := "disable"
	if val, ok := storeURL.Query()["sslmode"]; ok && len(val) > 0 {
		sslMode = val[0]
	}

	dbInfo := fmt.Sprintf("user=%s password=%s dbname=%s sslmode=%s host=%s port=%d", dbUser, dbPassword, dbName, sslMode, dbHost, dbPort)

	db, err := sql.Open("postgres", dbInfo)
	if err != nil {
		return nil, errors.NewStorageError("failed to open postgres DB", err)
	}

	logger.Infof("Using postgres DB: %s@%s:%d/%s", dbUser, dbHost, dbPort, dbName)

	return db, nil
}

func initSQLiteDB(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*sql.DB, error) {
	var filename string

	if storeURL.Scheme == "sqlitememory" {
		filename = fmt.Sprintf("file:%s?mode=memory&cache=shared", random.String(16))
	} else {
		folder := tSettings.DataFolder
		if err := os.MkdirAll(folder, 0755); err != nil {
			return nil, errors.NewStorageError("failed to create data folder %s", folder, err)
		}

		dbName := storeURL.Path[1:]

		abs, err := filepath.Abs(path.Join(folder, fmt.Sprintf("%s.db", dbName)))
		if err != nil {
			return nil, errors.NewStorageError("failed to get absolute path for sqlite DB", err)
		}

		/* Don't be tempted by a large busy_timeout. Just masks a bigger problem.
		Fail fast. This is 'dev mode' sqlite after all */
		filename = fmt.Sprintf("%s?cache=shared&_pragma=busy_timeout=5000&_pragma=journal_mode=WAL", abs)
	}

	logger.Infof("Using sqlite DB: %s", filename)

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, errors.NewStorageError("failed to open sqlite DB", err)
	}

	if _, err = db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, errors.NewStorageError("could not enable foreign keys support", err)
	}

	return db, nil
}
