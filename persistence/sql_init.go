package persistence

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var tables = [...]string{`CREATE TABLE IF NOT EXISTS blobs (
	 digest varchar(40) NOT NULL PRIMARY KEY,
	 blob_length bigint NOT NULL,
	 created_at timestamp NOT NULL,
	 blob_data LONGBLOB NOT NULL);`,

	`CREATE TABLE IF NOT EXISTS blob_index (
	 digest varchar(40) NOT NULL PRIMARY KEY,
	 blob_length bigint NOT NULL,
	 created_at timestamp NOT NULL);`,
}

// CreateDBConnection sets up a DB connection and ensures required tables exist
func CreateDBConnection(url *url.URL) (*sqlx.DB, error) {
	driver := url.Scheme
	switch driver {
	case "mysql", "sqlite3":
	default:

		return nil, fmt.Errorf("invalid db driver %s", driver)
	}

	if driver == "sqlite3" {
		dir := filepath.Dir(url.Path)
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, err
		}
	}

	uri := strings.TrimPrefix(url.String(), url.Scheme+"://")

	sqldb, err := sql.Open(driver, uri)
	if err != nil {
		logrus.WithFields(logrus.Fields{"url": uri}).WithError(err).Error("couldn't open db")
		return nil, err
	}

	sqlxDb := sqlx.NewDb(sqldb, driver)
	err = sqlxDb.Ping()
	if err != nil {
		logrus.WithFields(logrus.Fields{"url": uri}).WithError(err).Error("couldn't ping db")
		return nil, err
	}

	maxIdleConns := 256
	sqlxDb.SetMaxIdleConns(maxIdleConns)
	switch driver {
	case "sqlite3":
		sqlxDb.SetMaxOpenConns(1)
	}
	for _, v := range tables {
		_, err = sqlxDb.Exec(v)
		if err != nil {
			return nil, fmt.Errorf("failed to create database table %s: %v", v, err)
		}
	}

	return sqlxDb, nil
}

// insertIgnore is the dialect-specific conflict-free insert prefix. Both
// supported drivers treat a duplicate primary key as a no-op rather than an
// error, which is what gives stores their per-digest idempotence.
func insertIgnore(db *sqlx.DB) string {
	if db.DriverName() == "mysql" {
		return "INSERT IGNORE"
	}
	return "INSERT OR IGNORE"
}
