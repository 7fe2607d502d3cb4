package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Open connects to the SQLite file at url and brings its schema up to date.
func Open(url string) (db *sql.DB, err error) {
	db, err = sql.Open("sqlite3", dsn(url))
	if err != nil {
		return nil, errors.Wrap(err, "db.open")
	}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "db.ping")
	}

	err = migrateDB(db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "db.migrate")
	}

	return db, nil
}

// foreign keys and busy timeout are per connection, so they go in the DSN
// rather than in a one-off PRAGMA.
func dsn(url string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_foreign_keys=on&_busy_timeout=5000"
}
