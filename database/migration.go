package database

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"github.com/mbolis/lead-scorer/log"
)

//go:embed migrations
var schema embed.FS

// migrateDB applies every pending migration embedded in the binary.
func migrateDB(db *sql.DB) error {
	src, err := iofs.New(schema, "migrations")
	if err != nil {
		return errors.Wrap(err, "db.migrate.source")
	}

	dst, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return errors.Wrap(err, "db.migrate.driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", dst)
	if err != nil {
		return errors.Wrap(err, "db.migrate.init")
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "db.migrate.up")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrap(err, "db.migrate.version")
	}
	if dirty {
		return errors.Errorf("db.migrate: schema version %d is dirty", version)
	}
	log.Debugf("db.migrate: schema at version %d", version)
	return nil
}
