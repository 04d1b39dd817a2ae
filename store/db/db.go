package db

import (
	"github.com/pkg/errors"

	"github.com/kestrelhq/dossier/internal/profile"
	"github.com/kestrelhq/dossier/store"
	"github.com/kestrelhq/dossier/store/db/postgres"
	"github.com/kestrelhq/dossier/store/db/sqlite"
)

// NewDBDriver creates a new db driver based on profile.
// SQLite is the default single-node deployment; Postgres serves shared
// multi-instance deployments. Driver "none" disables L2 entirely and is
// handled by the caller, never here.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
