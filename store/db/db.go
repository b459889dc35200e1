// Package db selects the concrete store driver from the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/hbt123-123/firemark/internal/profile"
	"github.com/hbt123-123/firemark/store"
	"github.com/hbt123-123/firemark/store/db/postgres"
	"github.com/hbt123-123/firemark/store/db/sqlite"
)

// NewDBDriver creates the database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
}
