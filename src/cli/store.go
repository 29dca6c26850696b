package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/khabaroff/hwid-license-server/src/config"
	"github.com/khabaroff/hwid-license-server/src/database"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/khabaroff/hwid-license-server/src/repositories/memory"
	"github.com/khabaroff/hwid-license-server/src/repositories/postgres"
	"github.com/khabaroff/hwid-license-server/src/repositories/sqlstore"
	"github.com/khabaroff/hwid-license-server/src/services"
)

// openStore connects the store selected by cfg.StoreDriver and brings its
// schema up to date
func openStore(ctx context.Context, cfg *config.Config) (repositories.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return postgres.New(db.GetPool(), cfg.LockTimeout), nil
	case config.DriverMySQL:
		return sqlstore.OpenMySQL(cfg.DatabaseURL, cfg.LockTimeout)
	case config.DriverSQLite:
		return sqlstore.OpenSQLite(cfg.SQLitePath, cfg.LockTimeout)
	case config.DriverMemory:
		return memory.New(cfg.LockTimeout), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// fraudPolicy extracts the engine thresholds from cfg
func fraudPolicy(cfg *config.Config) services.FraudPolicy {
	return services.FraudPolicy{
		MaxFailedHWIDAttempts: cfg.MaxFailedHWIDAttempts,
		IPTolerance:           cfg.IPTolerance,
		ConflictRetries:       cfg.ConflictRetries,
	}
}
