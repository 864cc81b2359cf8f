package migrate

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// AutoRun applies pending migrations at boot. It only acts in dev with
// MARKETPLACE_AUTO_MIGRATE set.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	conn, err := client.DB().DB()
	if err != nil {
		return err
	}
	m, err := New(conn, cfg.DB.Driver, Migrations(), logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "auto-migrating dev database")
	return m.Up(ctx)
}
