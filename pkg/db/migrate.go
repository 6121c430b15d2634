package db

import (
	"context"
	"fmt"

	"github.com/mateoalvarez/carhive-backend/pkg/db/models"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
)

// AutoMigrate synchronizes the schema for dev and test environments. Production
// schema changes run out of band.
func (c *Client) AutoMigrate(ctx context.Context, logg *logger.Logger) error {
	if err := c.conn.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrating schema: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "schema auto-migration complete")
	}
	return nil
}
