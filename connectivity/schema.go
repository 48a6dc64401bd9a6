package connectivity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/tabxport/dbopen"
)

// Routing strategies.
const (
	// StrategyLocal dispatches to the handler registered via RegisterLocal.
	StrategyLocal = "local"
	// StrategyNoop makes the service succeed without doing anything.
	StrategyNoop = "noop"
)

// Schema defines the routes table read by Router.Reload.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'noop')),
    updated_at   INTEGER NOT NULL DEFAULT 0 -- unix milliseconds
);
`

// SetRoute upserts the strategy for service.
func SetRoute(ctx context.Context, db *sql.DB, service, strategy string) error {
	_, err := dbopen.Exec(ctx, db, `
		INSERT INTO routes (service_name, strategy, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			strategy = excluded.strategy,
			updated_at = excluded.updated_at`,
		service, strategy, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("connectivity: set route %s: %w", service, err)
	}
	return nil
}
