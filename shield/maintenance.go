package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/tabxport/dbopen"
)

// DefaultMaintenanceMessage is returned while maintenance is on and no
// message was set.
const DefaultMaintenanceMessage = "Exports are temporarily unavailable."

// Schema holds the single-row maintenance flag.
const Schema = `
CREATE TABLE IF NOT EXISTS maintenance (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    active     INTEGER NOT NULL DEFAULT 0,
    message    TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL DEFAULT 0 -- unix milliseconds
);
INSERT OR IGNORE INTO maintenance (id, active, message) VALUES (1, 0, '');
`

// SetMaintenance switches maintenance on or off.
func SetMaintenance(ctx context.Context, db *sql.DB, active bool, message string) error {
	_, err := dbopen.Exec(ctx, db, `
		INSERT INTO maintenance (id, active, message, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active = excluded.active,
			message = excluded.message,
			updated_at = excluded.updated_at`,
		active, message, time.Now().UnixMilli())
	return err
}

// MaintenanceMode answers 503 while the maintenance flag is set. The flag is
// read from SQLite and cached; a missing table or row means "off".
type MaintenanceMode struct {
	db      *sql.DB
	logger  *slog.Logger
	active  atomic.Bool
	message atomic.Value // string
	exclude []string
}

// NewMaintenanceMode loads the flag once. Paths starting with one of
// excludePrefixes are never blocked.
func NewMaintenanceMode(db *sql.DB, logger *slog.Logger, excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{db: db, logger: logger, exclude: excludePrefixes}
	m.message.Store(DefaultMaintenanceMessage)
	m.Reload(context.Background())
	return m
}

// Active reports whether maintenance is on.
func (m *MaintenanceMode) Active() bool { return m.active.Load() }

// Message returns the current maintenance message.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// Reload reads the flag from the database.
func (m *MaintenanceMode) Reload(ctx context.Context) {
	var active bool
	var message string
	err := m.db.QueryRowContext(ctx, `SELECT active, message FROM maintenance WHERE id = 1`).Scan(&active, &message)
	if err != nil {
		active, message = false, ""
	}

	was := m.active.Swap(active)
	if message == "" {
		message = DefaultMaintenanceMessage
	}
	m.message.Store(message)

	switch {
	case active && !was:
		m.logger.Warn("maintenance: enabled", "message", message)
	case !active && was:
		m.logger.Info("maintenance: disabled")
	}
}

// Middleware blocks non-excluded requests with a JSON 503 while maintenance is on.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "300")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": m.Message()})
	})
}
