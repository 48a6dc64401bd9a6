// Package watch polls SQLite for a version token and runs an action when it
// changes, with an optional debounce window.
//
//	w := watch.New(db, watch.Options{Interval: time.Second, Detector: watch.Query(q)})
//	go w.OnChange(ctx, reload)
package watch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token. Two different tokens mean the
// watched data changed.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval is the polling period. Default 1s.
	Interval time.Duration
	// Debounce delays the action until no new version was seen for this
	// long. 0 fires on the first poll that sees a change.
	Debounce time.Duration
	// Detector defaults to PragmaUserVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaUserVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher runs an action each time the detected version changes.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64
	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks  int64 `json:"checks"`
	Changes int64 `json:"changes"`
	Errors  int64 `json:"errors"`
	Reloads int64 `json:"reloads"`
}

// New creates a Watcher; OnChange starts it.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:  w.checks.Load(),
		Changes: w.changes.Load(),
		Errors:  w.errors.Load(),
		Reloads: w.reloads.Load(),
	}
}

// Version returns the last version the action succeeded for.
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange polls until ctx is done. The version seen at start is the
// baseline and does not fire. A failing action leaves the version unchanged,
// so the next poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger
	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var settle <-chan time.Time
	var timer *time.Timer
	pending, hasPending := int64(0), false

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			switch {
			case hasPending && cur == pending:
				if settle != nil {
					continue // still settling
				}
				// A previous action failed: retry.
			case cur == w.version.Load():
				hasPending = false
				continue
			default:
				w.changes.Add(1)
				pending, hasPending = cur, true
			}

			if w.opts.Debounce <= 0 {
				if w.fire(ctx, action, pending) {
					hasPending = false
				}
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.opts.Debounce)
			settle = timer.C

		case <-settle:
			settle = nil
			if hasPending && w.fire(ctx, action, pending) {
				hasPending = false
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context) error, v int64) bool {
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: reload failed", "version", v, "error", err)
		return false
	}
	w.reloads.Add(1)
	w.version.Store(v)
	w.opts.Logger.Info("watch: reloaded", "version", v, "duration_ms", time.Since(start).Milliseconds())
	return true
}

// PragmaUserVersion reads PRAGMA user_version, which writers bump explicitly.
func PragmaUserVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

// Query returns a detector reading a single integer from query, for example
// a MAX(updated_at) over the watched tables.
func Query(query string) ChangeDetector {
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v sql.NullInt64
		if err := db.QueryRowContext(ctx, query).Scan(&v); err != nil {
			return 0, err
		}
		return v.Int64, nil
	}
}

// VersionSchema holds the counter bumped by the triggers TriggerSchema installs.
const VersionSchema = `
CREATE TABLE IF NOT EXISTS watch_version (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO watch_version (id, version) VALUES (1, 0);
`

// TriggerSchema returns VersionSchema plus insert, update and delete
// triggers on each table, so any write to them bumps watch_version. The
// tables must already exist when the schema runs.
func TriggerSchema(tables ...string) string {
	var b strings.Builder
	b.WriteString(VersionSchema)
	for _, t := range tables {
		for _, op := range []string{"INSERT", "UPDATE", "DELETE"} {
			fmt.Fprintf(&b, "CREATE TRIGGER IF NOT EXISTS watch_%s_%s AFTER %s ON %s BEGIN\n"+
				"    UPDATE watch_version SET version = version + 1 WHERE id = 1;\nEND;\n",
				t, strings.ToLower(op), op, t)
		}
	}
	return b.String()
}

// TableVersion reads the counter maintained by TriggerSchema. It only grows,
// so two writes can never restore an earlier token.
func TableVersion(ctx context.Context, db *sql.DB) (int64, error) {
	return Query(`SELECT version FROM watch_version WHERE id = 1`)(ctx, db)
}
