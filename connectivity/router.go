// Package connectivity dispatches tabxport service calls by name.
//
// Services register an in-process Handler (bytes in, bytes out) and callers go
// through Router.Call without knowing who serves the name. A routes table in
// SQLite can switch a service off at runtime (strategy "noop") without a
// restart:
//
//	router := connectivity.New(connectivity.WithLogger(logger))
//	svc.RegisterConnectivity(router)
//	router.Reload(ctx, db)
//	resp, err := router.Call(ctx, "tabxport_export", payload)
package connectivity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic service function.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Router dispatches calls to registered handlers. Safe for concurrent use.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	strategies    map[string]string
	mw            HandlerMiddleware
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every registered handler with mw.
func WithMiddleware(mw HandlerMiddleware) Option {
	return func(r *Router) { r.mw = mw }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		strategies:    make(map[string]string),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers h under service, replacing any previous handler.
func (r *Router) RegisterLocal(service string, h Handler) {
	if r.mw != nil {
		h = r.mw(h)
	}
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// Services lists registered service names in lexical order.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.localHandlers))
	for name := range r.localHandlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Call dispatches payload to service. A service routed "noop" succeeds with a
// nil response without reaching its handler.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	h := r.localHandlers[service]
	strategy := r.strategies[service]
	r.mu.RUnlock()

	if strategy == StrategyNoop {
		r.logger.DebugContext(ctx, "routing noop", "service", service)
		return nil, nil
	}
	if h == nil {
		return nil, &ErrServiceNotFound{Service: service}
	}
	r.logger.DebugContext(ctx, "routing local", "service", service)
	return h(ctx, payload)
}

// Reload replaces the routing strategies with the content of the routes table.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT service_name, strategy FROM routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	next := make(map[string]string)
	for rows.Next() {
		var name, strategy string
		if err := rows.Scan(&name, &strategy); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		next[name] = strategy
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}

	r.mu.Lock()
	r.strategies = next
	r.mu.Unlock()

	disabled := 0
	for _, s := range next {
		if s == StrategyNoop {
			disabled++
		}
	}
	r.logger.Info("routes reloaded", "total", len(next), "noop", disabled)
	return nil
}
