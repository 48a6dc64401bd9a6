// CLAUDE:SUMMARY HTTP middleware stack for the tabxport API: maintenance switch, HEAD handling, security headers, body limit, request log.
// Package shield provides the HTTP middleware that wraps the tabxport API.
//
// Usage:
//
//	r := chi.NewRouter()
//	stack, mm := shield.DefaultAPIStack(db, logger)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
//
// Call MaintenanceMode.Reload after the maintenance row changes.
package shield

import (
	"database/sql"
	"log/slog"
	"net/http"
)

// DefaultMaxBody bounds request bodies (task outputs can be large JSON documents).
const DefaultMaxBody = 32 << 20

// DefaultAPIStack returns the standard middleware stack, ordered:
// Maintenance, HeadToGet, SecurityHeaders, MaxBody, RequestLog.
// /health bypasses maintenance.
func DefaultAPIStack(db *sql.DB, logger *slog.Logger) ([]func(http.Handler) http.Handler, *MaintenanceMode) {
	mm := NewMaintenanceMode(db, logger, "/health")
	return []func(http.Handler) http.Handler{
		mm.Middleware,
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(DefaultMaxBody),
		RequestLog(logger),
	}, mm
}
