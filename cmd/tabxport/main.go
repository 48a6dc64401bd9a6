// CLAUDE:SUMMARY CLI entry point for tabxport: one-shot xlsx export of a document, or HTTP/MCP daemon.
// Command tabxport exports the tabular task outputs of a document as an
// .xlsx workbook.
//
// Usage:
//
//	tabxport -config tabxport.yaml                    # serve HTTP with config file
//	tabxport -db tabxport.db -listen :8087            # serve HTTP with defaults
//	tabxport -db tabxport.db -doc doc1 -out ./exports # export one document and exit
//	tabxport -db tabxport.db -mcp-stdio               # serve MCP tools on stdin/stdout
//	tabxport -hash-token "$TOKEN"                     # print admin_token_hash and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/netutil"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabxport/connectivity"
	"github.com/hazyhaar/tabxport/dbopen"
	"github.com/hazyhaar/tabxport/exporter"
	"github.com/hazyhaar/tabxport/outputstore"
	"github.com/hazyhaar/tabxport/shield"
	"github.com/hazyhaar/tabxport/watch"
)

const version = "0.1.0"

type options struct {
	configPath string
	dbPath     string
	listen     string
	doc        string
	mode       string
	out        string
	mcpStdio   bool
	hashToken  string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to tabxport.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database")
	flag.StringVar(&o.listen, "listen", "", "HTTP listen address (default :8087)")
	flag.StringVar(&o.doc, "doc", "", "export this document and exit")
	flag.StringVar(&o.mode, "mode", "", "export mode: combined or sheets")
	flag.StringVar(&o.out, "out", "", "directory the one-shot export is written to")
	flag.BoolVar(&o.mcpStdio, "mcp-stdio", false, "serve MCP tools on stdin/stdout")
	flag.StringVar(&o.hashToken, "hash-token", "", "print the admin_token_hash for this token and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if o.hashToken != "" {
		hash, err := shield.HashToken(o.hashToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("tabxport: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}
	cfg.Logger = logger
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(outputstore.Schema),
		dbopen.WithSchema(connectivity.Schema),
		dbopen.WithSchema(shield.Schema),
		dbopen.WithSchema(watch.TriggerSchema("routes", "maintenance")))
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	store := outputstore.New(db)
	defer store.Close()

	svc, err := exporter.New(cfg, store)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	// One-shot: export a document.
	if o.doc != "" {
		saver := exporter.DirSaver{Dir: cfg.OutputDir}
		f, err := svc.Save(ctx, exporter.Request{DocumentID: o.doc, Mode: o.mode}, saver)
		if err != nil {
			return fmt.Errorf("export %s: %w", o.doc, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exporter.Saved{File: f, Path: saver.Path(f.Name)})
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "tabxport", Version: version}, nil)
	svc.RegisterMCP(mcpSrv)

	if o.mcpStdio {
		logger.Info("tabxport: serving MCP on stdio", "db", cfg.DBPath)
		return mcpSrv.Run(ctx, &mcp.StdioTransport{})
	}

	router := connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(connectivity.Chain(
			connectivity.Logging(logger),
			connectivity.Recovery(logger),
		)),
	)
	svc.RegisterConnectivity(router)
	if err := router.Reload(ctx, db); err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	stack, mm := shield.DefaultAPIStack(db, logger)
	for _, mw := range stack {
		r.Use(mw)
	}

	// Pick up route and maintenance edits made by other processes.
	watcher := watch.New(db, watch.Options{
		Interval: time.Second,
		Debounce: 500 * time.Millisecond,
		Detector: watch.TableVersion,
		Logger:   logger,
	})
	go watcher.OnChange(ctx, func(ctx context.Context) error {
		if err := router.Reload(ctx, db); err != nil {
			return err
		}
		mm.Reload(ctx)
		return nil
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	svc.RegisterHTTP(r)
	r.Post("/rpc/{service}", rpcHandler(router))
	r.Route("/admin", func(r chi.Router) {
		r.Use(shield.AdminAuth(cfg.AdminTokenHash))
		r.Post("/routes/reload", func(w http.ResponseWriter, req *http.Request) {
			if err := router.Reload(req.Context(), db); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"services": router.Services()})
		})
		r.Post("/maintenance", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Active  bool   `json:"active"`
				Message string `json:"message"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			if err := shield.SetMaintenance(req.Context(), db, body.Active, body.Message); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			mm.Reload(req.Context())
			writeJSON(w, http.StatusOK, map[string]any{"active": mm.Active(), "message": mm.Message()})
		})
	})
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConns)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tabxport: listening", "addr", cfg.Listen, "db", cfg.DBPath, "output_dir", cfg.OutputDir, "max_conns", cfg.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("tabxport: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// rpcHandler exposes the connectivity services over HTTP: the request body
// is the payload, the response body is the handler's JSON answer.
func rpcHandler(router *connectivity.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
		if err != nil {
			writeJSON(w, shield.BodyErrorStatus(err), map[string]string{"error": err.Error()})
			return
		}
		resp, err := router.Call(r.Context(), chi.URLParam(r, "service"), payload)
		if err != nil {
			var snf *connectivity.ErrServiceNotFound
			code := http.StatusBadRequest
			if errors.As(err, &snf) {
				code = http.StatusNotFound
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	}
}

func resolveConfig(o options) (*exporter.Config, error) {
	cfg := &exporter.Config{}
	if o.configPath != "" {
		loaded, err := exporter.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	if o.out != "" {
		cfg.OutputDir = o.out
	}
	if o.mode != "" {
		cfg.DefaultMode = o.mode
	}

	if o.configPath == "" && cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "usage: tabxport -config <file> | -db <path> [-doc <id> [-mode combined|sheets] [-out <dir>]] [-listen <addr>] [-mcp-stdio]")
		os.Exit(1)
	}
	return cfg, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
