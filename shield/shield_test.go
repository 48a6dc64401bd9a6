package shield

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabxport/dbopen"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func maintenanceDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestMaintenance_Off(t *testing.T) {
	mm := NewMaintenanceMode(maintenanceDB(t), quietLogger())
	if w := serve(mm.Middleware(okHandler()), "GET", "/api/v1/tasks"); w.Code != http.StatusOK {
		t.Errorf("expected 200 when maintenance off, got %d", w.Code)
	}
}

func TestMaintenance_OnAndExcluded(t *testing.T) {
	db := maintenanceDB(t)
	ctx := context.Background()
	if err := SetMaintenance(ctx, db, true, "migrating"); err != nil {
		t.Fatal(err)
	}
	mm := NewMaintenanceMode(db, quietLogger(), "/health")
	h := mm.Middleware(okHandler())

	w := serve(h, "GET", "/api/v1/documents/doc1/export")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "migrating") || w.Header().Get("Retry-After") != "300" {
		t.Errorf("response: %q %v", w.Body.String(), w.Header())
	}
	if w := serve(h, "GET", "/health"); w.Code != http.StatusOK {
		t.Errorf("excluded path: got %d", w.Code)
	}

	if err := SetMaintenance(ctx, db, false, ""); err != nil {
		t.Fatal(err)
	}
	mm.Reload(ctx)
	if mm.Active() {
		t.Error("still active after reload")
	}
	if mm.Message() != DefaultMaintenanceMessage {
		t.Errorf("message: %q", mm.Message())
	}
}

func TestMaintenance_MissingTable(t *testing.T) {
	mm := NewMaintenanceMode(dbopen.OpenMemory(t), quietLogger())
	if mm.Active() {
		t.Error("missing table must mean maintenance off")
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(SecurityHeaders(APIHeaders())(okHandler()), "GET", "/")
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
	w = serve(SecurityHeaders(HeaderConfig{})(okHandler()), "GET", "/")
	if w.Header().Get("X-Frame-Options") != "" {
		t.Error("empty config must not set headers")
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	for body, want := range map[string]int{"abc": http.StatusOK, "abcdef": http.StatusRequestEntityTooLarge} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("PUT", "/", strings.NewReader(body)))
		if w.Code != want {
			t.Errorf("body %q: got %d, want %d", body, w.Code, want)
		}
	}
}

func TestBodyErrorStatus(t *testing.T) {
	w := httptest.NewRecorder()
	_, tooLarge := io.ReadAll(http.MaxBytesReader(w, io.NopCloser(strings.NewReader("abcdef")), 4))
	_, broken := io.ReadAll(iotest.ErrReader(errors.New("connection reset")))

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"limit hit", tooLarge, http.StatusRequestEntityTooLarge},
		{"wrapped limit", fmt.Errorf("read output: %w", tooLarge), http.StatusRequestEntityTooLarge},
		{"broken body", broken, http.StatusBadRequest},
		{"unexpected eof", io.ErrUnexpectedEOF, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BodyErrorStatus(tt.err); got != tt.want {
				t.Errorf("BodyErrorStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestHeadToGet(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HeadToGet)
	r.Get("/health", okHandler().ServeHTTP)
	if w := serve(r, "HEAD", "/health"); w.Code != http.StatusOK {
		t.Errorf("HEAD: got %d", w.Code)
	}
}

func TestDefaultAPIStack_LogsRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	stack, mm := DefaultAPIStack(maintenanceDB(t), logger)
	if mm.Active() {
		t.Fatal("maintenance on by default")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Get("/health", okHandler().ServeHTTP)

	w := serve(r, "GET", "/health")
	if w.Code != http.StatusOK || w.Header().Get("X-Request-ID") == "" {
		t.Errorf("response: %d %v", w.Code, w.Header())
	}
	if !strings.Contains(buf.String(), "path=/health") || !strings.Contains(buf.String(), "status=200") {
		t.Errorf("log: %s", buf.String())
	}
}
