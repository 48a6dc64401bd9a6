// CLAUDE:SUMMARY chi routes for export download, sheet preview, output ingestion, tasks and export history.
package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/tabxport/kit"
	"github.com/hazyhaar/tabxport/outputstore"
	"github.com/hazyhaar/tabxport/shield"
	"github.com/hazyhaar/tabxport/tabular"
)

// maxOutputBytes bounds the body of an output upload.
const maxOutputBytes = 32 << 20

// RegisterHTTP mounts the exporter API under /api/v1.
//
//	GET    /api/v1/documents                            document ids with outputs
//	GET    /api/v1/documents/{documentID}/export?mode=  xlsx download
//	GET    /api/v1/documents/{documentID}/tables?mode=  sheet preview
//	GET    /api/v1/outputs/{taskID}/{documentID}        one raw output
//	PUT    /api/v1/outputs/{taskID}/{documentID}        record a raw output (body verbatim)
//	DELETE /api/v1/outputs/{taskID}/{documentID}
//	GET    /api/v1/tasks
//	POST   /api/v1/tasks
//	DELETE /api/v1/tasks/{taskID}
//	GET    /api/v1/exports?document_id=&limit=
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpContext)

		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{documentID}/export", s.handleExport)
		r.Get("/documents/{documentID}/tables", s.handlePreview)

		r.Get("/outputs/{taskID}/{documentID}", s.handleGetOutput)
		r.Put("/outputs/{taskID}/{documentID}", s.handlePutOutput)
		r.Delete("/outputs/{taskID}/{documentID}", s.handleDeleteOutput)

		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks", s.handlePutTask)
		r.Delete("/tasks/{taskID}", s.handleDeleteTask)

		r.Get("/exports", s.handleListExports)
	})
}

// httpContext tags the request context with the transport and chi's request id.
func httpContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = kit.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := s.Export(r.Context(), Request{
		DocumentID: chi.URLParam(r, "documentID"),
		Mode:       r.URL.Query().Get("mode"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.Header().Set("X-Export-Id", f.ExportID)
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.Preview(r.Context(), Request{
		DocumentID: chi.URLParam(r, "documentID"),
		Mode:       r.URL.Query().Get("mode"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Documents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Service) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.GetOutput(r.Context(), chi.URLParam(r, "taskID"), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if o == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "output not found"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Service) handlePutOutput(w http.ResponseWriter, r *http.Request) {
	taskID, documentID := chi.URLParam(r, "taskID"), chi.URLParam(r, "documentID")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOutputBytes))
	if err != nil {
		writeJSON(w, shield.BodyErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.PutOutput(r.Context(), taskID, documentID, string(body)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "output recorded",
		"task_id", taskID, "document_id", documentID, "bytes", len(body),
		"request_id", kit.GetRequestID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"key": tabular.NewKey(taskID, documentID)})
}

func (s *Service) handleDeleteOutput(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteOutput(r.Context(), chi.URLParam(r, "taskID"), chi.URLParam(r, "documentID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Service) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []outputstore.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Service) handlePutTask(w http.ResponseWriter, r *http.Request) {
	var t outputstore.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	if err := s.store.PutTask(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": t.ID})
}

func (s *Service) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTask(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Service) handleListExports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	exports, err := s.store.ListExports(r.Context(), r.URL.Query().Get("document_id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if exports == nil {
		exports = []outputstore.Export{}
	}
	writeJSON(w, http.StatusOK, exports)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingDocument),
		errors.Is(err, ErrInvalidDocument),
		errors.Is(err, ErrUnknownMode),
		errors.Is(err, outputstore.ErrInvalidKey):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err,
			"request_id", kit.GetRequestID(r.Context()))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
