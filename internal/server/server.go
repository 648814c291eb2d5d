// Package server exposes the build pipeline over HTTP: project file
// intake, AI chat-output intake, and preview rendering.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"previewkit/internal/bundler"
	"previewkit/internal/logging"
	"previewkit/internal/preview"
	"previewkit/internal/project"
	"previewkit/internal/vfs"
)

// maxBodyBytes bounds request bodies; AI output for a whole project
// fits comfortably under this.
const maxBodyBytes = 8 << 20

// Server wires the HTTP surface to the stores and the bundler.
type Server struct {
	store    project.Store
	bundler  *bundler.Bundler
	renderer *preview.Renderer
	addr     string
}

// New builds a Server listening on addr.
func New(addr string, store project.Store, b *bundler.Bundler, r *preview.Renderer) *Server {
	return &Server{store: store, bundler: b, renderer: r, addr: addr}
}

// Handler returns the routed HTTP handler with logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("PUT /v1/projects/{id}/files", s.handlePutFiles)
	mux.HandleFunc("POST /v1/projects/{id}/chat-files", s.handleChatFiles)
	mux.HandleFunc("GET /v1/projects/{id}/preview", s.handleProjectPreview)
	mux.HandleFunc("POST /v1/preview", s.handleOneShotPreview)
	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.L(logging.CategoryServer).Info("listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		logging.L(logging.CategoryServer).Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handlePutFiles(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	var files []project.ParsedFile
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&files); err != nil {
		http.Error(w, "invalid file list: "+err.Error(), http.StatusBadRequest)
		return
	}
	for _, f := range files {
		if f.Path == "" {
			http.Error(w, "file entry without a path", http.StatusBadRequest)
			return
		}
	}
	if err := s.store.PutFiles(r.Context(), projectID, files); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stored": len(files)})
}

func (s *Server) handleChatFiles(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	files, problems := project.ExtractFiles(string(body))
	if len(files) > 0 {
		if err := s.store.PutFiles(r.Context(), projectID, files); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Files    []project.ParsedFile `json:"files"`
		Problems []project.Problem    `json:"problems"`
	}{Files: files, Problems: problems})
}

func (s *Server) handleProjectPreview(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	token := r.Header.Get("X-Access-Token")

	entries, err := s.store.GetFiles(r.Context(), projectID, token)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	files := make(map[string]string, len(entries))
	for _, e := range entries {
		files[e.Path] = e.Content
	}
	s.buildAndRender(w, r, vfs.SnapshotOf(files), r.URL.Query().Get("entry"))
}

func (s *Server) handleOneShotPreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files map[string]string `json:"files"`
		Entry string            `json:"entry"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Files) == 0 {
		http.Error(w, "no files given", http.StatusBadRequest)
		return
	}
	s.buildAndRender(w, r, vfs.SnapshotOf(req.Files), req.Entry)
}

// buildAndRender runs a build and writes the HTML page. Build problems
// are a 200 with a diagnostics page; only infrastructure faults 500.
func (s *Server) buildAndRender(w http.ResponseWriter, r *http.Request, snapshot *vfs.Snapshot, entry string) {
	art, err := s.bundler.Build(r.Context(), snapshot, entry)
	if err != nil {
		http.Error(w, "build failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	page, err := s.renderer.Render(art)
	if err != nil {
		http.Error(w, "render failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L(logging.CategoryServer).Warn("write response", zap.Error(err))
	}
}
