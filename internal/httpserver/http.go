// Package httpserver implements the service's REST-ish transport: a thin
// encode/decode shell around Engine, mirroring the stdio tools one for one.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/standardbeagle/logsearch-mcp/internal/debug"
	"github.com/standardbeagle/logsearch-mcp/internal/engine"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
)

// Server wires the Engine and Reader into an http.Handler.
type Server struct {
	engine *engine.Engine
	reader *reader.Reader
	mux    *http.ServeMux
}

// New builds a Server and registers its routes.
func New(eng *engine.Engine, rd *reader.Reader) *Server {
	s := &Server{engine: eng, reader: rd, mux: http.NewServeMux()}
	s.mux.HandleFunc("/search", s.handleSearch)
	s.mux.HandleFunc("/files", s.handleFiles)
	s.mux.HandleFunc("/files/inspect", s.handleInspect)
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req model.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.engine.Search(r.Context(), req)
	if err != nil {
		debug.LogRPC("search request failed: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	cfg := model.FileScanConfig{
		RootPath: r.URL.Query().Get("root_path"),
	}
	if includes := r.URL.Query()["include_globs"]; len(includes) > 0 {
		cfg.IncludeGlobs = includes
	}
	if excludes := r.URL.Query()["exclude_globs"]; len(excludes) > 0 {
		cfg.ExcludeGlobs = excludes
	}

	files, err := s.engine.ListFiles(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	info, err := s.reader.Inspect(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
