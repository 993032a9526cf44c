package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/config"
	"github.com/standardbeagle/logsearch-mcp/internal/engine"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := config.NewStore(config.Default(), "")
	eng := engine.New(store)
	rd := reader.New(0)
	return New(eng, rd)
}

func TestPostSearchHappyPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log"), []byte("hello world\n"), 0644))

	s := newTestServer(t)
	body, err := json.Marshal(model.SearchRequest{
		ScanConfig: model.FileScanConfig{RootPath: dir},
		LogicalQuery: model.LogicalQuery{
			Must: []model.SearchQuery{{Query: ptr("hello")}},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalHits)
}

func TestPostSearchRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetFilesListsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), []byte("x\n"), 0644))

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/files?root_path="+dir, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var files []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &files))
	require.Len(t, files, 1)
}

func TestGetFilesInspectRequiresPath(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/files/inspect", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetFilesInspectReturnsFileInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-01 00:00:00 hi\n"), 0644))

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/files/inspect?path="+path, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var info model.FileInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, "none", info.Compression)
}

func ptr(s string) *string { return &s }
