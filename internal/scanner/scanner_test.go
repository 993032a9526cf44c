package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/model"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("line1\n"), 0644))
}

func TestScanDefaultIncludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.log"))
	writeFile(t, filepath.Join(root, "sub", "b.log.gz"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	s := New()
	files, err := s.Scan(model.FileScanConfig{RootPath: root}, nil)
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestScanExcludeTakesPriorityOverInclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.log"))
	writeFile(t, filepath.Join(root, "skip.log"))

	s := New()
	files, err := s.Scan(model.FileScanConfig{
		RootPath:     root,
		IncludeGlobs: []string{"**/*.log"},
		ExcludeGlobs: []string{"**/skip.log"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Contains(t, files[0], "keep.log")
}

func TestScanSkipsSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	real := filepath.Join(t.TempDir(), "real")
	writeFile(t, filepath.Join(real, "hidden.log"))
	require.NoError(t, os.Symlink(real, filepath.Join(root, "link")))
	writeFile(t, filepath.Join(root, "visible.log"))

	s := New()
	files, err := s.Scan(model.FileScanConfig{RootPath: root}, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Contains(t, files[0], "visible.log")
}

func TestScanExplicitPathsIgnoreGlobs(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "weird.data")
	writeFile(t, path)

	s := New()
	files, err := s.Scan(model.FileScanConfig{}, []string{path, filepath.Join(root, "missing.log")})
	require.NoError(t, err)
	require.Equal(t, []string{path}, files)
}

func TestScanInvalidGlobReturnsConfigError(t *testing.T) {
	root := t.TempDir()
	s := New()
	_, err := s.Scan(model.FileScanConfig{RootPath: root, IncludeGlobs: []string{"["}}, nil)
	require.Error(t, err)
}
