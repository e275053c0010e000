// Package fsutil provides filesystem abstractions for testability.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileSystem abstracts the file operations of a conversion run.
// Use OSFileSystem for production; MemoryFileSystem for testing.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(path string, perm os.FileMode) error

	// Exists checks if a file or directory exists.
	Exists(name string) bool

	// ListFiles returns every regular file below root whose extension is
	// ext (".json"), sorted by path. Sorted order is what makes SourceId
	// assignment reproducible between runs.
	ListFiles(root, ext string) ([]string, error)
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

// ReadFile reads the named file.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes data to the named file.
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// MkdirAll creates a directory path.
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Exists checks if a file exists.
func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// ListFiles walks root recursively.
func (OSFileSystem) ListFiles(root, ext string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && filepath.Ext(path) == ext {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// MemoryFileSystem provides an in-memory filesystem for testing.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemoryFileSystem creates a new in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

// ReadFile reads a file's contents.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}

	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// WriteFile writes data to a file. Parent directories are implied.
func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if m.dirs[name] {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrExist}
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	m.files[name] = dataCopy
	m.markParents(name)

	return nil
}

// MkdirAll creates directories.
func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if _, ok := m.files[path]; ok {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
	}
	m.dirs[path] = true
	m.markParents(path)
	return nil
}

// Exists checks if a file or directory exists.
func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if _, ok := m.files[name]; ok {
		return true
	}
	return m.dirs[name]
}

// ListFiles returns the files below root with extension ext.
func (m *MemoryFileSystem) ListFiles(root, ext string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	root = filepath.Clean(root)
	if _, isFile := m.files[root]; !isFile && !m.dirs[root] {
		return nil, &fs.PathError{Op: "lstat", Path: root, Err: fs.ErrNotExist}
	}

	var out []string
	for name := range m.files {
		if filepath.Ext(name) != ext {
			continue
		}
		if name == root || root == "." || strings.HasPrefix(name, root+string(filepath.Separator)) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// markParents records every ancestor of path as a directory. Callers hold mu.
func (m *MemoryFileSystem) markParents(path string) {
	for p := filepath.Dir(path); p != "." && p != "/" && p != path; p = filepath.Dir(p) {
		m.dirs[p] = true
		path = p
	}
}
