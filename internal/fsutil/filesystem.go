// Package fsutil is the file access layer shared by the frame and encoder
// loaders and the report writers. OSFileSystem writes outputs atomically;
// MemoryFileSystem backs tests.
package fsutil

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileSystem is the set of file operations the loaders and writers use.
type FileSystem interface {
	Open(name string) (io.ReadCloser, error)
	// Create returns a writer whose contents replace name when it is closed.
	Create(name string) (io.WriteCloser, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	// Glob returns matching file names in lexical order.
	Glob(pattern string) ([]string, error)
	Exists(name string) bool
}

// OSFileSystem is the real filesystem. Create and WriteFile go through a
// temporary file in the target directory that is renamed into place, so an
// interrupted run never leaves a truncated plot or run log behind.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (io.ReadCloser, error) { return os.Open(name) }

func (OSFileSystem) Create(name string) (io.WriteCloser, error) {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp*")
	if err != nil {
		return nil, err
	}
	return &renameOnClose{File: tmp, target: name}, nil
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (o OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	w, err := o.Create(name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		Discard(w)
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return os.Chmod(name, perm)
}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (OSFileSystem) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// renameOnClose moves its temporary file onto target when closed.
type renameOnClose struct {
	*os.File
	target string
	done   bool
}

func (r *renameOnClose) Close() error {
	if r.done {
		return os.ErrClosed
	}
	r.done = true
	if err := r.File.Close(); err != nil {
		os.Remove(r.File.Name())
		return err
	}
	if err := os.Rename(r.File.Name(), r.target); err != nil {
		os.Remove(r.File.Name())
		return err
	}
	return nil
}

func (r *renameOnClose) Abort() {
	if !r.done {
		r.done = true
		r.File.Close()
		os.Remove(r.File.Name())
	}
}

// Discard drops a writer returned by Create without publishing what was
// written. Writers that cannot abort are closed.
func Discard(w io.WriteCloser) {
	if a, ok := w.(interface{ Abort() }); ok {
		a.Abort()
		return
	}
	w.Close()
}

// MemoryFileSystem keeps files in a map keyed by cleaned path. Directories
// are tracked only so Exists can answer for them; writing a file does not
// require its parent to exist.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
}

func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: map[string][]byte{}, dirs: map[string]bool{}}
}

func (m *MemoryFileSystem) Open(name string) (io.ReadCloser, error) {
	data, err := m.lookup("open", name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Create returns a buffer that is stored under name on Close. Until then a
// previous file of that name stays readable.
func (m *MemoryFileSystem) Create(name string) (io.WriteCloser, error) {
	return &memWriter{fs: m, name: filepath.Clean(name)}, nil
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	return m.lookup("read", name)
}

// lookup returns a copy of the stored bytes.
func (m *MemoryFileSystem) lookup(op, name string) ([]byte, error) {
	name = filepath.Clean(name)
	m.mu.RLock()
	data, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return bytes.Clone(data), nil
}

func (m *MemoryFileSystem) WriteFile(name string, data []byte, _ os.FileMode) error {
	m.store(filepath.Clean(name), bytes.Clone(data))
	return nil
}

func (m *MemoryFileSystem) store(name string, data []byte) {
	if data == nil {
		data = []byte{}
	}
	m.mu.Lock()
	m.files[name] = data
	m.mu.Unlock()
}

func (m *MemoryFileSystem) MkdirAll(path string, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := filepath.Clean(path); p != "." && p != string(filepath.Separator); p = filepath.Dir(p) {
		m.dirs[p] = true
	}
	return nil
}

func (m *MemoryFileSystem) Glob(pattern string) ([]string, error) {
	pattern = filepath.Clean(pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	var out []string
	for _, name := range m.Files("") {
		if ok, _ := filepath.Match(pattern, name); ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *MemoryFileSystem) Exists(name string) bool {
	name = filepath.Clean(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, isFile := m.files[name]
	return isFile || m.dirs[name]
}

// Files lists stored file names starting with prefix, sorted.
func (m *MemoryFileSystem) Files(prefix string) []string {
	m.mu.RLock()
	var out []string
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

type memWriter struct {
	fs   *MemoryFileSystem
	name    string
	buf     bytes.Buffer
	aborted bool
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	if w.aborted {
		return os.ErrClosed
	}
	w.fs.store(w.name, w.buf.Bytes())
	return nil
}

func (w *memWriter) Abort() { w.aborted = true }
