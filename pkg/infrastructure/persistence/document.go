// Package persistence provides file-backed storage for JSON documents.
// These are the infrastructure adapters behind the config store.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// ErrNotExist is returned by Read when the document has never been written.
var ErrNotExist = fs.ErrNotExist

// ---------------------------------------------------------------------------
// Generic JSON document file
// ---------------------------------------------------------------------------

// JSONFile reads and writes a single JSON document of type T. Reads accept
// comments and trailing commas; writes are indented and atomic (temp file +
// rename), so a crash never leaves a half-written document behind.
type JSONFile[T any] struct {
	path string
	perm os.FileMode
	mu   sync.Mutex
}

// NewJSONFile creates a document handle. Nothing is touched on disk yet.
func NewJSONFile[T any](path string, perm os.FileMode) *JSONFile[T] {
	if perm == 0 {
		perm = 0644
	}
	return &JSONFile[T]{path: path, perm: perm}
}

// Path returns the document location.
func (f *JSONFile[T]) Path() string { return f.path }

// Read decodes the document into a new T.
func (f *JSONFile[T]) Read() (*T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", f.path, ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var doc T
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return &doc, nil
}

// Write replaces the document with doc.
func (f *JSONFile[T]) Write(doc *T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(f.perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// Exists reports whether the document file is present.
func (f *JSONFile[T]) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}
