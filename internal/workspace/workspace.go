// Package workspace abstracts the storage that holds document files.
//
// The lifecycle engine and the repository only ever talk to a Workspace, so
// the same state machine runs unchanged over a plain directory or over the
// SQLite-backed store. Entry names are flat, filesystem-safe file names.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a named entry does not exist.
var ErrNotFound = errors.New("entry not found")

// Workspace is the capability surface the document engine needs from storage.
type Workspace interface {
	// List returns the names of all markdown entries, in no particular order.
	List(ctx context.Context) ([]string, error)
	// Read returns the content of an entry, or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write creates or replaces an entry.
	Write(ctx context.Context, name string, data []byte) error
	// Delete removes an entry, or returns ErrNotFound.
	Delete(ctx context.Context, name string) error
	// Exists reports whether an entry is present.
	Exists(ctx context.Context, name string) (bool, error)
}

// Dir is a Workspace over a flat directory of markdown files.
type Dir struct {
	root string
}

// NewDir creates the directory if needed and returns a Workspace over it.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the backing directory path.
func (d *Dir) Root() string {
	return d.root
}

// List implements Workspace.
func (d *Dir) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read content directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Read implements Workspace.
func (d *Dir) Read(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Write implements Workspace.
func (d *Dir) Write(_ context.Context, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(d.root, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Delete implements Workspace.
func (d *Dir) Delete(_ context.Context, name string) error {
	if err := os.Remove(filepath.Join(d.root, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// Exists implements Workspace.
func (d *Dir) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(d.root, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", name, err)
}
