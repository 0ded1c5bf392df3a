// Package repo resolves model repositories to local artifact files.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a repository has no such artifact.
var ErrNotFound = errors.New("artifact not found")

// Repository is a named, versioned set of model files.
type Repository interface {
	Name() string
	Revision() string
	// Get returns a local path for file, fetching it first if needed.
	Get(ctx context.Context, file string) (string, error)
}

// Dir is a repository backed by a local directory.
type Dir struct {
	path string
}

func NewDir(path string) *Dir {
	return &Dir{path: filepath.Clean(path)}
}

func (d *Dir) Name() string     { return filepath.Base(d.path) }
func (d *Dir) Revision() string { return "local" }
func (d *Dir) Path() string     { return d.path }

func (d *Dir) Get(ctx context.Context, file string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !filepath.IsLocal(file) {
		return "", fmt.Errorf("invalid artifact name %q", file)
	}
	p := filepath.Join(d.path, file)
	st, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%s is a directory", p)
	}
	return p, nil
}

// Discover lists the sub-directories of dir that hold a config.json, sorted
// by name.
func Discover(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("models directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var models []string
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), "config.json")); err == nil {
			models = append(models, e.Name())
		}
	}
	sort.Strings(models)
	return models, nil
}
