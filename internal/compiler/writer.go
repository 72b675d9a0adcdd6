package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/portcullis-nac/portcullis/internal/radiusconf"
)

const artifactMode fs.FileMode = 0o640

// ArtifactWriter replaces artifact files atomically. Writes to the same path
// are serialised.
type ArtifactWriter struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewArtifactWriter constructs a writer.
func NewArtifactWriter() *ArtifactWriter {
	return &ArtifactWriter{locks: make(map[string]*sync.Mutex)}
}

func (w *ArtifactWriter) pathLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	return l
}

// Write stores a.Content at a.Path through a temp file in the same directory,
// fsync and rename, so readers see either the old or the new file. It reports
// false without touching the file when the content is already current.
func (w *ArtifactWriter) Write(a radiusconf.Artifact) (bool, error) {
	if a.Path == "" {
		return false, fmt.Errorf("compiler: artifact %s has no path", a.Name)
	}
	l := w.pathLock(a.Path)
	l.Lock()
	defer l.Unlock()

	current, err := os.ReadFile(a.Path)
	switch {
	case err == nil && bytes.Equal(current, a.Content):
		return false, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("compiler: read %s: %w", a.Path, err)
	}

	dir := filepath.Dir(a.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("compiler: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(a.Path)+".tmp-*")
	if err != nil {
		return false, fmt.Errorf("compiler: temp file for %s: %w", a.Path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(a.Content); err != nil {
		return false, fmt.Errorf("compiler: write %s: %w", a.Path, err)
	}
	if err := tmp.Chmod(artifactMode); err != nil {
		return false, fmt.Errorf("compiler: chmod %s: %w", a.Path, err)
	}
	if err := tmp.Sync(); err != nil {
		return false, fmt.Errorf("compiler: sync %s: %w", a.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("compiler: close %s: %w", a.Path, err)
	}
	if err := os.Rename(tmpName, a.Path); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return false, fmt.Errorf("compiler: rename %s: %w", a.Path, err)
	}
	committed = true
	return true, nil
}
