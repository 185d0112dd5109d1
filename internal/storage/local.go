package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var _ Storage = (*Local)(nil)

// Local writes files below a root directory. The HTTP server exposes the
// same directory at URLPrefix.
type Local struct {
	root    string
	baseURL string
}

// URLPrefix is the route the server mounts the upload directory on.
const URLPrefix = "/uploads"

// NewLocal creates root if needed. publicBaseURL is the externally visible
// origin of the API, e.g. "http://localhost:8080".
func NewLocal(root, publicBaseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", root, err)
	}
	return &Local{
		root:    root,
		baseURL: strings.TrimRight(publicBaseURL, "/") + URLPrefix,
	}, nil
}

// Root is the directory files are written to.
func (l *Local) Root() string { return l.root }

// Save writes root/folder/name, creating folder on first use.
func (l *Local) Save(_ context.Context, folder, name string, r io.Reader) (string, error) {
	ref := joinRef(folder, name)
	path, err := l.path(ref)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("storage: creating folder %s: %w", folder, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", ref, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: writing %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("storage: closing %s: %w", ref, err)
	}

	return ref, nil
}

// Remove deletes the file; a missing file is not an error.
func (l *Local) Remove(_ context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	path, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: removing %s: %w", ref, err)
	}
	return nil
}

// URL is publicBaseURL + URLPrefix + "/" + ref.
func (l *Local) URL(ref string) string {
	return joinURL(l.baseURL, ref)
}

// path resolves ref inside root and refuses anything that escapes it.
func (l *Local) path(ref string) (string, error) {
	if !filepath.IsLocal(ref) {
		return "", fmt.Errorf("storage: invalid reference %q", ref)
	}
	return filepath.Join(l.root, filepath.FromSlash(ref)), nil
}
