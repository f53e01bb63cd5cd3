// Package blobstore places raw capture bytes at opaque storage locators on
// the local filesystem. It stands in for the external object store the
// upload step targets: callers store bytes first, then hand the locator to
// the ingest path.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"fieldcapture/internal/faults"
)

var locatorPattern = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f-]{36}$`)

// Store persists blobs beneath a root directory, fanned out by the first two
// characters of a generated identifier.
type Store struct {
	root string
}

// New creates the blob root if needed and returns a store bound to it.
func New(root string) (*Store, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, errors.New("blob root directory is required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: trimmed}, nil
}

// Save streams reader contents into a new blob and returns its locator and size.
func (s *Store) Save(reader io.Reader) (string, int64, error) {
	id := uuid.NewString()
	locator := filepath.ToSlash(filepath.Join(id[:2], id))

	path, err := s.Path(locator)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, faults.Wrap(faults.ErrTransient, "blobstore", "save", "create fanout directory", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, faults.Wrap(faults.ErrTransient, "blobstore", "save", "create blob file", err)
	}
	size, err := io.Copy(file, reader)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", 0, faults.Wrap(faults.ErrTransient, "blobstore", "save", "write blob", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, faults.Wrap(faults.ErrTransient, "blobstore", "save", "close blob", err)
	}
	return locator, size, nil
}

// Open returns a reader over the blob at locator.
func (s *Store) Open(locator string) (io.ReadCloser, error) {
	path, err := s.Path(locator)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "blobstore", "open", locator, nil)
		}
		return nil, faults.Wrap(faults.ErrTransient, "blobstore", "open", locator, err)
	}
	return file, nil
}

// Delete removes the blob at locator. A missing blob is treated as already
// deleted so cascade cleanup stays idempotent.
func (s *Store) Delete(locator string) error {
	path, err := s.Path(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return faults.Wrap(faults.ErrTransient, "blobstore", "delete", locator, err)
	}
	return nil
}

// Path resolves a locator to its absolute filesystem path, rejecting
// anything that does not match the locator shape this store generates.
func (s *Store) Path(locator string) (string, error) {
	if !locatorPattern.MatchString(locator) {
		return "", faults.Wrap(faults.ErrValidation, "blobstore", "path", fmt.Sprintf("malformed locator %q", locator), nil)
	}
	return filepath.Join(s.root, filepath.FromSlash(locator)), nil
}
