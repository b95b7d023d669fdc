package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskBlobStore keeps receipts as files in one directory. The directory is
// served under /uploads by the API.
type DiskBlobStore struct {
	dir     string
	baseURL string
}

// NewDiskBlobStore creates dir if needed. baseURL is prepended to
// /uploads/<name> when building receipt URLs and may be empty.
func NewDiskBlobStore(dir, baseURL string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &DiskBlobStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory holding the receipts.
func (d *DiskBlobStore) Dir() string { return d.dir }

func (d *DiskBlobStore) Kind() string { return "disk" }

func (d *DiskBlobStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(d.dir, name), nil
}

// Put writes the file and fails if it already exists.
func (d *DiskBlobStore) Put(_ context.Context, name, _ string, data []byte) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(p)
		return err
	}
	return f.Close()
}

func (d *DiskBlobStore) Get(_ context.Context, name string) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

// Delete removes the file. A missing file is not an error.
func (d *DiskBlobStore) Delete(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *DiskBlobStore) URL(name string) string {
	return d.baseURL + "/uploads/" + name
}

// Ping checks that the directory is still there and writable.
func (d *DiskBlobStore) Ping(_ context.Context) error {
	f, err := os.CreateTemp(d.dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
