// Package local stores objects as files under a base directory and registers
// the "fs" provider.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/storage"
	"github.com/kbukum/flowkit/validation"
)

// ProviderID is the registry id of the local directory provider.
const ProviderID = "fs"

// Storage implements storage.Storage using the local filesystem. Keys are
// slash-separated paths relative to the base directory.
type Storage struct {
	basePath string
}

// NewStorage creates a new local filesystem storage.
func NewStorage(basePath string) (*Storage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// resolve maps a key to a path inside the base directory.
func (s *Storage) resolve(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", errors.Permanent("resolve "+key, fmt.Errorf("key escapes the base directory"))
	}
	return filepath.Join(s.basePath, rel), nil
}

// Upload writes data from reader to a local file. The file is written next
// to its destination and renamed into place.
func (s *Storage) Upload(_ context.Context, key string, reader io.Reader, _ string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return errors.Permanent("create directory for "+key, err)
	}
	f, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return errors.Permanent("create file for "+key, err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Transient("write "+key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Transient("write "+key, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return errors.Permanent("rename "+key, err)
	}
	return nil
}

// Download returns a reader for the local file at the given key.
func (s *Storage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("file", key)
		}
		return nil, errors.Permanent("open "+key, err)
	}
	return f, nil
}

// List walks the base directory and returns the requested page. Hidden
// upload temp files are skipped.
func (s *Storage) List(_ context.Context, opts storage.ListOptions) ([]storage.FileInfo, error) {
	var files []storage.FileInfo
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, opts.Prefix) || key <= opts.StartAfter {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, storage.FileInfo{
			Path:         key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  mime.TypeByExtension(filepath.Ext(p)),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Permanent("list "+s.basePath, err)
	}
	slices.SortFunc(files, func(a, b storage.FileInfo) int { return strings.Compare(a.Path, b.Path) })
	if opts.MaxKeys > 0 && len(files) > opts.MaxKeys {
		files = files[:opts.MaxKeys]
	}
	return files, nil
}

type params struct {
	storage.ObjectParams `json:",squash"`
	Dir                  string `json:"dir" validate:"required"`
}

// Factory is the provider.Factory for "fs".
func Factory(_ context.Context, _ provider.Credentials, raw map[string]any) (provider.Provider, error) {
	var p params
	if err := validation.Decode(raw, &p); err != nil {
		return nil, err
	}
	s, err := NewStorage(p.Dir)
	if err != nil {
		return nil, errors.InvalidParams(err.Error()).WithCause(err)
	}
	return storage.NewProvider(ProviderID, s, p.ObjectParams), nil
}

// RegisterProviders adds the local directory provider to reg.
func RegisterProviders(reg *provider.Registry) {
	reg.Register(ProviderID, Factory)
}

// compile-time check
var _ storage.Storage = (*Storage)(nil)
