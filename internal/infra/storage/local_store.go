package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"market-genome/internal/domain"
	"market-genome/internal/domain/ports/adapter"
)

var _ adapter.ArtifactStore = (*LocalStore)(nil)

// LocalStore writes artifacts below a directory and serves them from
// <baseURL>/files/<key>.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("local storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the root served under /files.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Put(ctx context.Context, key string, content []byte, _ string) (adapter.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return adapter.StoredObject{}, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return adapter.StoredObject{}, err
	}
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return adapter.StoredObject{}, err
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return adapter.StoredObject{}, err
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return adapter.StoredObject{}, err
	}
	return adapter.StoredObject{Key: key, URL: s.baseURL + "/files/" + key, Size: int64(len(content))}, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	key, err := cleanKey(key)
	if err != nil {
		return nil, "", err
	}
	b, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return b, ct, nil
}

// cleanKey rejects keys that escape the store root.
func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", fmt.Errorf("%w: empty key", domain.ErrInvalidArgument)
	}
	c := path.Clean(k)
	if c != k || strings.HasPrefix(c, "../") || c == ".." {
		return "", fmt.Errorf("%w: bad key %q", domain.ErrInvalidArgument, key)
	}
	return c, nil
}
