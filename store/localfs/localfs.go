// Package localfs is a filesystem-backed ObjectStore used for local runs and
// integration tests. Object keys map to file paths under a root directory;
// metadata lives in a JSON sidecar next to each object.
package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
)

const metaSuffix = ".meta.json"

// Store persists objects under root. Writes go through a temp file plus
// rename so a crashed writer never leaves a half-written object visible.
type Store struct {
	root string
}

// New constructs a filesystem store rooted at root. The directory is created
// if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	var infos []store.ObjectInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, store.ObjectInfo{Key: key, LastModified: fi.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, store.Metadata, error) {
	body, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	meta, err := s.readMeta(key)
	if err != nil {
		return nil, nil, err
	}
	return body, meta, nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, meta store.Metadata) error {
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := writeAtomic(path, body); err != nil {
		return err
	}
	if len(meta) == 0 {
		err := os.Remove(path + metaSuffix)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return writeAtomic(path+metaSuffix, encoded)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	path := s.pathFor(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(path + metaSuffix); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) readMeta(key string) (store.Metadata, error) {
	encoded, err := os.ReadFile(s.pathFor(key) + metaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta store.Metadata
	if err := json.Unmarshal(encoded, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
