package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// tmpSuffix marks documents that are still being written.
const tmpSuffix = ".tmp"

// LocalStorage keeps documents as files under a base directory. It serves
// development and single-node deployments.
type LocalStorage struct {
	root string

	// Conditional writes compare and replace under one lock per path.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, uploadFailed(root, err)
	}
	return &LocalStorage{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

// Put writes data to objectPath.
func (l *LocalStorage) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	unlock := l.lock(objectPath)
	defer unlock()
	return l.replace(objectPath, data)
}

// ConditionalPut writes data only if the document's current ETag is etag.
func (l *LocalStorage) ConditionalPut(ctx context.Context, objectPath string, data []byte, etag string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	unlock := l.lock(objectPath)
	defer unlock()

	current, err := os.ReadFile(l.filePath(objectPath))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if etag != "" {
			return "", ErrPreconditionFailed
		}
	case err != nil:
		return "", downloadFailed(objectPath, err)
	case etag != etagOf(current):
		return "", ErrPreconditionFailed
	}
	return l.replace(objectPath, data)
}

// Get reads the document at objectPath.
func (l *LocalStorage) Get(ctx context.Context, objectPath string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(l.filePath(objectPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrObjectNotFound
	}
	if err != nil {
		return nil, "", downloadFailed(objectPath, err)
	}
	return data, etagOf(data), nil
}

// List walks the directory for prefix. A missing prefix yields no paths.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var paths []string
	err := filepath.WalkDir(l.filePath(prefix), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, tmpSuffix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, downloadFailed(prefix, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// replace swaps the file in with a rename so readers never see a partial
// document.
func (l *LocalStorage) replace(objectPath string, data []byte) (string, error) {
	dest := l.filePath(objectPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", uploadFailed(objectPath, err)
	}
	tmp := dest + tmpSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", uploadFailed(objectPath, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", uploadFailed(objectPath, err)
	}
	return etagOf(data), nil
}

func (l *LocalStorage) lock(objectPath string) func() {
	l.mu.Lock()
	m, ok := l.locks[objectPath]
	if !ok {
		m = &sync.Mutex{}
		l.locks[objectPath] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (l *LocalStorage) filePath(objectPath string) string {
	return filepath.Join(l.root, filepath.FromSlash(objectPath))
}

// etagOf mirrors S3's ETag for single-part uploads.
func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
