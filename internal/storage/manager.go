package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ada-analyst/console/internal/models"
)

// ErrNotFound is returned for an unknown file id.
var ErrNotFound = errors.New("file not found")

// Store keeps files saved on behalf of console sessions: exported chart
// images and report copies.
type Store interface {
	Save(owner, name, contentType string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(owner string, limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	DeleteOwner(owner string) int
	GetFilePath(id string) (string, error)
	Open(id string) (io.ReadCloser, *models.FileInfo, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu    sync.RWMutex
	dir   string
	files map[string]*models.FileInfo
	nowFn func() time.Time
}

// NewLocalStore creates a new LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	return &LocalStore{
		dir:   dir,
		files: make(map[string]*models.FileInfo),
		nowFn: time.Now,
	}, nil
}

// Save writes r to a new file and records it under owner.
func (s *LocalStore) Save(owner, name, contentType string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:          id,
		Name:        filepath.Base(name),
		Size:        size,
		ContentType: contentType,
		UploadedAt:  s.nowFn(),
		Owner:       owner,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// List returns the most recent files of owner. An empty owner lists every
// file.
func (s *LocalStore) List(owner string, limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.FileInfo
	for _, info := range s.files {
		if owner == "" || info.Owner == owner {
			list = append(list, info)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.remove(id)
}

// DeleteOwner removes every file of owner and returns how many were removed.
func (s *LocalStore) DeleteOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, info := range s.files {
		if info.Owner != owner {
			continue
		}
		if s.remove(id) == nil {
			n++
		}
	}
	return n
}

// remove must be called with mu held.
func (s *LocalStore) remove(id string) error {
	path := filepath.Join(s.dir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	delete(s.files, id)
	return nil
}

// GetFilePath returns the path of a stored file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return filepath.Join(s.dir, id), nil
}

// Open opens a stored file for reading.
func (s *LocalStore) Open(id string) (io.ReadCloser, *models.FileInfo, error) {
	info, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, id))
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	return f, info, nil
}
