package objectstore

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"crepo/internal/repo"
)

// MemoryStore is an in-memory implementation of the ObjectStore interface,
// useful for tests. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte // bucket -> checksum -> content
	temps   map[string][]byte            // temp ref -> content
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string][]byte),
		temps:   make(map[string][]byte),
	}
}

func (s *MemoryStore) UploadTemp(r io.Reader) (*repo.UploadInfo, error) {
	var checksums repo.ChecksumEngine
	hasher := checksums.NewHash()

	var buf bytes.Buffer
	size, err := io.Copy(io.MultiWriter(&buf, hasher), r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	ref := uuid.New().String()
	s.mu.Lock()
	s.temps[ref] = buf.Bytes()
	s.mu.Unlock()

	return &repo.UploadInfo{
		TempRef:  ref,
		Checksum: fmt.Sprintf("%x", hasher.Sum(nil)),
		Size:     size,
	}, nil
}

func (s *MemoryStore) Exists(bucket, checksum string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[bucket][checksum]
	return ok, nil
}

func (s *MemoryStore) Commit(bucket string, u *repo.UploadInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.temps[u.TempRef]
	if !ok {
		return fmt.Errorf("temp upload not found: %s", u.TempRef)
	}
	delete(s.temps, u.TempRef)

	b, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket not found: %s", bucket)
	}
	// Idempotent: identical bytes by construction when the checksum matches.
	b[u.Checksum] = data
	return nil
}

func (s *MemoryStore) Open(bucket, checksum string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.buckets[bucket][checksum]
	if !ok {
		return nil, fmt.Errorf("content not found: %s/%s", bucket, checksum)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(bucket, checksum string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], checksum)
	return nil
}

func (s *MemoryStore) DeleteTemp(u *repo.UploadInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.temps, u.TempRef)
	return nil
}

func (s *MemoryStore) CreateBucket(bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (s *MemoryStore) DeleteBucket(bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buckets[bucket]) > 0 {
		return fmt.Errorf("bucket not empty: %s", bucket)
	}
	delete(s.buckets, bucket)
	return nil
}

func (s *MemoryStore) HasRedirect() bool { return false }

func (s *MemoryStore) RedirectURLs(bucket, checksum string) ([]string, error) {
	return nil, nil
}

func (s *MemoryStore) ValidateSetup() error { return nil }

// Compile-time check that MemoryStore implements repo.ObjectStore
var _ repo.ObjectStore = (*MemoryStore)(nil)
