// Package objectstore provides the content-addressed storage backends:
// local filesystem, in-memory, and S3.
package objectstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"crepo/internal/repo"
)

// FileSystemStore stores committed content at
//
//	<root>/<bucket>/<checksum[0:2]>/<checksum>
//
// The two-character sharding prefix bounds per-directory entry counts.
// Temp uploads live under <root>/tmp until committed.
//
// When a reproxy base URL is configured the store can hand out direct
// download URLs instead of streaming content through the service.
type FileSystemStore struct {
	root           string
	tmpDir         string
	reproxyBaseURL string
	checksums      repo.ChecksumEngine
}

// NewFileSystemStore creates a filesystem store rooted at the given path.
// reproxyBaseURL may be empty, disabling redirects.
func NewFileSystemStore(root, reproxyBaseURL string) (*FileSystemStore, error) {
	tmpDir := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directories: %w", err)
	}
	return &FileSystemStore{root: root, tmpDir: tmpDir, reproxyBaseURL: reproxyBaseURL}, nil
}

func (s *FileSystemStore) bucketPath(bucket string) string {
	return filepath.Join(s.root, bucket)
}

func (s *FileSystemStore) objectPath(bucket, checksum string) string {
	return filepath.Join(s.root, bucket, checksum[:2], checksum)
}

// UploadTemp streams r into a temp file, computing the content checksum on
// the way. The payload is never buffered in memory.
//
// Pattern: temp file, write through the digest, fsync, then an atomic
// rename at commit time. The temp file is removed on error.
func (s *FileSystemStore) UploadTemp(r io.Reader) (*repo.UploadInfo, error) {
	tmpPath := filepath.Join(s.tmpDir, uuid.New().String()+".tmp")

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	hasher := s.checksums.NewHash()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("syncing upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing upload: %w", err)
	}

	return &repo.UploadInfo{
		TempRef:  tmpPath,
		Checksum: fmt.Sprintf("%x", hasher.Sum(nil)),
		Size:     size,
	}, nil
}

// Exists reports whether committed bytes for checksum are present.
func (s *FileSystemStore) Exists(bucket, checksum string) (bool, error) {
	_, err := os.Stat(s.objectPath(bucket, checksum))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking object: %w", err)
}

// Commit atomically renames the temp file into its checksum address. If
// the target already exists the temp file is discarded and the call
// succeeds — the bytes are identical by construction.
func (s *FileSystemStore) Commit(bucket string, u *repo.UploadInfo) error {
	dest := s.objectPath(bucket, u.Checksum)
	if _, err := os.Stat(dest); err == nil {
		return os.Remove(u.TempRef)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}
	if err := os.Rename(u.TempRef, dest); err != nil {
		return fmt.Errorf("committing object: %w", err)
	}
	return nil
}

// Open returns the committed bytes for checksum.
func (s *FileSystemStore) Open(bucket, checksum string) (io.ReadCloser, error) {
	f, err := os.Open(s.objectPath(bucket, checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content not found: %s/%s", bucket, checksum)
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return f, nil
}

// Delete removes committed bytes and prunes the shard directory when it
// becomes empty. Returns nil if the bytes are already gone.
func (s *FileSystemStore) Delete(bucket, checksum string) error {
	path := s.objectPath(bucket, checksum)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("deleting object: %w", err)
	}
	// Prune the shard directory; failure here is harmless.
	os.Remove(filepath.Dir(path))
	return nil
}

// DeleteTemp removes an uncommitted temp file.
func (s *FileSystemStore) DeleteTemp(u *repo.UploadInfo) error {
	err := os.Remove(u.TempRef)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting temp upload: %w", err)
	}
	return nil
}

// CreateBucket creates the bucket directory.
func (s *FileSystemStore) CreateBucket(bucket string) error {
	if err := os.MkdirAll(s.bucketPath(bucket), 0o750); err != nil {
		return fmt.Errorf("creating bucket directory: %w", err)
	}
	return nil
}

// DeleteBucket removes the bucket directory. Fails while the directory
// still contains committed content.
func (s *FileSystemStore) DeleteBucket(bucket string) error {
	err := os.Remove(s.bucketPath(bucket))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting bucket directory: %w", err)
	}
	return nil
}

// HasRedirect reports whether a reproxy base URL is configured.
func (s *FileSystemStore) HasRedirect() bool {
	return s.reproxyBaseURL != ""
}

// RedirectURLs returns the reproxy URL for the committed bytes.
func (s *FileSystemStore) RedirectURLs(bucket, checksum string) ([]string, error) {
	if !s.HasRedirect() {
		return nil, nil
	}
	return []string{fmt.Sprintf("%s/%s/%s/%s", s.reproxyBaseURL, bucket, checksum[:2], checksum)}, nil
}

// ValidateSetup verifies the store directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, s.tmpDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", dir)
		}
	}
	return nil
}

// Compile-time check that FileSystemStore implements repo.ObjectStore
var _ repo.ObjectStore = (*FileSystemStore)(nil)
