package objectstore

import (
	"fmt"
	"io"

	"crepo/internal/repo"
)

// EncryptedStore wraps another ObjectStore and encrypts content at rest.
//
// Addressing stays on the plaintext: the checksum and size reported by
// UploadTemp are computed over the plaintext stream, so deduplication and
// integrity semantics are unchanged while the inner store only ever sees
// ciphertext. Redirects are disabled because handed-out URLs would serve
// ciphertext.
type EncryptedStore struct {
	inner     repo.ObjectStore
	encryptor repo.Encryptor
	checksums repo.ChecksumEngine
}

// NewEncryptedStore wraps inner with at-rest encryption.
func NewEncryptedStore(inner repo.ObjectStore, encryptor repo.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, encryptor: encryptor}
}

// UploadTemp hashes and counts the plaintext while streaming ciphertext
// into the inner store, then reports the plaintext checksum and size.
func (s *EncryptedStore) UploadTemp(r io.Reader) (*repo.UploadInfo, error) {
	hasher := s.checksums.NewHash()
	counter := &countingReader{r: io.TeeReader(r, hasher)}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.encryptor.Encrypt(counter, pw))
	}()

	info, err := s.inner.UploadTemp(pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("uploading encrypted content: %w", err)
	}

	info.Checksum = fmt.Sprintf("%x", hasher.Sum(nil))
	info.Size = counter.n
	return info, nil
}

func (s *EncryptedStore) Exists(bucket, checksum string) (bool, error) {
	return s.inner.Exists(bucket, checksum)
}

func (s *EncryptedStore) Commit(bucket string, u *repo.UploadInfo) error {
	return s.inner.Commit(bucket, u)
}

// Open decrypts the stored ciphertext on the way out.
func (s *EncryptedStore) Open(bucket, checksum string) (io.ReadCloser, error) {
	inner, err := s.inner.Open(bucket, checksum)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		err := s.encryptor.Decrypt(inner, pw)
		inner.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (s *EncryptedStore) Delete(bucket, checksum string) error {
	return s.inner.Delete(bucket, checksum)
}

func (s *EncryptedStore) DeleteTemp(u *repo.UploadInfo) error {
	return s.inner.DeleteTemp(u)
}

func (s *EncryptedStore) CreateBucket(bucket string) error {
	return s.inner.CreateBucket(bucket)
}

func (s *EncryptedStore) DeleteBucket(bucket string) error {
	return s.inner.DeleteBucket(bucket)
}

func (s *EncryptedStore) HasRedirect() bool { return false }

func (s *EncryptedStore) RedirectURLs(bucket, checksum string) ([]string, error) {
	return nil, nil
}

func (s *EncryptedStore) ValidateSetup() error {
	return s.inner.ValidateSetup()
}

// Compile-time check that EncryptedStore implements repo.ObjectStore
var _ repo.ObjectStore = (*EncryptedStore)(nil)
