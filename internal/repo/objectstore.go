package repo

import "io"

// UploadInfo describes a byte stream persisted to a temporary location.
// The checksum and size are computed while streaming; the payload is never
// buffered in memory. TempRef is backend-specific (a file path, an in-memory
// handle, or a remote temp key).
type UploadInfo struct {
	TempRef  string
	Checksum string
	Size     int64
}

// ObjectStore is content-addressed byte storage. Backends store bytes under
// (bucket, checksum); a given checksum's bytes never change after first
// commit, so concurrent readers are always safe.
//
// All operations must be idempotent or safely retryable given the
// checksum-addressed naming scheme.
type ObjectStore interface {
	// UploadTemp consumes r exactly once, streaming it through the content
	// digest into a temporary location.
	UploadTemp(r io.Reader) (*UploadInfo, error)

	// Exists reports whether bytes for checksum are already committed in
	// the bucket. This is the dedup check.
	Exists(bucket, checksum string) (bool, error)

	// Commit atomically moves the temp payload into its checksum-addressed
	// final location. Safe to call when the target already exists: the temp
	// payload is discarded and the call succeeds.
	Commit(bucket string, u *UploadInfo) error

	// Open returns the committed bytes for checksum. The caller must close
	// the returned ReadCloser.
	Open(bucket, checksum string) (io.ReadCloser, error)

	// Delete removes committed bytes. Best-effort; used only for
	// administrative cleanup, never called automatically on a logical
	// version delete.
	Delete(bucket, checksum string) error

	// DeleteTemp removes an uncommitted temp payload. Returns nil if the
	// payload is already gone.
	DeleteTemp(u *UploadInfo) error

	// CreateBucket creates the physical container for a bucket.
	CreateBucket(bucket string) error

	// DeleteBucket removes the physical container. Fails unless the
	// container is empty.
	DeleteBucket(bucket string) error

	// HasRedirect reports whether this backend can serve content through
	// external URLs instead of streaming it through the service. Queried
	// once per backend instance.
	HasRedirect() bool

	// RedirectURLs returns external URLs for the committed bytes, or an
	// empty slice when the backend does not support redirects.
	RedirectURLs(bucket, checksum string) ([]string, error)

	// ValidateSetup verifies the store is accessible and properly configured.
	ValidateSetup() error
}
