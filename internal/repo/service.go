// Package repo is the core of the content repository: the service layer
// that orchestrates object and collection lifecycles across a content-
// addressed ObjectStore and a versioned MetadataStore.
package repo

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"crepo/internal/model"
)

// CreateMethod controls whether a create call must start a fresh key, must
// extend an existing one, or infers which.
type CreateMethod int

const (
	MethodNew CreateMethod = iota
	MethodVersion
	MethodAuto
)

// ParseCreateMethod parses "new", "version", or "auto" (case-insensitive).
func ParseCreateMethod(s string) (CreateMethod, error) {
	switch strings.ToLower(s) {
	case "new":
		return MethodNew, nil
	case "version":
		return MethodVersion, nil
	case "auto":
		return MethodAuto, nil
	case "":
		return 0, invalidInput("no creation method entered")
	default:
		return 0, invalidInput("invalid creation method %q", s)
	}
}

// Pagination bounds for list operations.
const (
	DefaultPageSize = 1000
	MaxPageSize     = 10000
)

// Bucket names must be filesystem-safe: they become directory names in the
// filesystem backend and key prefixes in remote backends.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// RepoService orchestrates bucket and object lifecycle: creation and
// versioning with dedup, soft deletion, and read-path resolution.
type RepoService struct {
	store       ObjectStore
	meta        MetadataStore
	checksums   ChecksumEngine
	bucketLocks *BucketLockRegistry
	keyLocks    *BucketLockRegistry
	hasRedirect bool
	logger      Logger
	clock       Clock
}

// NewRepoService creates a RepoService. bucketLocks serializes bucket
// lifecycle operations; keyLocks serializes concurrent writers to the same
// (bucket, key). The store's redirect capability is queried once here.
func NewRepoService(store ObjectStore, meta MetadataStore, bucketLocks, keyLocks *BucketLockRegistry, logger Logger, clock Clock) *RepoService {
	return &RepoService{
		store:       store,
		meta:        meta,
		bucketLocks: bucketLocks,
		keyLocks:    keyLocks,
		hasRedirect: store.HasRedirect(),
		logger:      logger,
		clock:       clock,
	}
}

// CreateBucket creates a new bucket in both the object store and the
// metadata store. Concurrent calls for the same name resolve
// deterministically under the bucket lock: one succeeds, the rest observe
// the existing bucket and fail with a conflict.
func (s *RepoService) CreateBucket(name string, creationDate *time.Time) (*model.Bucket, error) {
	if name == "" {
		return nil, invalidInput("no bucket entered")
	}
	if !bucketNamePattern.MatchString(name) {
		return nil, invalidInput("bucket name %q contains illegal characters", name)
	}

	s.bucketLocks.Lock(name)
	defer s.bucketLocks.Unlock(name)

	existing, err := s.meta.GetBucket(name)
	if err != nil {
		return nil, wrap(err, "checking for existing bucket")
	}
	if existing != nil {
		return nil, conflict("bucket %q already exists", name)
	}

	now := s.clock.Now().UTC()
	created := now
	if creationDate != nil {
		created = creationDate.UTC()
	}
	bucket := &model.Bucket{Name: name, Timestamp: now, CreationDate: created}

	if err := s.store.CreateBucket(name); err != nil {
		return nil, serverError("creating bucket in object store", err)
	}

	tx, err := s.meta.Begin()
	if err != nil {
		return nil, wrap(err, "starting transaction")
	}
	id, err := tx.InsertBucket(bucket)
	if err != nil {
		tx.Rollback()
		if derr := s.store.DeleteBucket(name); derr != nil {
			s.logger.Warn("could not remove bucket from object store after failed insert",
				"bucket", name, "error", derr)
		}
		return nil, wrap(err, "inserting bucket")
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(err, "committing bucket")
	}
	bucket.ID = id

	s.logger.Info("bucket created", "bucket", name)
	return bucket, nil
}

// DeleteBucket removes an empty bucket. It fails with a precondition error
// while any object or collection version row, live or soft-deleted, still
// references the bucket.
func (s *RepoService) DeleteBucket(name string) error {
	if name == "" {
		return invalidInput("no bucket entered")
	}

	s.bucketLocks.Lock(name)
	defer s.bucketLocks.Unlock(name)

	bucket, err := s.meta.GetBucket(name)
	if err != nil {
		return wrap(err, "looking up bucket")
	}
	if bucket == nil {
		return notFound("bucket %q not found", name)
	}

	usage, err := s.meta.BucketUsage(name)
	if err != nil {
		return wrap(err, "checking bucket usage")
	}
	if usage.TotalObjects > 0 || usage.TotalCollections > 0 {
		return preconditionFailed("bucket %q is not empty", name)
	}

	tx, err := s.meta.Begin()
	if err != nil {
		return wrap(err, "starting transaction")
	}
	rows, err := tx.DeleteBucket(name)
	if err != nil {
		tx.Rollback()
		return wrap(err, "deleting bucket")
	}
	if rows == 0 {
		tx.Rollback()
		return notFound("bucket %q not found", name)
	}
	if err := s.store.DeleteBucket(name); err != nil {
		tx.Rollback()
		return serverError("deleting bucket from object store", err)
	}
	if err := tx.Commit(); err != nil {
		return wrap(err, "committing bucket delete")
	}

	s.logger.Info("bucket deleted", "bucket", name)
	return nil
}

// ListBuckets returns all buckets.
func (s *RepoService) ListBuckets() ([]*model.Bucket, error) {
	buckets, err := s.meta.ListBuckets()
	if err != nil {
		return nil, wrap(err, "listing buckets")
	}
	return buckets, nil
}

// GetBucketInfo returns a bucket and its active/total usage counts.
func (s *RepoService) GetBucketInfo(name string) (*model.Bucket, *model.BucketUsage, error) {
	if name == "" {
		return nil, nil, invalidInput("no bucket entered")
	}
	bucket, err := s.meta.GetBucket(name)
	if err != nil {
		return nil, nil, wrap(err, "looking up bucket")
	}
	if bucket == nil {
		return nil, nil, notFound("bucket %q not found", name)
	}
	usage, err := s.meta.BucketUsage(name)
	if err != nil {
		return nil, nil, wrap(err, "checking bucket usage")
	}
	return bucket, usage, nil
}

// validatePagination applies defaults and bounds-checks offset and limit.
// A zero limit selects the default page size.
func validatePagination(offset, limit int) (int, int, error) {
	if offset < 0 {
		return 0, 0, invalidInput("invalid offset %d", offset)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 0 || limit > MaxPageSize {
		return 0, 0, invalidInput("invalid limit %d", limit)
	}
	return offset, limit, nil
}

// resolveTimes applies the caller-supplied timestamps or defaults both to
// the clock. Historical timestamps are trusted input (data migration);
// only parseability is validated, at the boundary that parses them.
func resolveTimes(clock Clock, timestamp, creationDate *time.Time) (ts, created time.Time) {
	now := clock.Now().UTC()
	created = now
	if creationDate != nil {
		created = creationDate.UTC()
	}
	ts = created
	if timestamp != nil {
		ts = timestamp.UTC()
	}
	return ts, created
}

// wrap passes typed repository errors through unchanged and wraps anything
// else as a server error.
func wrap(err error, msg string) error {
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return serverError(msg, err)
}

// lockName builds the key-lock name for a namespaced entity, keeping
// object and collection keys from contending with each other.
func lockName(kind, bucket, key string) string {
	return kind + "\x00" + bucket + "\x00" + key
}
