package repo

import (
	"io"
	"time"

	"crepo/internal/model"
)

// DefaultContentType is recorded when an upload does not declare one.
const DefaultContentType = "application/octet-stream"

// CreateObjectParams carries the inputs for CreateObject. Content may be
// nil when versioning an existing object's metadata without new bytes.
// Timestamp and CreationDate are optional caller-supplied times for
// migration scenarios; both default to the service clock.
type CreateObjectParams struct {
	Key          string
	Bucket       string
	ContentType  string
	DownloadName string
	Tag          string
	Content      io.Reader
	Timestamp    *time.Time
	CreationDate *time.Time
}

// CreateObject creates a new object version.
//
// The byte flow favors "bytes always recoverable if metadata says so":
// content is streamed to a temp location (computing the checksum on the
// way), deduplicated against already-committed bytes, and committed to its
// checksum address before the metadata row is written. If the metadata
// transaction then fails, the committed bytes are orphaned but harmless —
// content addressing makes them reusable by any later upload.
func (s *RepoService) CreateObject(method CreateMethod, p CreateObjectParams) (*model.Object, error) {
	if p.Key == "" {
		return nil, invalidInput("no object key entered")
	}
	if p.Bucket == "" {
		return nil, invalidInput("no bucket entered")
	}

	// Serialize concurrent writers to the same key so version numbers stay
	// gap-free regardless of the metadata store's isolation level.
	lock := lockName("object", p.Bucket, p.Key)
	s.keyLocks.Lock(lock)
	defer s.keyLocks.Unlock(lock)

	bucket, err := s.meta.GetBucket(p.Bucket)
	if err != nil {
		return nil, wrap(err, "looking up bucket")
	}
	if bucket == nil {
		return nil, notFound("bucket %q not found", p.Bucket)
	}

	existing, err := s.meta.GetObject(p.Bucket, p.Key)
	if err != nil {
		return nil, wrap(err, "looking up existing object")
	}

	switch method {
	case MethodNew:
		if existing != nil {
			return nil, conflict("cannot create object %q: key already exists", p.Key)
		}
	case MethodVersion:
		if existing == nil {
			return nil, notFound("cannot version object %q: no original exists", p.Key)
		}
	case MethodAuto:
	default:
		return nil, invalidInput("invalid creation method")
	}

	ts, created := resolveTimes(s.clock, p.Timestamp, p.CreationDate)
	obj := &model.Object{
		Key:          p.Key,
		BucketID:     bucket.ID,
		BucketName:   bucket.Name,
		ContentType:  p.ContentType,
		DownloadName: p.DownloadName,
		Tag:          p.Tag,
		Status:       model.StatusUsed,
		Timestamp:    ts,
		CreationDate: created,
	}

	var upload *UploadInfo
	tempConsumed := false
	defer func() {
		if upload != nil && !tempConsumed {
			if derr := s.store.DeleteTemp(upload); derr != nil {
				s.logger.Warn("could not clean up temp upload", "error", derr)
			}
		}
	}()

	if p.Content != nil {
		upload, err = s.store.UploadTemp(p.Content)
		if err != nil {
			return nil, serverError("uploading content", err)
		}
		if upload.Size == 0 {
			return nil, invalidInput("object data must be non-empty")
		}
		obj.Checksum = upload.Checksum
		obj.Size = upload.Size
		if obj.ContentType == "" {
			obj.ContentType = DefaultContentType
		}
	} else {
		if existing == nil {
			return nil, preconditionFailed("no content supplied for new object %q", p.Key)
		}
		// Metadata-only version: reuse the latest version's bytes and fill
		// unspecified content metadata from it.
		obj.Checksum = existing.Checksum
		obj.Size = existing.Size
		if obj.ContentType == "" {
			obj.ContentType = existing.ContentType
		}
		if obj.DownloadName == "" {
			obj.DownloadName = existing.DownloadName
		}
	}

	// A version identical to the latest one would be redundant; return the
	// existing version instead of allocating a new number.
	if existing != nil && method != MethodNew && existing.Similar(obj) {
		s.logger.Debug("object version unchanged, reusing existing",
			"bucket", p.Bucket, "key", p.Key, "version", existing.VersionNumber)
		return existing, nil
	}

	if upload != nil {
		committed, err := s.store.Exists(p.Bucket, upload.Checksum)
		if err != nil {
			return nil, serverError("checking for existing content", err)
		}
		if committed {
			// Dedup: identical bytes are already stored; discard the temp.
			tempConsumed = true
			if derr := s.store.DeleteTemp(upload); derr != nil {
				s.logger.Warn("could not clean up deduplicated temp upload", "error", derr)
			}
			s.logger.Debug("content deduplicated", "bucket", p.Bucket, "checksum", upload.Checksum)
		} else {
			if err := s.store.Commit(p.Bucket, upload); err != nil {
				return nil, serverError("committing content", err)
			}
			tempConsumed = true
		}
	}

	tx, err := s.meta.Begin()
	if err != nil {
		return nil, wrap(err, "starting transaction")
	}
	version, err := tx.NextObjectVersion(p.Bucket, p.Key)
	if err != nil {
		tx.Rollback()
		return nil, wrap(err, "allocating version number")
	}
	obj.VersionNumber = version
	obj.VersionChecksum = s.checksums.ObjectVersionChecksum(obj)

	id, err := tx.InsertObject(obj)
	if err != nil {
		tx.Rollback()
		return nil, wrap(err, "inserting object version")
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(err, "committing object version")
	}
	obj.ID = id

	s.logger.Info("object version created",
		"bucket", p.Bucket, "key", p.Key,
		"version", obj.VersionNumber, "checksum", obj.Checksum, "size", obj.Size)
	return obj, nil
}

// GetObject returns the object version selected by the filter, or the
// latest USED version when the filter is empty.
func (s *RepoService) GetObject(bucket, key string, f *model.ElementFilter) (*model.Object, error) {
	if key == "" {
		return nil, invalidInput("no object key entered")
	}
	if bucket == "" {
		return nil, invalidInput("no bucket entered")
	}

	var obj *model.Object
	var err error
	if f.IsEmpty() {
		obj, err = s.meta.GetObject(bucket, key)
	} else {
		obj, err = s.meta.GetObjectWithFilter(bucket, key, f)
	}
	if err != nil {
		return nil, wrap(err, "looking up object")
	}
	if obj == nil {
		return nil, notFound("object %q not found in bucket %q", key, bucket)
	}
	return obj, nil
}

// GetObjectContent opens the committed bytes for an object version. A USED
// version whose bytes are missing is an integrity failure, not a NotFound.
func (s *RepoService) GetObjectContent(obj *model.Object) (io.ReadCloser, error) {
	rc, err := s.store.Open(obj.BucketName, obj.Checksum)
	if err != nil {
		return nil, serverError("opening object content", err)
	}
	return rc, nil
}

// GetRedirectURLs returns external URLs for an object's content, or an
// empty slice when the backend cannot serve redirects.
func (s *RepoService) GetRedirectURLs(obj *model.Object) ([]string, error) {
	if !s.hasRedirect {
		return nil, nil
	}
	urls, err := s.store.RedirectURLs(obj.BucketName, obj.Checksum)
	if err != nil {
		return nil, serverError("resolving redirect URLs", err)
	}
	return urls, nil
}

// ListObjects returns a page of object versions. bucket may be empty to
// list across all buckets. A zero limit selects the default page size.
func (s *RepoService) ListObjects(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Object, error) {
	offset, limit, err := validatePagination(offset, limit)
	if err != nil {
		return nil, err
	}
	if bucket != "" {
		b, err := s.meta.GetBucket(bucket)
		if err != nil {
			return nil, wrap(err, "looking up bucket")
		}
		if b == nil {
			return nil, notFound("bucket %q not found", bucket)
		}
	}
	objects, err := s.meta.ListObjects(bucket, offset, limit, includeDeleted, tag)
	if err != nil {
		return nil, wrap(err, "listing objects")
	}
	return objects, nil
}

// GetObjectVersions returns every version of (bucket, key), including
// soft-deleted ones, ordered by version number.
func (s *RepoService) GetObjectVersions(bucket, key string) ([]*model.Object, error) {
	if key == "" {
		return nil, invalidInput("no object key entered")
	}
	if bucket == "" {
		return nil, invalidInput("no bucket entered")
	}
	versions, err := s.meta.ListObjectVersions(bucket, key)
	if err != nil {
		return nil, wrap(err, "listing object versions")
	}
	if len(versions) == 0 {
		return nil, notFound("object %q not found in bucket %q", key, bucket)
	}
	return versions, nil
}

// DeleteObject soft-deletes exactly one object version. The filter must
// identify a single version; a tag-only filter matching several versions
// is rejected as ambiguous. Bytes in the object store are never touched —
// other versions may share the checksum.
func (s *RepoService) DeleteObject(bucket, key string, f *model.ElementFilter) error {
	if key == "" {
		return invalidInput("no object key entered")
	}
	if bucket == "" {
		return invalidInput("no bucket entered")
	}
	if f.IsEmpty() {
		return invalidInput("no filter entered")
	}

	if f.TagOnly() {
		versions, err := s.meta.ListObjectVersions(bucket, key)
		if err != nil {
			return wrap(err, "listing object versions")
		}
		matches := 0
		for _, v := range versions {
			if v.Status == model.StatusUsed && v.Tag == f.Tag {
				matches++
			}
		}
		if matches > 1 {
			return ambiguous("more than one object version matches tag %q", f.Tag)
		}
	}

	tx, err := s.meta.Begin()
	if err != nil {
		return wrap(err, "starting transaction")
	}
	rows, err := tx.MarkObjectDeleted(bucket, key, f)
	if err != nil {
		tx.Rollback()
		return wrap(err, "marking object deleted")
	}
	if rows == 0 {
		tx.Rollback()
		return notFound("object %q not found in bucket %q", key, bucket)
	}
	if err := tx.Commit(); err != nil {
		return wrap(err, "committing object delete")
	}

	s.logger.Info("object version deleted", "bucket", bucket, "key", key)
	return nil
}
