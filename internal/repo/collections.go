package repo

import (
	"sort"
	"time"

	"crepo/internal/model"
)

// InputMember references one member object for a collection being created.
// An empty VersionChecksum resolves to the latest USED version of the key.
type InputMember struct {
	Key             string
	VersionChecksum string
}

// CreateCollectionParams carries the inputs for CreateCollection.
type CreateCollectionParams struct {
	Key          string
	Bucket       string
	Tag          string
	Members      []InputMember
	Timestamp    *time.Time
	CreationDate *time.Time
}

// CollectionService orchestrates collection lifecycle: member resolution,
// composite checksums, and redundant-version detection.
type CollectionService struct {
	meta      MetadataStore
	checksums ChecksumEngine
	keyLocks  *BucketLockRegistry
	logger    Logger
	clock     Clock
}

// NewCollectionService creates a CollectionService. keyLocks should be the
// same registry the RepoService uses, so object and collection writers to
// the same bucket share one striping scheme.
func NewCollectionService(meta MetadataStore, keyLocks *BucketLockRegistry, logger Logger, clock Clock) *CollectionService {
	return &CollectionService{
		meta:     meta,
		keyLocks: keyLocks,
		logger:   logger,
		clock:    clock,
	}
}

// CreateCollection creates a new collection version from resolved member
// object versions. Member resolution is all-or-nothing: one unresolvable
// reference aborts the whole creation. When versioning, a member set
// identical to the latest version's (same keys, version checksums, and
// tag) returns the existing version instead of allocating a new one.
func (s *CollectionService) CreateCollection(method CreateMethod, p CreateCollectionParams) (*model.Collection, error) {
	if p.Key == "" {
		return nil, invalidInput("no collection key entered")
	}
	if p.Bucket == "" {
		return nil, invalidInput("no bucket entered")
	}
	if len(p.Members) == 0 {
		return nil, invalidInput("collection must reference at least one object")
	}

	lock := lockName("collection", p.Bucket, p.Key)
	s.keyLocks.Lock(lock)
	defer s.keyLocks.Unlock(lock)

	bucket, err := s.meta.GetBucket(p.Bucket)
	if err != nil {
		return nil, wrap(err, "looking up bucket")
	}
	if bucket == nil {
		return nil, notFound("bucket %q not found", p.Bucket)
	}

	members, err := s.resolveMembers(p.Bucket, p.Members)
	if err != nil {
		return nil, err
	}

	existing, err := s.meta.GetCollection(p.Bucket, p.Key)
	if err != nil {
		return nil, wrap(err, "looking up existing collection")
	}

	switch method {
	case MethodNew:
		if existing != nil {
			return nil, conflict("cannot create collection %q: key already exists", p.Key)
		}
	case MethodVersion:
		if existing == nil {
			return nil, notFound("cannot version collection %q: no original exists", p.Key)
		}
	case MethodAuto:
	default:
		return nil, invalidInput("invalid creation method")
	}

	if existing != nil && method != MethodNew && unchangedCollection(existing, members, p.Tag) {
		s.logger.Debug("collection unchanged, reusing existing version",
			"bucket", p.Bucket, "key", p.Key, "version", existing.VersionNumber)
		return existing, nil
	}

	ts, created := resolveTimes(s.clock, p.Timestamp, p.CreationDate)
	coll := &model.Collection{
		Key:          p.Key,
		BucketID:     bucket.ID,
		BucketName:   bucket.Name,
		Status:       model.StatusUsed,
		Tag:          p.Tag,
		Timestamp:    ts,
		CreationDate: created,
		Objects:      members,
	}

	memberChecksums := make([]string, len(members))
	for i, m := range members {
		memberChecksums[i] = m.VersionChecksum
	}

	tx, err := s.meta.Begin()
	if err != nil {
		return nil, wrap(err, "starting transaction")
	}
	version, err := tx.NextCollectionVersion(p.Bucket, p.Key)
	if err != nil {
		tx.Rollback()
		return nil, wrap(err, "allocating version number")
	}
	coll.VersionNumber = version
	coll.VersionChecksum = s.checksums.CollectionVersionChecksum(coll, memberChecksums)

	id, err := tx.InsertCollection(coll)
	if err != nil {
		tx.Rollback()
		return nil, wrap(err, "inserting collection version")
	}
	for i, m := range members {
		if err := tx.InsertCollectionMember(id, m.ID, i); err != nil {
			tx.Rollback()
			return nil, wrap(err, "inserting collection member")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(err, "committing collection version")
	}
	coll.ID = id

	s.logger.Info("collection version created",
		"bucket", p.Bucket, "key", p.Key,
		"version", coll.VersionNumber, "members", len(members))
	return coll, nil
}

// resolveMembers maps each input reference to a concrete object version
// row. References without a version checksum resolve to the latest USED
// version of the key.
func (s *CollectionService) resolveMembers(bucket string, refs []InputMember) ([]*model.Object, error) {
	members := make([]*model.Object, 0, len(refs))
	for _, ref := range refs {
		if ref.Key == "" {
			return nil, invalidInput("collection member without object key")
		}
		var obj *model.Object
		var err error
		if ref.VersionChecksum == "" {
			obj, err = s.meta.GetObject(bucket, ref.Key)
		} else {
			obj, err = s.meta.GetObjectWithFilter(bucket, ref.Key, &model.ElementFilter{VersionChecksum: ref.VersionChecksum})
		}
		if err != nil {
			return nil, wrap(err, "resolving collection member")
		}
		if obj == nil {
			return nil, notFound("member object %q not found in bucket %q", ref.Key, bucket)
		}
		members = append(members, obj)
	}
	return members, nil
}

// unchangedCollection reports whether the proposed member set and tag are
// identical to the existing latest version's. Both member lists are
// compared as canonical sorted sets of (key, version checksum) pairs; the
// sort makes the comparison order-insensitive and linear after O(n log n).
func unchangedCollection(existing *model.Collection, members []*model.Object, tag string) bool {
	if existing.Status != model.StatusUsed || existing.Tag != tag {
		return false
	}
	if len(existing.Objects) != len(members) {
		return false
	}
	a := memberSet(existing.Objects)
	b := memberSet(members)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func memberSet(objects []*model.Object) []string {
	set := make([]string, len(objects))
	for i, o := range objects {
		set[i] = o.Key + "\x00" + o.VersionChecksum
	}
	sort.Strings(set)
	return set
}

// GetCollection returns the collection version selected by the filter, or
// the latest USED version when the filter is empty.
func (s *CollectionService) GetCollection(bucket, key string, f *model.ElementFilter) (*model.Collection, error) {
	if key == "" {
		return nil, invalidInput("no collection key entered")
	}
	if bucket == "" {
		return nil, invalidInput("no bucket entered")
	}

	var coll *model.Collection
	var err error
	if f.IsEmpty() {
		coll, err = s.meta.GetCollection(bucket, key)
	} else {
		coll, err = s.meta.GetCollectionWithFilter(bucket, key, f)
	}
	if err != nil {
		return nil, wrap(err, "looking up collection")
	}
	if coll == nil {
		return nil, notFound("collection %q not found in bucket %q", key, bucket)
	}
	return coll, nil
}

// ListCollections returns a page of collection versions for a bucket.
func (s *CollectionService) ListCollections(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Collection, error) {
	if bucket == "" {
		return nil, invalidInput("no bucket entered")
	}
	offset, limit, err := validatePagination(offset, limit)
	if err != nil {
		return nil, err
	}
	b, err := s.meta.GetBucket(bucket)
	if err != nil {
		return nil, wrap(err, "looking up bucket")
	}
	if b == nil {
		return nil, notFound("bucket %q not found", bucket)
	}
	collections, err := s.meta.ListCollections(bucket, offset, limit, includeDeleted, tag)
	if err != nil {
		return nil, wrap(err, "listing collections")
	}
	return collections, nil
}

// GetCollectionVersions returns every version of (bucket, key), including
// soft-deleted ones, ordered by version number.
func (s *CollectionService) GetCollectionVersions(bucket, key string) ([]*model.Collection, error) {
	if key == "" {
		return nil, invalidInput("no collection key entered")
	}
	if bucket == "" {
		return nil, invalidInput("no bucket entered")
	}
	versions, err := s.meta.ListCollectionVersions(bucket, key)
	if err != nil {
		return nil, wrap(err, "listing collection versions")
	}
	if len(versions) == 0 {
		return nil, notFound("collection %q not found in bucket %q", key, bucket)
	}
	return versions, nil
}

// DeleteCollection soft-deletes exactly one collection version. A tag-only
// filter matching more than one live version is rejected as ambiguous
// rather than guessing.
func (s *CollectionService) DeleteCollection(bucket, key string, f *model.ElementFilter) error {
	if key == "" {
		return invalidInput("no collection key entered")
	}
	if bucket == "" {
		return invalidInput("no bucket entered")
	}
	if f.IsEmpty() {
		return invalidInput("no filter entered")
	}

	if f.TagOnly() {
		versions, err := s.meta.ListCollectionVersions(bucket, key)
		if err != nil {
			return wrap(err, "listing collection versions")
		}
		matches := 0
		for _, v := range versions {
			if v.Status == model.StatusUsed && v.Tag == f.Tag {
				matches++
			}
		}
		if matches > 1 {
			return ambiguous("more than one collection version matches tag %q", f.Tag)
		}
	}

	tx, err := s.meta.Begin()
	if err != nil {
		return wrap(err, "starting transaction")
	}
	rows, err := tx.MarkCollectionDeleted(bucket, key, f)
	if err != nil {
		tx.Rollback()
		return wrap(err, "marking collection deleted")
	}
	if rows == 0 {
		tx.Rollback()
		return notFound("collection %q not found in bucket %q", key, bucket)
	}
	if err := tx.Commit(); err != nil {
		return wrap(err, "committing collection delete")
	}

	s.logger.Info("collection version deleted", "bucket", bucket, "key", key)
	return nil
}
