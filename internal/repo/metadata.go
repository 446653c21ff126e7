package repo

import "crepo/internal/model"

// MetadataStore is the durable record of buckets, object versions, and
// collection versions. Read methods return (nil, nil) when no row matches;
// the service layer converts absence into typed NotFound errors.
//
// All mutations go through a Tx so that multi-step writes (a version row
// plus its member rows) commit or roll back as a unit.
type MetadataStore interface {
	// Bucket reads
	GetBucket(name string) (*model.Bucket, error)
	ListBuckets() ([]*model.Bucket, error)
	BucketUsage(name string) (*model.BucketUsage, error)

	// Object reads
	GetObject(bucket, key string) (*model.Object, error) // latest USED version
	GetObjectWithFilter(bucket, key string, f *model.ElementFilter) (*model.Object, error)
	ListObjects(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Object, error)
	ListObjectVersions(bucket, key string) ([]*model.Object, error)

	// IsChecksumReferenced reports whether any object version row in the
	// bucket, regardless of status, still references checksum. Physical
	// blob deletion is only ever legal when this returns false.
	IsChecksumReferenced(bucket, checksum string) (bool, error)

	// Collection reads
	GetCollection(bucket, key string) (*model.Collection, error) // latest USED version
	GetCollectionWithFilter(bucket, key string, f *model.ElementFilter) (*model.Collection, error)
	ListCollections(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Collection, error)
	ListCollectionVersions(bucket, key string) ([]*model.Collection, error)

	// Begin starts a transaction. The caller must Commit or Rollback.
	Begin() (Tx, error)

	// Close releases the underlying connection pool.
	Close() error
}

// Tx carries all metadata mutations. Duplicate-key violations surface as
// Conflict-kind errors, distinguishable from NotFound and from generic I/O
// failure, because orchestration logic branches on them.
type Tx interface {
	InsertBucket(b *model.Bucket) (int64, error)
	DeleteBucket(name string) (int64, error) // returns rows affected

	// NextObjectVersion returns the next version number for (bucket, key),
	// 0 when no version exists. Runs inside this transaction so the read
	// and the subsequent insert serialize on the store's row locking.
	NextObjectVersion(bucket, key string) (int, error)
	InsertObject(o *model.Object) (int64, error)
	MarkObjectDeleted(bucket, key string, f *model.ElementFilter) (int64, error)

	NextCollectionVersion(bucket, key string) (int, error)
	InsertCollection(c *model.Collection) (int64, error)
	// InsertCollectionMember links one member object version to a
	// collection version. position preserves the caller's member order.
	InsertCollectionMember(collectionID, objectID int64, position int) error
	MarkCollectionDeleted(bucket, key string, f *model.ElementFilter) (int64, error)

	Commit() error
	Rollback() error
}
