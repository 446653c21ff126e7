package model

import "time"

// Status marks whether a stored version is live or soft-deleted.
// Soft deletion never removes bytes from the object store; other versions
// may share the same content checksum.
type Status string

const (
	StatusUsed    Status = "USED"
	StatusDeleted Status = "DELETED"
)

// Bucket is a named namespace isolating objects and collections.
// Names are globally unique and immutable once created.
type Bucket struct {
	ID           int64
	Name         string
	Timestamp    time.Time
	CreationDate time.Time
}

// BucketUsage reports how many rows reference a bucket. Deletion is only
// permitted when TotalObjects and TotalCollections are both zero.
type BucketUsage struct {
	ActiveObjects    int64 // objects with status USED
	TotalObjects     int64 // all object versions, including soft-deleted
	TotalCollections int64 // all collection versions, including soft-deleted
}

// Object is one immutable version of a stored object. Identity for history
// purposes is (BucketName, Key); every write produces a new row with an
// incremented VersionNumber.
type Object struct {
	ID              int64  // assigned by the metadata store
	Key             string // what the caller specifies
	Checksum        string // content digest; shared across versions with identical bytes
	Timestamp       time.Time
	DownloadName    string
	ContentType     string
	Size            int64
	Tag             string
	BucketID        int64
	BucketName      string
	VersionNumber   int
	Status          Status
	CreationDate    time.Time
	VersionChecksum string // digest unique to this version's full identity
}

// Similar reports whether o and other describe the same logical content:
// same key, bucket, live status, and matching content metadata. Used to
// detect redundant re-versioning when no new content was supplied.
func (o *Object) Similar(other *Object) bool {
	return o.Key == other.Key &&
		o.BucketName == other.BucketName &&
		o.Status == other.Status &&
		o.ContentType == other.ContentType &&
		o.DownloadName == other.DownloadName &&
		o.Tag == other.Tag &&
		o.Checksum == other.Checksum
}

// Collection is one immutable version of a named grouping of object
// versions. Members are resolved at creation time; a collection version is
// a snapshot of specific object versions, not a live reference.
type Collection struct {
	ID              int64
	Key             string
	BucketID        int64
	BucketName      string
	VersionNumber   int
	Status          Status
	Tag             string
	Timestamp       time.Time
	CreationDate    time.Time
	VersionChecksum string
	Objects         []*Object // resolved member versions, in input order
}

// ElementFilter narrows a get or delete to a specific version of an object
// or collection. A nil or empty filter selects the latest USED version on
// reads and is rejected on deletes.
type ElementFilter struct {
	Version         *int
	Tag             string
	VersionChecksum string
}

// IsEmpty reports whether no filter criteria are set.
func (f *ElementFilter) IsEmpty() bool {
	return f == nil || (f.Version == nil && f.Tag == "" && f.VersionChecksum == "")
}

// TagOnly reports whether the tag is the only criterion. Tag-only deletes
// matching more than one version are ambiguous and rejected.
func (f *ElementFilter) TagOnly() bool {
	return f != nil && f.Tag != "" && f.Version == nil && f.VersionChecksum == ""
}
