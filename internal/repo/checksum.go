package repo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"time"

	"crepo/internal/model"
)

// ChecksumEngine computes content digests and composite version digests.
// It is stateless; all methods are pure functions over their inputs.
//
// Content checksums are SHA-256, hex encoded (64 characters). Version
// checksums digest a canonical, order-sensitive concatenation of the
// version's identifying fields, so they are stable across processes.
type ChecksumEngine struct{}

// NewHash returns the digest used for content checksums. Object store
// backends stream uploads through it to avoid buffering whole payloads.
func (ChecksumEngine) NewHash() hash.Hash { return sha256.New() }

// Digest returns the content checksum of data.
func (ChecksumEngine) Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObjectVersionChecksum digests the fields that identify one object
// version: key, bucket, tag, content metadata, content checksum, and
// timestamps. Two versions of the same key with identical content but
// different tags or timestamps get distinct version checksums.
func (e ChecksumEngine) ObjectVersionChecksum(o *model.Object) string {
	h := e.NewHash()
	writeField(h, o.Key)
	writeField(h, o.BucketName)
	writeField(h, o.Tag)
	writeField(h, o.ContentType)
	writeField(h, o.DownloadName)
	writeField(h, o.Checksum)
	writeTime(h, o.Timestamp)
	writeTime(h, o.CreationDate)
	return hex.EncodeToString(h.Sum(nil))
}

// CollectionVersionChecksum digests the collection's identifying fields
// followed by the ordered list of member version checksums.
func (e ChecksumEngine) CollectionVersionChecksum(c *model.Collection, memberChecksums []string) string {
	h := e.NewHash()
	writeField(h, c.Key)
	writeField(h, c.BucketName)
	writeField(h, c.Tag)
	writeTime(h, c.Timestamp)
	writeTime(h, c.CreationDate)
	for _, cs := range memberChecksums {
		writeField(h, cs)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes a length-prefixed field so that adjacent fields can
// never collide ("ab"+"c" vs "a"+"bc").
func writeField(h hash.Hash, s string) {
	fmt.Fprintf(h, "%d:%s", len(s), s)
}

func writeTime(h hash.Hash, t time.Time) {
	writeField(h, t.UTC().Format(time.RFC3339Nano))
}
