package repo

import (
	"testing"
	"time"

	"crepo/internal/model"
)

func testObject() *model.Object {
	ts := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	return &model.Object{
		Key:          "report.pdf",
		BucketName:   "docs",
		Tag:          "draft",
		ContentType:  "application/pdf",
		DownloadName: "report-final.pdf",
		Checksum:     "abc123",
		Timestamp:    ts,
		CreationDate: ts,
	}
}

func TestDigest(t *testing.T) {
	var e ChecksumEngine

	// Known SHA-256 of "hello".
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := e.Digest([]byte("hello")); got != want {
		t.Errorf("Digest(hello) = %s, want %s", got, want)
	}

	if e.Digest([]byte("a")) == e.Digest([]byte("b")) {
		t.Error("distinct inputs produced identical digests")
	}
}

func TestObjectVersionChecksumStable(t *testing.T) {
	var e ChecksumEngine

	a := e.ObjectVersionChecksum(testObject())
	b := e.ObjectVersionChecksum(testObject())
	if a != b {
		t.Errorf("checksum not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64", len(a))
	}
}

func TestObjectVersionChecksumSensitivity(t *testing.T) {
	var e ChecksumEngine
	base := e.ObjectVersionChecksum(testObject())

	tests := []struct {
		name   string
		mutate func(*model.Object)
	}{
		{"key", func(o *model.Object) { o.Key = "other.pdf" }},
		{"bucket", func(o *model.Object) { o.BucketName = "other" }},
		{"tag", func(o *model.Object) { o.Tag = "final" }},
		{"content type", func(o *model.Object) { o.ContentType = "text/plain" }},
		{"download name", func(o *model.Object) { o.DownloadName = "x.pdf" }},
		{"checksum", func(o *model.Object) { o.Checksum = "def456" }},
		{"timestamp", func(o *model.Object) { o.Timestamp = o.Timestamp.Add(time.Second) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testObject()
			tt.mutate(o)
			if e.ObjectVersionChecksum(o) == base {
				t.Errorf("changing %s did not change the version checksum", tt.name)
			}
		})
	}
}

func TestObjectVersionChecksumFieldBoundaries(t *testing.T) {
	var e ChecksumEngine

	// Adjacent fields must not collide when content shifts between them.
	a := testObject()
	a.Tag = "ab"
	a.ContentType = "c"
	b := testObject()
	b.Tag = "a"
	b.ContentType = "bc"

	if e.ObjectVersionChecksum(a) == e.ObjectVersionChecksum(b) {
		t.Error("field boundary collision between tag and content type")
	}
}

func TestCollectionVersionChecksum(t *testing.T) {
	var e ChecksumEngine
	ts := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	coll := &model.Collection{
		Key:          "release",
		BucketName:   "docs",
		Tag:          "v1",
		Timestamp:    ts,
		CreationDate: ts,
	}

	a := e.CollectionVersionChecksum(coll, []string{"m1", "m2"})
	b := e.CollectionVersionChecksum(coll, []string{"m1", "m2"})
	if a != b {
		t.Error("collection checksum not deterministic")
	}

	if a == e.CollectionVersionChecksum(coll, []string{"m2", "m1"}) {
		t.Error("member order did not affect the checksum")
	}
	if a == e.CollectionVersionChecksum(coll, []string{"m1"}) {
		t.Error("member count did not affect the checksum")
	}
}
