package model

import "testing"

func baseObject() *Object {
	return &Object{
		Key:          "report.pdf",
		BucketName:   "docs",
		Status:       StatusUsed,
		ContentType:  "application/pdf",
		DownloadName: "report-2025.pdf",
		Tag:          "final",
		Checksum:     "abc123",
	}
}

func TestObjectSimilar(t *testing.T) {
	if !baseObject().Similar(baseObject()) {
		t.Fatal("identical objects not similar")
	}

	tests := []struct {
		name   string
		mutate func(*Object)
	}{
		{"key", func(o *Object) { o.Key = "other.pdf" }},
		{"bucket", func(o *Object) { o.BucketName = "media" }},
		{"status", func(o *Object) { o.Status = StatusDeleted }},
		{"content type", func(o *Object) { o.ContentType = "text/plain" }},
		{"download name", func(o *Object) { o.DownloadName = "other.pdf" }},
		{"tag", func(o *Object) { o.Tag = "draft" }},
		{"checksum", func(o *Object) { o.Checksum = "def456" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := baseObject()
			tt.mutate(other)
			if baseObject().Similar(other) {
				t.Errorf("objects differing in %s reported similar", tt.name)
			}
		})
	}
}

func TestObjectSimilarIgnoresVersionFields(t *testing.T) {
	a := baseObject()
	b := baseObject()
	b.ID = 99
	b.VersionNumber = 7
	b.VersionChecksum = "vc-other"
	b.Size = 1234
	if !a.Similar(b) {
		t.Error("version bookkeeping fields should not affect similarity")
	}
}

func TestElementFilterIsEmpty(t *testing.T) {
	v := 3
	tests := []struct {
		name string
		f    *ElementFilter
		want bool
	}{
		{"nil", nil, true},
		{"zero value", &ElementFilter{}, true},
		{"version", &ElementFilter{Version: &v}, false},
		{"tag", &ElementFilter{Tag: "final"}, false},
		{"version checksum", &ElementFilter{VersionChecksum: "vc"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestElementFilterTagOnly(t *testing.T) {
	v := 0
	tests := []struct {
		name string
		f    *ElementFilter
		want bool
	}{
		{"nil", nil, false},
		{"empty", &ElementFilter{}, false},
		{"tag only", &ElementFilter{Tag: "final"}, true},
		{"tag and version", &ElementFilter{Tag: "final", Version: &v}, false},
		{"tag and checksum", &ElementFilter{Tag: "final", VersionChecksum: "vc"}, false},
		{"version only", &ElementFilter{Version: &v}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.TagOnly(); got != tt.want {
				t.Errorf("TagOnly() = %v, want %v", got, tt.want)
			}
		})
	}
}
