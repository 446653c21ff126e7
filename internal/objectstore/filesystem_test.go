package objectstore

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crepo/internal/testutil"
)

func newTestFileSystemStore(t *testing.T) *FileSystemStore {
	t.Helper()
	s, err := NewFileSystemStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileSystemStore: %v", err)
	}
	return s
}

func TestFileSystemUploadTemp(t *testing.T) {
	s := newTestFileSystemStore(t)

	u, err := s.UploadTemp(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("UploadTemp: %v", err)
	}
	if u.Size != 11 {
		t.Errorf("Size = %d, want 11", u.Size)
	}
	if want := testutil.SHA256Hex([]byte("hello world")); u.Checksum != want {
		t.Errorf("Checksum = %s, want %s", u.Checksum, want)
	}
	if _, err := os.Stat(u.TempRef); err != nil {
		t.Errorf("temp file missing: %v", err)
	}
}

func TestFileSystemCommitAndOpen(t *testing.T) {
	s := newTestFileSystemStore(t)
	if err := s.CreateBucket("docs"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	u, err := s.UploadTemp(strings.NewReader("content"))
	if err != nil {
		t.Fatalf("UploadTemp: %v", err)
	}
	if err := s.Commit("docs", u); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// The temp file is consumed by the rename.
	if _, err := os.Stat(u.TempRef); !os.IsNotExist(err) {
		t.Errorf("temp file still present after commit: %v", err)
	}

	// Committed bytes live under the two-character shard.
	wantPath := filepath.Join(s.root, "docs", u.Checksum[:2], u.Checksum)
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("committed file missing at %s: %v", wantPath, err)
	}

	exists, err := s.Exists("docs", u.Checksum)
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true, nil", exists, err)
	}

	rc, err := s.Open("docs", u.Checksum)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q, want %q", data, "content")
	}
}

func TestFileSystemCommitIdempotent(t *testing.T) {
	s := newTestFileSystemStore(t)
	if err := s.CreateBucket("docs"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	u1, _ := s.UploadTemp(strings.NewReader("same"))
	if err := s.Commit("docs", u1); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	// Committing identical bytes a second time succeeds and discards the
	// second temp file.
	u2, _ := s.UploadTemp(strings.NewReader("same"))
	if err := s.Commit("docs", u2); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if _, err := os.Stat(u2.TempRef); !os.IsNotExist(err) {
		t.Errorf("second temp file not cleaned up: %v", err)
	}
}

func TestFileSystemDeleteTemp(t *testing.T) {
	s := newTestFileSystemStore(t)

	u, _ := s.UploadTemp(strings.NewReader("abandoned"))
	if err := s.DeleteTemp(u); err != nil {
		t.Fatalf("DeleteTemp: %v", err)
	}
	if _, err := os.Stat(u.TempRef); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}
	// Deleting again is not an error.
	if err := s.DeleteTemp(u); err != nil {
		t.Errorf("second DeleteTemp: %v", err)
	}
}

func TestFileSystemDelete(t *testing.T) {
	s := newTestFileSystemStore(t)
	s.CreateBucket("docs")

	u, _ := s.UploadTemp(strings.NewReader("bytes"))
	s.Commit("docs", u)

	if err := s.Delete("docs", u.Checksum); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, _ := s.Exists("docs", u.Checksum)
	if exists {
		t.Error("content still exists after delete")
	}
	// Deleting absent content is not an error.
	if err := s.Delete("docs", u.Checksum); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestFileSystemDeleteBucketNotEmpty(t *testing.T) {
	s := newTestFileSystemStore(t)
	s.CreateBucket("docs")

	u, _ := s.UploadTemp(strings.NewReader("bytes"))
	s.Commit("docs", u)

	if err := s.DeleteBucket("docs"); err == nil {
		t.Error("DeleteBucket succeeded on a non-empty bucket")
	}

	s.Delete("docs", u.Checksum)
	if err := s.DeleteBucket("docs"); err != nil {
		t.Errorf("DeleteBucket after emptying: %v", err)
	}
}

func TestFileSystemRedirects(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestFileSystemStore(t)
		if s.HasRedirect() {
			t.Error("HasRedirect = true without a reproxy base URL")
		}
		urls, err := s.RedirectURLs("docs", "abcd1234")
		if err != nil || urls != nil {
			t.Errorf("RedirectURLs = %v, %v; want nil, nil", urls, err)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		s, err := NewFileSystemStore(t.TempDir(), "https://cdn.example.com/objects")
		if err != nil {
			t.Fatalf("NewFileSystemStore: %v", err)
		}
		if !s.HasRedirect() {
			t.Error("HasRedirect = false with a reproxy base URL")
		}
		urls, err := s.RedirectURLs("docs", "abcd1234")
		if err != nil {
			t.Fatalf("RedirectURLs: %v", err)
		}
		want := "https://cdn.example.com/objects/docs/ab/abcd1234"
		if len(urls) != 1 || urls[0] != want {
			t.Errorf("urls = %v, want [%s]", urls, want)
		}
	})
}

func TestFileSystemValidateSetup(t *testing.T) {
	s := newTestFileSystemStore(t)
	if err := s.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup: %v", err)
	}

	os.RemoveAll(s.tmpDir)
	if err := s.ValidateSetup(); err == nil {
		t.Error("ValidateSetup succeeded with missing tmp dir")
	}
}
