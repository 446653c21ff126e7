package repo_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"crepo/internal/model"
	"crepo/internal/repo"
	"crepo/internal/testutil"
)

func filterVersion(v *int) *model.ElementFilter {
	return &model.ElementFilter{Version: v}
}

func TestCreateObjectMethods(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	// NEW on a fresh key starts at version 0.
	obj, err := s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Content: strings.NewReader("one"),
	})
	if err != nil {
		t.Fatalf("CreateObject(new): %v", err)
	}
	if obj.VersionNumber != 0 {
		t.Errorf("first version = %d, want 0", obj.VersionNumber)
	}

	// NEW on an existing key conflicts.
	_, err = s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Content: strings.NewReader("two"),
	})
	if !repo.IsKind(err, repo.KindConflict) {
		t.Errorf("new on existing: got %v, want conflict", err)
	}

	// VERSION on a missing key is not found.
	_, err = s.CreateObject(repo.MethodVersion, repo.CreateObjectParams{
		Key: "missing.txt", Bucket: "docs", Content: strings.NewReader("x"),
	})
	if !repo.IsKind(err, repo.KindNotFound) {
		t.Errorf("version on missing: got %v, want not found", err)
	}

	// VERSION on an existing key increments.
	obj, err = s.CreateObject(repo.MethodVersion, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Content: strings.NewReader("two"),
	})
	if err != nil {
		t.Fatalf("CreateObject(version): %v", err)
	}
	if obj.VersionNumber != 1 {
		t.Errorf("second version = %d, want 1", obj.VersionNumber)
	}

	// AUTO works either way.
	obj, err = s.CreateObject(repo.MethodAuto, repo.CreateObjectParams{
		Key: "b.txt", Bucket: "docs", Content: strings.NewReader("fresh"),
	})
	if err != nil {
		t.Fatalf("CreateObject(auto, fresh): %v", err)
	}
	if obj.VersionNumber != 0 {
		t.Errorf("auto fresh version = %d, want 0", obj.VersionNumber)
	}
}

func TestCreateObjectMissingBucket(t *testing.T) {
	s := newTestService(t)

	_, err := s.CreateObject(repo.MethodAuto, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "nope", Content: strings.NewReader("x"),
	})
	if !repo.IsKind(err, repo.KindNotFound) {
		t.Errorf("missing bucket: got %v, want not found", err)
	}
}

func TestCreateObjectEmptyContent(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	_, err := s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Content: strings.NewReader(""),
	})
	if !repo.IsKind(err, repo.KindInvalidInput) {
		t.Errorf("empty content: got %v, want invalid input", err)
	}
}

func TestCreateObjectDefaultContentType(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	obj, err := s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "a.bin", Bucket: "docs", Content: strings.NewReader("data"),
	})
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if obj.ContentType != repo.DefaultContentType {
		t.Errorf("ContentType = %q, want %q", obj.ContentType, repo.DefaultContentType)
	}
}

func TestCreateObjectDeduplication(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	a, err := s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Content: strings.NewReader("same bytes"),
	})
	if err != nil {
		t.Fatalf("CreateObject a: %v", err)
	}
	b, err := s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "b.txt", Bucket: "docs", Content: strings.NewReader("same bytes"),
	})
	if err != nil {
		t.Fatalf("CreateObject b: %v", err)
	}

	if a.Checksum != b.Checksum {
		t.Errorf("identical content got different checksums: %s vs %s", a.Checksum, b.Checksum)
	}
	if a.Checksum != testutil.SHA256Hex([]byte("same bytes")) {
		t.Errorf("checksum = %s, want sha256 of content", a.Checksum)
	}
	// Distinct versions of the same logical key still get distinct version
	// checksums.
	if a.VersionChecksum == b.VersionChecksum {
		t.Error("distinct objects share a version checksum")
	}
}

func TestCreateObjectMetadataOnlyVersion(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	orig, err := s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", ContentType: "text/plain",
		Content: strings.NewReader("content"),
	})
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}

	// No content: the new version reuses the latest version's bytes.
	next, err := s.CreateObject(repo.MethodVersion, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Tag: "approved",
	})
	if err != nil {
		t.Fatalf("CreateObject(metadata only): %v", err)
	}
	if next.Checksum != orig.Checksum {
		t.Errorf("checksum = %s, want inherited %s", next.Checksum, orig.Checksum)
	}
	if next.ContentType != "text/plain" {
		t.Errorf("ContentType = %q, want inherited text/plain", next.ContentType)
	}
	if next.VersionNumber != 1 {
		t.Errorf("version = %d, want 1", next.VersionNumber)
	}
}

func TestCreateObjectMetadataOnlyRequiresExisting(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	_, err := s.CreateObject(repo.MethodAuto, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs",
	})
	if !repo.IsKind(err, repo.KindPreconditionFailed) {
		t.Errorf("metadata-only without original: got %v, want precondition failed", err)
	}
}

func TestCreateObjectUnchangedReusesVersion(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	first, err := s.CreateObject(repo.MethodNew, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Tag: "t",
		ContentType: "text/plain", Content: strings.NewReader("same"),
	})
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}

	// Re-submitting an identical version is a no-op returning the existing
	// row instead of burning a version number.
	second, err := s.CreateObject(repo.MethodAuto, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Tag: "t",
		ContentType: "text/plain", Content: strings.NewReader("same"),
	})
	if err != nil {
		t.Fatalf("CreateObject(identical): %v", err)
	}
	if second.VersionNumber != first.VersionNumber {
		t.Errorf("version = %d, want reused %d", second.VersionNumber, first.VersionNumber)
	}

	versions, err := s.GetObjectVersions("docs", "a.txt")
	if err != nil {
		t.Fatalf("GetObjectVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("history length = %d, want 1", len(versions))
	}
}

func TestCreateObjectConcurrentVersionNumbers(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateObject(repo.MethodAuto, repo.CreateObjectParams{
				Key: "a.txt", Bucket: "docs",
				Content: strings.NewReader(fmt.Sprintf("content %d", i)),
			})
			if err != nil {
				t.Errorf("concurrent CreateObject: %v", err)
			}
		}(i)
	}
	wg.Wait()

	versions, err := s.GetObjectVersions("docs", "a.txt")
	if err != nil {
		t.Fatalf("GetObjectVersions: %v", err)
	}
	if len(versions) != writers {
		t.Fatalf("history length = %d, want %d", len(versions), writers)
	}
	// Version numbers must be the gap-free sequence 0..writers-1.
	for i, v := range versions {
		if v.VersionNumber != i {
			t.Errorf("versions[%d].VersionNumber = %d, want %d", i, v.VersionNumber, i)
		}
	}
}

func TestGetObjectWithFilter(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")
	mustCreateObject(t, s, "docs", "a.txt", "one")

	tagged, err := s.CreateObject(repo.MethodVersion, repo.CreateObjectParams{
		Key: "a.txt", Bucket: "docs", Tag: "release", Content: strings.NewReader("two"),
	})
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}

	t.Run("latest", func(t *testing.T) {
		obj, err := s.GetObject("docs", "a.txt", nil)
		if err != nil {
			t.Fatalf("GetObject: %v", err)
		}
		if obj.VersionNumber != 1 {
			t.Errorf("latest version = %d, want 1", obj.VersionNumber)
		}
	})

	t.Run("by version", func(t *testing.T) {
		v := 0
		obj, err := s.GetObject("docs", "a.txt", filterVersion(&v))
		if err != nil {
			t.Fatalf("GetObject: %v", err)
		}
		if obj.VersionNumber != 0 {
			t.Errorf("version = %d, want 0", obj.VersionNumber)
		}
	})

	t.Run("by tag", func(t *testing.T) {
		obj, err := s.GetObject("docs", "a.txt", &model.ElementFilter{Tag: "release"})
		if err != nil {
			t.Fatalf("GetObject: %v", err)
		}
		if obj.VersionNumber != 1 {
			t.Errorf("version = %d, want 1", obj.VersionNumber)
		}
	})

	t.Run("by version checksum", func(t *testing.T) {
		obj, err := s.GetObject("docs", "a.txt", &model.ElementFilter{VersionChecksum: tagged.VersionChecksum})
		if err != nil {
			t.Fatalf("GetObject: %v", err)
		}
		if obj.VersionNumber != 1 {
			t.Errorf("version = %d, want 1", obj.VersionNumber)
		}
	})

	t.Run("no match", func(t *testing.T) {
		v := 99
		_, err := s.GetObject("docs", "a.txt", filterVersion(&v))
		if !repo.IsKind(err, repo.KindNotFound) {
			t.Errorf("got %v, want not found", err)
		}
	})
}

func TestDeleteObject(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")
	mustCreateObject(t, s, "docs", "a.txt", "one")
	mustCreateObject(t, s, "docs", "a.txt", "two")

	v := 1
	if err := s.DeleteObject("docs", "a.txt", filterVersion(&v)); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	// Latest USED drops back to version 0.
	obj, err := s.GetObject("docs", "a.txt", nil)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if obj.VersionNumber != 0 {
		t.Errorf("latest after delete = %d, want 0", obj.VersionNumber)
	}

	// History still shows both versions.
	versions, err := s.GetObjectVersions("docs", "a.txt")
	if err != nil {
		t.Fatalf("GetObjectVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("history length = %d, want 2", len(versions))
	}
	if versions[1].Status != model.StatusDeleted {
		t.Errorf("versions[1].Status = %s, want DELETED", versions[1].Status)
	}

	// Deleting the same version again finds nothing.
	if err := s.DeleteObject("docs", "a.txt", filterVersion(&v)); !repo.IsKind(err, repo.KindNotFound) {
		t.Errorf("re-delete: got %v, want not found", err)
	}
}

func TestDeleteObjectRequiresFilter(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")
	mustCreateObject(t, s, "docs", "a.txt", "one")

	err := s.DeleteObject("docs", "a.txt", nil)
	if !repo.IsKind(err, repo.KindInvalidInput) {
		t.Errorf("delete without filter: got %v, want invalid input", err)
	}
}

func TestDeleteObjectTagAmbiguity(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")

	for _, content := range []string{"one", "two"} {
		_, err := s.CreateObject(repo.MethodAuto, repo.CreateObjectParams{
			Key: "a.txt", Bucket: "docs", Tag: "draft", Content: strings.NewReader(content),
		})
		if err != nil {
			t.Fatalf("CreateObject: %v", err)
		}
	}

	err := s.DeleteObject("docs", "a.txt", &model.ElementFilter{Tag: "draft"})
	if !repo.IsKind(err, repo.KindAmbiguous) {
		t.Errorf("tag matching two versions: got %v, want ambiguous", err)
	}
}

func TestDeleteObjectSharedChecksumKeepsContent(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")
	mustCreateObject(t, s, "docs", "a.txt", "shared bytes")
	mustCreateObject(t, s, "docs", "b.txt", "shared bytes")

	v := 0
	if err := s.DeleteObject("docs", "a.txt", filterVersion(&v)); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	// b.txt shares the checksum; its bytes must remain readable.
	obj, err := s.GetObject("docs", "b.txt", nil)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	rc, err := s.GetObjectContent(obj)
	if err != nil {
		t.Fatalf("GetObjectContent after sibling delete: %v", err)
	}
	rc.Close()
}

func TestListObjectsPagination(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")
	for i := 0; i < 5; i++ {
		mustCreateObject(t, s, "docs", fmt.Sprintf("file-%d.txt", i), fmt.Sprintf("content %d", i))
	}

	page1, err := s.ListObjects("docs", 0, 2, false, "")
	if err != nil {
		t.Fatalf("ListObjects page 1: %v", err)
	}
	page2, err := s.ListObjects("docs", 2, 2, false, "")
	if err != nil {
		t.Fatalf("ListObjects page 2: %v", err)
	}
	page3, err := s.ListObjects("docs", 4, 2, false, "")
	if err != nil {
		t.Fatalf("ListObjects page 3: %v", err)
	}

	if len(page1) != 2 || len(page2) != 2 || len(page3) != 1 {
		t.Errorf("page sizes = %d, %d, %d; want 2, 2, 1", len(page1), len(page2), len(page3))
	}
	seen := map[string]bool{}
	for _, o := range append(append(page1, page2...), page3...) {
		seen[o.Key] = true
	}
	if len(seen) != 5 {
		t.Errorf("pages covered %d distinct keys, want 5", len(seen))
	}
}

func TestListObjectsValidation(t *testing.T) {
	s := newTestService(t)

	if _, err := s.ListObjects("docs", -1, 10, false, ""); !repo.IsKind(err, repo.KindInvalidInput) {
		t.Errorf("negative offset: got %v, want invalid input", err)
	}
	if _, err := s.ListObjects("docs", 0, repo.MaxPageSize+1, false, ""); !repo.IsKind(err, repo.KindInvalidInput) {
		t.Errorf("limit over max: got %v, want invalid input", err)
	}
	if _, err := s.ListObjects("missing", 0, 10, false, ""); !repo.IsKind(err, repo.KindNotFound) {
		t.Errorf("missing bucket: got %v, want not found", err)
	}
}

func TestGetRedirectURLsWithoutSupport(t *testing.T) {
	s := newTestService(t)
	mustCreateBucket(t, s, "docs")
	mustCreateObject(t, s, "docs", "a.txt", "x")

	obj, err := s.GetObject("docs", "a.txt", nil)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	urls, err := s.GetRedirectURLs(obj)
	if err != nil {
		t.Fatalf("GetRedirectURLs: %v", err)
	}
	if urls != nil {
		t.Errorf("urls = %v, want nil for a store without redirects", urls)
	}
}
