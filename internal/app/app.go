// Package app is the application layer between the CLI and the repository
// services. It constructs all dependencies from config, exposes high-level
// operations that accept raw string inputs, and manages resource lifecycle
// on Close.
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crepo/internal/config"
	"crepo/internal/metadata"
	"crepo/internal/model"
	"crepo/internal/objectstore"
	"crepo/internal/repo"
)

// RepoApp wires the object store, metadata store, and services together.
// The caller must call Close when done.
type RepoApp struct {
	cfg         *config.Config
	store       repo.ObjectStore
	meta        repo.MetadataStore
	objects     *repo.RepoService
	collections *repo.CollectionService
	logFile     *os.File
}

// NewRepoApp creates a fully wired RepoApp from the given config.
// operation identifies the CLI command being run (e.g. "CreateBucket").
func NewRepoApp(cfg *config.Config, operation string) (*RepoApp, error) {
	store, err := objectstore.NewStoreFromConfig(cfg.Store, cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating object store: %w", err)
	}
	if err := store.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("validating object store: %w", err)
	}

	meta, err := metadata.NewStoreFromConfig(cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("creating metadata store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	stripes := cfg.Locks.Stripes
	if stripes <= 0 {
		stripes = repo.DefaultLockStripes
	}
	bucketLocks := repo.NewBucketLockRegistry(stripes)
	keyLocks := repo.NewBucketLockRegistry(stripes)

	log := &slogAdapter{l: logger.With("operation", operation)}
	objects := repo.NewRepoService(store, meta, bucketLocks, keyLocks, log, repo.RealClock{})
	collections := repo.NewCollectionService(meta, keyLocks, log, repo.RealClock{})

	return &RepoApp{
		cfg:         cfg,
		store:       store,
		meta:        meta,
		objects:     objects,
		collections: collections,
		logFile:     logFile,
	}, nil
}

// parseTime parses an optional RFC3339 timestamp. Empty input means "not
// supplied".
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q (want RFC3339): %w", s, err)
	}
	return &t, nil
}

// buildFilter assembles an element filter from raw CLI inputs. version < 0
// means "not supplied".
func buildFilter(version int, tag, versionChecksum string) *model.ElementFilter {
	f := &model.ElementFilter{Tag: tag, VersionChecksum: versionChecksum}
	if version >= 0 {
		f.Version = &version
	}
	return f
}

// CreateBucket creates a bucket. creationDate is an optional RFC3339
// timestamp for migrated data.
func (a *RepoApp) CreateBucket(name, creationDate string) (*model.Bucket, error) {
	created, err := parseTime(creationDate)
	if err != nil {
		return nil, err
	}
	return a.objects.CreateBucket(name, created)
}

// DeleteBucket removes an empty bucket.
func (a *RepoApp) DeleteBucket(name string) error {
	return a.objects.DeleteBucket(name)
}

// ListBuckets returns all buckets.
func (a *RepoApp) ListBuckets() ([]*model.Bucket, error) {
	return a.objects.ListBuckets()
}

// GetBucketInfo returns a bucket and its usage counts.
func (a *RepoApp) GetBucketInfo(name string) (*model.Bucket, *model.BucketUsage, error) {
	return a.objects.GetBucketInfo(name)
}

// PutObject creates a new object version from a local file. An empty
// filePath versions the latest object's metadata without new content. The
// download name defaults to the file's base name.
func (a *RepoApp) PutObject(method, bucket, key, filePath, contentType, downloadName, tag, timestamp, creationDate string) (*model.Object, error) {
	m, err := repo.ParseCreateMethod(method)
	if err != nil {
		return nil, err
	}
	ts, err := parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(creationDate)
	if err != nil {
		return nil, err
	}

	var content io.Reader
	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("opening input file: %w", err)
		}
		defer f.Close()
		content = f
		if downloadName == "" {
			downloadName = filepath.Base(filePath)
		}
	}

	return a.objects.CreateObject(m, repo.CreateObjectParams{
		Key:          key,
		Bucket:       bucket,
		ContentType:  contentType,
		DownloadName: downloadName,
		Tag:          tag,
		Content:      content,
		Timestamp:    ts,
		CreationDate: created,
	})
}

// GetObject returns the object version selected by the filter inputs.
func (a *RepoApp) GetObject(bucket, key string, version int, tag, versionChecksum string) (*model.Object, error) {
	return a.objects.GetObject(bucket, key, buildFilter(version, tag, versionChecksum))
}

// FetchObjectContent streams the selected object version's content to w.
func (a *RepoApp) FetchObjectContent(bucket, key string, version int, tag, versionChecksum string, w io.Writer) (*model.Object, error) {
	obj, err := a.GetObject(bucket, key, version, tag, versionChecksum)
	if err != nil {
		return nil, err
	}
	rc, err := a.objects.GetObjectContent(obj)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return nil, fmt.Errorf("copying object content: %w", err)
	}
	return obj, nil
}

// GetObjectURLs returns direct download URLs for the selected object
// version, or nil when the store cannot serve redirects.
func (a *RepoApp) GetObjectURLs(bucket, key string, version int, tag, versionChecksum string) ([]string, error) {
	obj, err := a.GetObject(bucket, key, version, tag, versionChecksum)
	if err != nil {
		return nil, err
	}
	return a.objects.GetRedirectURLs(obj)
}

// ListObjects returns a page of object versions. bucket may be empty to
// list across all buckets.
func (a *RepoApp) ListObjects(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Object, error) {
	return a.objects.ListObjects(bucket, offset, limit, includeDeleted, tag)
}

// GetObjectVersions returns the full version history of an object.
func (a *RepoApp) GetObjectVersions(bucket, key string) ([]*model.Object, error) {
	return a.objects.GetObjectVersions(bucket, key)
}

// DeleteObject soft-deletes one object version.
func (a *RepoApp) DeleteObject(bucket, key string, version int, tag, versionChecksum string) error {
	return a.objects.DeleteObject(bucket, key, buildFilter(version, tag, versionChecksum))
}

// ParseMember parses a CLI member reference of the form "key" or
// "key@versionChecksum".
func ParseMember(s string) (repo.InputMember, error) {
	key, checksum, _ := strings.Cut(s, "@")
	if key == "" {
		return repo.InputMember{}, fmt.Errorf("invalid member reference %q", s)
	}
	return repo.InputMember{Key: key, VersionChecksum: checksum}, nil
}

// CreateCollection creates a new collection version from member references.
func (a *RepoApp) CreateCollection(method, bucket, key, tag string, members []string, timestamp, creationDate string) (*model.Collection, error) {
	m, err := repo.ParseCreateMethod(method)
	if err != nil {
		return nil, err
	}
	ts, err := parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(creationDate)
	if err != nil {
		return nil, err
	}

	refs := make([]repo.InputMember, 0, len(members))
	for _, s := range members {
		ref, err := ParseMember(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	return a.collections.CreateCollection(m, repo.CreateCollectionParams{
		Key:          key,
		Bucket:       bucket,
		Tag:          tag,
		Members:      refs,
		Timestamp:    ts,
		CreationDate: created,
	})
}

// GetCollection returns the collection version selected by the filter inputs.
func (a *RepoApp) GetCollection(bucket, key string, version int, tag, versionChecksum string) (*model.Collection, error) {
	return a.collections.GetCollection(bucket, key, buildFilter(version, tag, versionChecksum))
}

// ListCollections returns a page of collection versions for a bucket.
func (a *RepoApp) ListCollections(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Collection, error) {
	return a.collections.ListCollections(bucket, offset, limit, includeDeleted, tag)
}

// GetCollectionVersions returns the full version history of a collection.
func (a *RepoApp) GetCollectionVersions(bucket, key string) ([]*model.Collection, error) {
	return a.collections.GetCollectionVersions(bucket, key)
}

// DeleteCollection soft-deletes one collection version.
func (a *RepoApp) DeleteCollection(bucket, key string, version int, tag, versionChecksum string) error {
	return a.collections.DeleteCollection(bucket, key, buildFilter(version, tag, versionChecksum))
}

// Close releases the metadata store and the log file.
func (a *RepoApp) Close() error {
	var firstErr error
	if err := a.meta.Close(); err != nil {
		firstErr = fmt.Errorf("closing metadata store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
