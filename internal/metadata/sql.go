// Package metadata implements the metadata store on SQLite and PostgreSQL.
// One SQL implementation serves both engines; queries are written with `?`
// placeholders and rebound to the PostgreSQL `$n` form at execution time.
package metadata

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"crepo/internal/model"
	"crepo/internal/repo"
)

// SQLStore implements repo.MetadataStore on a *sql.DB. Engine-specific
// behavior (placeholder style, unique-violation detection) is injected by
// the constructors in sqlite.go and postgres.go.
type SQLStore struct {
	db       *sql.DB
	engine   string
	isUnique func(error) bool
}

func newSQLStore(db *sql.DB, engine string, isUnique func(error) bool) *SQLStore {
	return &SQLStore{db: db, engine: engine, isUnique: isUnique}
}

// DB exposes the underlying handle for migrations.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

// rebind converts `?` placeholders to the engine's native form.
func (s *SQLStore) rebind(query string) string {
	if s.engine != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// conflictOrWrap maps unique-constraint violations to Conflict errors so
// the service layer can distinguish a lost race from an I/O failure.
func (s *SQLStore) conflictOrWrap(err error, format string, args ...any) error {
	if s.isUnique != nil && s.isUnique(err) {
		return &repo.Error{Kind: repo.KindConflict, Message: fmt.Sprintf(format, args...), Err: err}
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// nullable converts an empty string to NULL on write.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

const bucketColumns = `b.id, b.name, b.timestamp, b.creation_date`

func scanBucket(row interface{ Scan(...any) error }) (*model.Bucket, error) {
	var b model.Bucket
	if err := row.Scan(&b.ID, &b.Name, &b.Timestamp, &b.CreationDate); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLStore) GetBucket(name string) (*model.Bucket, error) {
	query := s.rebind(`SELECT ` + bucketColumns + ` FROM buckets b WHERE b.name = ?`)
	b, err := scanBucket(s.db.QueryRow(query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying bucket: %w", err)
	}
	return b, nil
}

func (s *SQLStore) ListBuckets() ([]*model.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets b ORDER BY b.name`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying buckets: %w", err)
	}
	defer rows.Close()

	var buckets []*model.Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *SQLStore) BucketUsage(name string) (*model.BucketUsage, error) {
	query := s.rebind(`
		SELECT
			(SELECT COUNT(*) FROM objects o WHERE o.bucket_id = b.id AND o.status = 'USED'),
			(SELECT COUNT(*) FROM objects o WHERE o.bucket_id = b.id),
			(SELECT COUNT(*) FROM collections c WHERE c.bucket_id = b.id)
		FROM buckets b WHERE b.name = ?`)

	var u model.BucketUsage
	err := s.db.QueryRow(query, name).Scan(&u.ActiveObjects, &u.TotalObjects, &u.TotalCollections)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying bucket usage: %w", err)
	}
	return &u, nil
}

const objectColumns = `o.id, o.key, o.checksum, o.timestamp, o.download_name,
	o.content_type, o.size, o.tag, o.bucket_id, b.name, o.version_number,
	o.status, o.creation_date, o.version_checksum`

func scanObject(row interface{ Scan(...any) error }) (*model.Object, error) {
	var o model.Object
	var downloadName, contentType, tag sql.NullString
	err := row.Scan(&o.ID, &o.Key, &o.Checksum, &o.Timestamp, &downloadName,
		&contentType, &o.Size, &tag, &o.BucketID, &o.BucketName, &o.VersionNumber,
		&o.Status, &o.CreationDate, &o.VersionChecksum)
	if err != nil {
		return nil, err
	}
	o.DownloadName = downloadName.String
	o.ContentType = contentType.String
	o.Tag = tag.String
	return &o, nil
}

// objectFilterClauses appends WHERE fragments and args for an element
// filter. A tag-only filter additionally restricts to live versions; an
// explicit version number or version checksum addresses soft-deleted rows
// too, which is how history stays reachable.
func objectFilterClauses(f *model.ElementFilter, clauses []string, args []any) ([]string, []any) {
	if f.Version != nil {
		clauses = append(clauses, "o.version_number = ?")
		args = append(args, *f.Version)
	}
	if f.VersionChecksum != "" {
		clauses = append(clauses, "o.version_checksum = ?")
		args = append(args, f.VersionChecksum)
	}
	if f.Tag != "" {
		clauses = append(clauses, "o.tag = ?")
		args = append(args, f.Tag)
	}
	if f.TagOnly() {
		clauses = append(clauses, "o.status = 'USED'")
	}
	return clauses, args
}

func (s *SQLStore) GetObject(bucket, key string) (*model.Object, error) {
	query := s.rebind(`
		SELECT ` + objectColumns + `
		FROM objects o JOIN buckets b ON b.id = o.bucket_id
		WHERE b.name = ? AND o.key = ? AND o.status = 'USED'
		ORDER BY o.version_number DESC LIMIT 1`)

	o, err := scanObject(s.db.QueryRow(query, bucket, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying object: %w", err)
	}
	return o, nil
}

func (s *SQLStore) GetObjectWithFilter(bucket, key string, f *model.ElementFilter) (*model.Object, error) {
	clauses := []string{"b.name = ?", "o.key = ?"}
	args := []any{bucket, key}
	clauses, args = objectFilterClauses(f, clauses, args)

	query := s.rebind(`
		SELECT ` + objectColumns + `
		FROM objects o JOIN buckets b ON b.id = o.bucket_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY o.version_number DESC LIMIT 1`)

	o, err := scanObject(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying object: %w", err)
	}
	return o, nil
}

func (s *SQLStore) ListObjects(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Object, error) {
	clauses := []string{"1 = 1"}
	var args []any
	if bucket != "" {
		clauses = append(clauses, "b.name = ?")
		args = append(args, bucket)
	}
	if !includeDeleted {
		clauses = append(clauses, "o.status = 'USED'")
	}
	if tag != "" {
		clauses = append(clauses, "o.tag = ?")
		args = append(args, tag)
	}
	args = append(args, limit, offset)

	query := s.rebind(`
		SELECT ` + objectColumns + `
		FROM objects o JOIN buckets b ON b.id = o.bucket_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY b.name, o.key, o.version_number
		LIMIT ? OFFSET ?`)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}
	defer rows.Close()

	var objects []*model.Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning object: %w", err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func (s *SQLStore) ListObjectVersions(bucket, key string) ([]*model.Object, error) {
	query := s.rebind(`
		SELECT ` + objectColumns + `
		FROM objects o JOIN buckets b ON b.id = o.bucket_id
		WHERE b.name = ? AND o.key = ?
		ORDER BY o.version_number`)

	rows, err := s.db.Query(query, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("querying object versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning object version: %w", err)
		}
		versions = append(versions, o)
	}
	return versions, rows.Err()
}

func (s *SQLStore) IsChecksumReferenced(bucket, checksum string) (bool, error) {
	query := s.rebind(`
		SELECT EXISTS (
			SELECT 1 FROM objects o JOIN buckets b ON b.id = o.bucket_id
			WHERE b.name = ? AND o.checksum = ?
		)`)

	var referenced bool
	if err := s.db.QueryRow(query, bucket, checksum).Scan(&referenced); err != nil {
		return false, fmt.Errorf("querying checksum references: %w", err)
	}
	return referenced, nil
}

const collectionColumns = `c.id, c.key, c.bucket_id, b.name, c.version_number,
	c.status, c.tag, c.timestamp, c.creation_date, c.version_checksum`

func scanCollection(row interface{ Scan(...any) error }) (*model.Collection, error) {
	var c model.Collection
	var tag sql.NullString
	err := row.Scan(&c.ID, &c.Key, &c.BucketID, &c.BucketName, &c.VersionNumber,
		&c.Status, &tag, &c.Timestamp, &c.CreationDate, &c.VersionChecksum)
	if err != nil {
		return nil, err
	}
	c.Tag = tag.String
	return &c, nil
}

// loadMembers fills in a collection's member object versions in the order
// they were supplied at creation.
func (s *SQLStore) loadMembers(c *model.Collection) error {
	query := s.rebind(`
		SELECT ` + objectColumns + `
		FROM collection_objects co
		JOIN objects o ON o.id = co.object_id
		JOIN buckets b ON b.id = o.bucket_id
		WHERE co.collection_id = ?
		ORDER BY co.position`)

	rows, err := s.db.Query(query, c.ID)
	if err != nil {
		return fmt.Errorf("querying collection members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return fmt.Errorf("scanning collection member: %w", err)
		}
		c.Objects = append(c.Objects, o)
	}
	return rows.Err()
}

// collectionFilterClauses mirrors objectFilterClauses for collections.
func collectionFilterClauses(f *model.ElementFilter, clauses []string, args []any) ([]string, []any) {
	if f.Version != nil {
		clauses = append(clauses, "c.version_number = ?")
		args = append(args, *f.Version)
	}
	if f.VersionChecksum != "" {
		clauses = append(clauses, "c.version_checksum = ?")
		args = append(args, f.VersionChecksum)
	}
	if f.Tag != "" {
		clauses = append(clauses, "c.tag = ?")
		args = append(args, f.Tag)
	}
	if f.TagOnly() {
		clauses = append(clauses, "c.status = 'USED'")
	}
	return clauses, args
}

func (s *SQLStore) GetCollection(bucket, key string) (*model.Collection, error) {
	query := s.rebind(`
		SELECT ` + collectionColumns + `
		FROM collections c JOIN buckets b ON b.id = c.bucket_id
		WHERE b.name = ? AND c.key = ? AND c.status = 'USED'
		ORDER BY c.version_number DESC LIMIT 1`)

	c, err := scanCollection(s.db.QueryRow(query, bucket, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	if err := s.loadMembers(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLStore) GetCollectionWithFilter(bucket, key string, f *model.ElementFilter) (*model.Collection, error) {
	clauses := []string{"b.name = ?", "c.key = ?"}
	args := []any{bucket, key}
	clauses, args = collectionFilterClauses(f, clauses, args)

	query := s.rebind(`
		SELECT ` + collectionColumns + `
		FROM collections c JOIN buckets b ON b.id = c.bucket_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY c.version_number DESC LIMIT 1`)

	c, err := scanCollection(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	if err := s.loadMembers(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLStore) ListCollections(bucket string, offset, limit int, includeDeleted bool, tag string) ([]*model.Collection, error) {
	clauses := []string{"b.name = ?"}
	args := []any{bucket}
	if !includeDeleted {
		clauses = append(clauses, "c.status = 'USED'")
	}
	if tag != "" {
		clauses = append(clauses, "c.tag = ?")
		args = append(args, tag)
	}
	args = append(args, limit, offset)

	query := s.rebind(`
		SELECT ` + collectionColumns + `
		FROM collections c JOIN buckets b ON b.id = c.bucket_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY c.key, c.version_number
		LIMIT ? OFFSET ?`)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer rows.Close()

	var collections []*model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range collections {
		if err := s.loadMembers(c); err != nil {
			return nil, err
		}
	}
	return collections, nil
}

func (s *SQLStore) ListCollectionVersions(bucket, key string) ([]*model.Collection, error) {
	query := s.rebind(`
		SELECT ` + collectionColumns + `
		FROM collections c JOIN buckets b ON b.id = c.bucket_id
		WHERE b.name = ? AND c.key = ?
		ORDER BY c.version_number`)

	rows, err := s.db.Query(query, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("querying collection versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection version: %w", err)
		}
		versions = append(versions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range versions {
		if err := s.loadMembers(c); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

func (s *SQLStore) Begin() (repo.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &sqlTx{tx: tx, s: s}, nil
}

// sqlTx implements repo.Tx on a *sql.Tx.
type sqlTx struct {
	tx *sql.Tx
	s  *SQLStore
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

func (t *sqlTx) InsertBucket(b *model.Bucket) (int64, error) {
	query := t.s.rebind(`
		INSERT INTO buckets (name, timestamp, creation_date)
		VALUES (?, ?, ?) RETURNING id`)

	var id int64
	err := t.tx.QueryRow(query, b.Name, b.Timestamp, b.CreationDate).Scan(&id)
	if err != nil {
		return 0, t.s.conflictOrWrap(err, "inserting bucket %q", b.Name)
	}
	return id, nil
}

func (t *sqlTx) DeleteBucket(name string) (int64, error) {
	query := t.s.rebind(`DELETE FROM buckets WHERE name = ?`)
	res, err := t.tx.Exec(query, name)
	if err != nil {
		return 0, fmt.Errorf("deleting bucket %q: %w", name, err)
	}
	return res.RowsAffected()
}

func (t *sqlTx) NextObjectVersion(bucket, key string) (int, error) {
	query := t.s.rebind(`
		SELECT COALESCE(MAX(o.version_number) + 1, 0)
		FROM objects o JOIN buckets b ON b.id = o.bucket_id
		WHERE b.name = ? AND o.key = ?`)

	var version int
	if err := t.tx.QueryRow(query, bucket, key).Scan(&version); err != nil {
		return 0, fmt.Errorf("querying next object version: %w", err)
	}
	return version, nil
}

func (t *sqlTx) InsertObject(o *model.Object) (int64, error) {
	query := t.s.rebind(`
		INSERT INTO objects (bucket_id, key, checksum, timestamp, download_name,
			content_type, size, tag, version_number, status, creation_date, version_checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := t.tx.QueryRow(query, o.BucketID, o.Key, o.Checksum, o.Timestamp,
		nullable(o.DownloadName), nullable(o.ContentType), o.Size, nullable(o.Tag),
		o.VersionNumber, o.Status, o.CreationDate, o.VersionChecksum).Scan(&id)
	if err != nil {
		return 0, t.s.conflictOrWrap(err, "inserting object %q version %d", o.Key, o.VersionNumber)
	}
	return id, nil
}

func (t *sqlTx) MarkObjectDeleted(bucket, key string, f *model.ElementFilter) (int64, error) {
	clauses := []string{"b.name = ?", "o.key = ?", "o.status = 'USED'"}
	args := []any{bucket, key}
	clauses, args = objectFilterClauses(f, clauses, args)

	// Join-free UPDATE via subquery keeps the statement portable.
	query := t.s.rebind(`
		UPDATE objects SET status = 'DELETED' WHERE id IN (
			SELECT o.id FROM objects o JOIN buckets b ON b.id = o.bucket_id
			WHERE ` + strings.Join(clauses, " AND ") + `
		)`)

	res, err := t.tx.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("marking object deleted: %w", err)
	}
	return res.RowsAffected()
}

func (t *sqlTx) NextCollectionVersion(bucket, key string) (int, error) {
	query := t.s.rebind(`
		SELECT COALESCE(MAX(c.version_number) + 1, 0)
		FROM collections c JOIN buckets b ON b.id = c.bucket_id
		WHERE b.name = ? AND c.key = ?`)

	var version int
	if err := t.tx.QueryRow(query, bucket, key).Scan(&version); err != nil {
		return 0, fmt.Errorf("querying next collection version: %w", err)
	}
	return version, nil
}

func (t *sqlTx) InsertCollection(c *model.Collection) (int64, error) {
	query := t.s.rebind(`
		INSERT INTO collections (bucket_id, key, timestamp, tag, version_number,
			status, creation_date, version_checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := t.tx.QueryRow(query, c.BucketID, c.Key, c.Timestamp, nullable(c.Tag),
		c.VersionNumber, c.Status, c.CreationDate, c.VersionChecksum).Scan(&id)
	if err != nil {
		return 0, t.s.conflictOrWrap(err, "inserting collection %q version %d", c.Key, c.VersionNumber)
	}
	return id, nil
}

func (t *sqlTx) InsertCollectionMember(collectionID, objectID int64, position int) error {
	query := t.s.rebind(`
		INSERT INTO collection_objects (collection_id, object_id, position)
		VALUES (?, ?, ?)`)

	if _, err := t.tx.Exec(query, collectionID, objectID, position); err != nil {
		return t.s.conflictOrWrap(err, "inserting collection member %d", objectID)
	}
	return nil
}

func (t *sqlTx) MarkCollectionDeleted(bucket, key string, f *model.ElementFilter) (int64, error) {
	clauses := []string{"b.name = ?", "c.key = ?", "c.status = 'USED'"}
	args := []any{bucket, key}
	clauses, args = collectionFilterClauses(f, clauses, args)

	query := t.s.rebind(`
		UPDATE collections SET status = 'DELETED' WHERE id IN (
			SELECT c.id FROM collections c JOIN buckets b ON b.id = c.bucket_id
			WHERE ` + strings.Join(clauses, " AND ") + `
		)`)

	res, err := t.tx.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("marking collection deleted: %w", err)
	}
	return res.RowsAffected()
}

// Compile-time checks
var (
	_ repo.MetadataStore = (*SQLStore)(nil)
	_ repo.Tx            = (*sqlTx)(nil)
)
