package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"crepo/internal/repo"
)

// S3Store stores content in a single S3 bucket. Repository buckets map to
// key prefixes:
//
//	<prefix>/<bucket>/<checksum[0:2]>/<checksum>   committed content
//	<prefix>/<bucket>/.bucket                      bucket marker
//	<prefix>/tmp/<uuid>                            temp uploads
//
// Redirects are served as presigned GET URLs.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string // the backing S3 bucket, not a repository bucket
	prefix   string
}

// S3Options configures an S3Store. Endpoint is optional and enables
// path-style addressing for S3-compatible stores. Static credentials are
// optional; the default AWS credential chain applies otherwise.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// presignExpiry bounds how long handed-out redirect URLs stay valid.
const presignExpiry = time.Hour

// NewS3Store creates an S3-backed object store.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	prefix := strings.Trim(opts.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		bucket:   opts.Bucket,
		prefix:   prefix,
	}, nil
}

func (s *S3Store) objectKey(bucket, checksum string) string {
	return s.prefix + bucket + "/" + checksum[:2] + "/" + checksum
}

func (s *S3Store) markerKey(bucket string) string {
	return s.prefix + bucket + "/.bucket"
}

// UploadTemp streams r to a temp key, computing the content checksum on
// the way. The upload manager splits large payloads into multipart chunks
// without buffering the whole stream.
func (s *S3Store) UploadTemp(r io.Reader) (*repo.UploadInfo, error) {
	var checksums repo.ChecksumEngine
	hasher := checksums.NewHash()
	counter := &countingReader{r: io.TeeReader(r, hasher)}

	tempKey := s.prefix + "tmp/" + uuid.New().String()
	_, err := s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(tempKey),
		Body:   counter,
	})
	if err != nil {
		return nil, fmt.Errorf("uploading temp object: %w", err)
	}

	return &repo.UploadInfo{
		TempRef:  tempKey,
		Checksum: fmt.Sprintf("%x", hasher.Sum(nil)),
		Size:     counter.n,
	}, nil
}

func (s *S3Store) Exists(bucket, checksum string) (bool, error) {
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(bucket, checksum)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("checking object: %w", err)
	}
	return true, nil
}

// Commit copies the temp object to its checksum address and removes the
// temp object. If the target already exists only the temp is removed.
func (s *S3Store) Commit(bucket string, u *repo.UploadInfo) error {
	exists, err := s.Exists(bucket, u.Checksum)
	if err != nil {
		return err
	}
	if !exists {
		source := url.PathEscape(s.bucket + "/" + u.TempRef)
		_, err := s.client.CopyObject(context.Background(), &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			CopySource: aws.String(source),
			Key:        aws.String(s.objectKey(bucket, u.Checksum)),
		})
		if err != nil {
			return fmt.Errorf("committing object: %w", err)
		}
	}
	return s.DeleteTemp(u)
}

func (s *S3Store) Open(bucket, checksum string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(bucket, checksum)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("content not found: %s/%s", bucket, checksum)
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(bucket, checksum string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(bucket, checksum)),
	})
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

func (s *S3Store) DeleteTemp(u *repo.UploadInfo) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(u.TempRef),
	})
	if err != nil {
		return fmt.Errorf("deleting temp object: %w", err)
	}
	return nil
}

// CreateBucket writes the bucket marker object.
func (s *S3Store) CreateBucket(bucket string) error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(bucket)),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("creating bucket marker: %w", err)
	}
	return nil
}

// DeleteBucket removes the bucket marker. Fails while any committed
// content remains under the bucket's prefix.
func (s *S3Store) DeleteBucket(bucket string) error {
	prefix := s.prefix + bucket + "/"
	marker := s.markerKey(bucket)

	out, err := s.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("listing bucket contents: %w", err)
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) != marker {
			return fmt.Errorf("bucket not empty: %s", bucket)
		}
	}

	_, err = s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(marker),
	})
	if err != nil {
		return fmt.Errorf("deleting bucket marker: %w", err)
	}
	return nil
}

func (s *S3Store) HasRedirect() bool { return true }

// RedirectURLs returns a presigned GET URL for the committed bytes.
func (s *S3Store) RedirectURLs(bucket, checksum string) ([]string, error) {
	req, err := s.presign.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(bucket, checksum)),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presigning object url: %w", err)
	}
	return []string{req.URL}, nil
}

// ValidateSetup verifies the backing S3 bucket is reachable.
func (s *S3Store) ValidateSetup() error {
	_, err := s.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket not accessible: %w", err)
	}
	return nil
}

// countingReader counts bytes as they stream through.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time check that S3Store implements repo.ObjectStore
var _ repo.ObjectStore = (*S3Store)(nil)
