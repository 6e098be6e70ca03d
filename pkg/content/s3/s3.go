// Package s3 implements content.Store on Amazon S3 or S3-compatible storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Object metadata keys carrying a binary's checksums.
const (
	metaSHA1   = "sha1"
	metaMD5    = "md5"
	metaSHA256 = "sha256"
)

// API is the subset of the S3 client used by the store.
type API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ContentStore stores binaries as objects keyed by SHA-1.
//
// Key layout: <prefix><sha1[0:2]>/<sha1>. Checksums travel as object
// metadata so Stat is a single HeadObject.
//
// Uploads are spooled to a local temp file while hashing: the SHA-1 (and
// therefore the object key) is only known after the last byte is read.
//
// Thread Safety:
// Safe for concurrent use. Concurrent uploads of the same bytes write the
// same object twice, which S3 resolves as last-writer-wins on identical data.
type S3ContentStore struct {
	client    API
	uploader  *manager.Uploader
	bucket    string
	keyPrefix string
	spoolDir  string
}

// Config contains configuration for the S3 binary store.
type Config struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	KeyPrefix string

	// PartSize is the multipart upload part size (default: 10MB, min 5MB)
	PartSize int64

	// SpoolDir is where uploads are buffered (default: os.TempDir())
	SpoolDir string
}

// NewS3ContentStore creates a store on an existing bucket.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Client, bucket and upload tuning
//
// Returns:
//   - *S3ContentStore: Initialized store
//   - error: Returns error on invalid configuration
func NewS3ContentStore(ctx context.Context, cfg Config) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = 10 * 1024 * 1024
	}
	if partSize < manager.MinUploadPartSize {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}

	uploader := manager.NewUploader(cfg.Client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	return &S3ContentStore{
		client:    cfg.Client,
		uploader:  uploader,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		spoolDir:  cfg.SpoolDir,
	}, nil
}

func (s *S3ContentStore) objectKey(sha1 string) string {
	return s.keyPrefix + sha1[0:2] + "/" + sha1
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

func (s *S3ContentStore) Stat(ctx context.Context, sha1 string) (*content.BinaryInfo, error) {
	if !content.ValidSHA1(sha1) {
		return nil, fmt.Errorf("binary %q: %w", sha1, content.ErrInvalidChecksum)
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(sha1)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("binary %s: %w", sha1, content.ErrBinaryNotFound)
		}
		return nil, fmt.Errorf("failed to stat binary %s: %w", sha1, err)
	}

	info := &content.BinaryInfo{
		Checksums: storage.Checksums{
			SHA1:   out.Metadata[metaSHA1],
			MD5:    out.Metadata[metaMD5],
			SHA256: out.Metadata[metaSHA256],
		},
		Size: aws.ToInt64(out.ContentLength),
	}
	if info.Checksums.SHA1 == "" {
		info.Checksums.SHA1 = sha1
	}
	return info, nil
}

func (s *S3ContentStore) Read(ctx context.Context, sha1 string) (io.ReadCloser, error) {
	if !content.ValidSHA1(sha1) {
		return nil, fmt.Errorf("binary %q: %w", sha1, content.ErrInvalidChecksum)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(sha1)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("binary %s: %w", sha1, content.ErrBinaryNotFound)
		}
		return nil, fmt.Errorf("failed to read binary %s: %w", sha1, err)
	}
	return out.Body, nil
}

func (s *S3ContentStore) Write(ctx context.Context, r io.Reader) (*content.BinaryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spool, err := os.CreateTemp(s.spoolDir, "dittorepo-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		_ = os.Remove(spool.Name())
	}()

	d := content.NewDigester()
	if _, err := io.Copy(io.MultiWriter(spool, d), r); err != nil {
		return nil, fmt.Errorf("failed to spool binary: %w", err)
	}
	info := d.Info()
	sha1 := info.Checksums.SHA1

	if existing, err := s.Stat(ctx, sha1); err == nil {
		return existing, nil
	} else if !content.IsNotFound(err) {
		return nil, err
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(sha1)),
		Body:          spool,
		ContentLength: aws.Int64(info.Size),
		Metadata: map[string]string{
			metaSHA1:   sha1,
			metaMD5:    info.Checksums.MD5,
			metaSHA256: info.Checksums.SHA256,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload binary %s: %w", sha1, err)
	}

	logger.Debug("Uploaded binary %s to s3://%s/%s (%s bytes)",
		sha1, s.bucket, s.objectKey(sha1), strconv.FormatInt(info.Size, 10))
	return info, nil
}

func (s *S3ContentStore) Delete(ctx context.Context, sha1 string) error {
	if !content.ValidSHA1(sha1) {
		return fmt.Errorf("binary %q: %w", sha1, content.ErrInvalidChecksum)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(sha1)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete binary %s: %w", sha1, err)
	}
	return nil
}

func (s *S3ContentStore) list(ctx context.Context, fn func(obj types.Object)) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list binaries: %w", err)
		}
		for _, obj := range page.Contents {
			fn(obj)
		}
	}
	return nil
}

func (s *S3ContentStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.list(ctx, func(obj types.Object) {
		key := aws.ToString(obj.Key)
		if len(key) < 40 {
			return
		}
		if sha1 := key[len(key)-40:]; content.ValidSHA1(sha1) {
			keys = append(keys, sha1)
		}
	})
	return keys, err
}

func (s *S3ContentStore) Stats(ctx context.Context) (content.Stats, error) {
	var stats content.Stats
	err := s.list(ctx, func(obj types.Object) {
		stats.Binaries++
		stats.TotalSize += aws.ToInt64(obj.Size)
	})
	return stats, err
}
