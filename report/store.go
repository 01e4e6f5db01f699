package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/okx/deploy-bot/utils"
)

// Store persists an encoded Summary.
type Store interface {
	Save(ctx context.Context, s *Summary, data []byte) error
	Location(s *Summary) string
}

var (
	_ Store = FileStore{}
	_ Store = (*S3Store)(nil)
)

// FileStore writes the summary to a fixed local path, replacing it atomically.
type FileStore struct {
	Path string
}

// Save writes data to a temporary file next to Path and renames it into place.
func (f FileStore) Save(_ context.Context, _ *Summary, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".summary-*.json")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod report: %w", err)
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Location returns the local path of the summary.
func (f FileStore) Location(_ *Summary) string {
	return f.Path
}

// S3Store uploads each summary as <prefix><runId>.json.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store creates the client for cfg. No request is made until Save.
func NewS3Store(cfg utils.S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client for %s: %w", cfg.Endpoint, err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) objectName(sum *Summary) string {
	return path.Join(s.prefix, sum.RunID+".json")
}

// Save uploads data as a JSON object named after the run ID.
func (s *S3Store) Save(ctx context.Context, sum *Summary, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(sum), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload summary to s3://%s/%s: %w", s.bucket, s.objectName(sum), err)
	}
	return nil
}

// Location returns the s3:// URL of the summary object.
func (s *S3Store) Location(sum *Summary) string {
	return "s3://" + s.bucket + "/" + s.objectName(sum)
}

// Persist encodes s once and saves it to every store, in order. Every store is
// attempted; the returned error joins all failures.
func Persist(ctx context.Context, s *Summary, stores ...Store) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	var errs []error
	for _, st := range stores {
		if err := st.Save(ctx, s, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
