package sources

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Fetcher downloads a .tar.gz application bundle from S3 or a compatible
// object store and extracts it. Credentials come from the standard AWS chain
// (instance profile on EC2, env otherwise).
type S3Fetcher struct {
	client *s3.S3
	bucket string
	key    string
	log    *slog.Logger
}

// NewS3Fetcher creates a fetcher for s3://bucket/key.tar.gz.
func NewS3Fetcher(bucket, key, region, endpoint string, log *slog.Logger) (*S3Fetcher, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create AWS session: %w", err)
	}

	return &S3Fetcher{
		client: s3.New(sess),
		bucket: bucket,
		key:    key,
		log:    log,
	}, nil
}

// Fetch downloads the bundle and unpacks it into dstDir. Entries escaping
// the destination are rejected.
func (f *S3Fetcher) Fetch(ctx context.Context, dstDir string) error {
	f.log.Info("Downloading application bundle", "bucket", f.bucket, "key", f.key)

	out, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		return fmt.Errorf("s3 get s3://%s/%s: %w", f.bucket, f.key, err)
	}
	defer out.Body.Close()

	return extractTarGz(out.Body, dstDir)
}

func (f *S3Fetcher) Name() string {
	return fmt.Sprintf("s3-%s", f.bucket)
}

func extractTarGz(r io.Reader, dstDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("bundle is not gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt bundle: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(dstDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			mode := os.FileMode(hdr.Mode).Perm()
			if mode == 0 {
				mode = 0644
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
