package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/gowe/pkg/cwl"
)

// S3StagerConfig contains S3/S3-compatible object storage stager settings.
type S3StagerConfig struct {
	// Bucket is the destination bucket for StageOut uploads.
	Bucket string

	// Prefix is prepended to every StageOut object key, under taskID/.
	Prefix string

	// Region is the AWS region; left empty to use the SDK's default
	// resolution chain (env, shared config, IMDS).
	Region string

	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// stores (e.g. MinIO, a cluster-local object gateway).
	Endpoint string

	// UsePathStyle forces path-style addressing (bucket in the URL path
	// rather than the host), required by most non-AWS S3-compatible
	// endpoints.
	UsePathStyle bool
}

// S3Stager stages files to and from S3 or an S3-compatible object store,
// mirroring HTTPStager's shape for a bucket/key backend instead of a bare
// URL. StageIn accepts any s3://bucket/key location; StageOut always
// writes under the configured bucket and prefix.
type S3Stager struct {
	config S3StagerConfig
	client *s3.Client
}

// NewS3Stager builds an S3Stager from cfg, resolving AWS credentials via
// the SDK's default chain (environment, shared config file, instance
// metadata) unless overridden by the process environment.
func NewS3Stager(ctx context.Context, cfg S3StagerConfig) (*S3Stager, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 stager: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Stager{config: cfg, client: client}, nil
}

// StageIn downloads an s3://bucket/key object to destPath.
func (s *S3Stager) StageIn(ctx context.Context, location string, destPath string) error {
	scheme, path := cwl.ParseLocationScheme(location)
	if scheme != cwl.SchemeS3 {
		return fmt.Errorf("s3 stager: unsupported scheme %q", scheme)
	}

	bucket, key, err := splitBucketKey(path)
	if err != nil {
		return fmt.Errorf("s3 stager: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("s3 stager: mkdir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("s3 stager: create temp file: %w", err)
	}

	downloader := manager.NewDownloader(s.client)
	_, err = downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("s3 stager: download s3://%s/%s: %w", bucket, key, err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("s3 stager: close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("s3 stager: rename temp file: %w", err)
	}

	return nil
}

// StageOut uploads srcPath to the configured bucket under
// prefix/taskID/basename and returns its s3:// location.
func (s *S3Stager) StageOut(ctx context.Context, srcPath string, taskID string) (string, error) {
	if s.config.Bucket == "" {
		return "", fmt.Errorf("s3 stager: no bucket configured")
	}

	file, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("s3 stager: open file: %w", err)
	}
	defer file.Close()

	key := s.objectKey(taskID, filepath.Base(srcPath))

	uploader := manager.NewUploader(s.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("s3 stager: upload to s3://%s/%s: %w", s.config.Bucket, key, err)
	}

	return cwl.BuildLocation(cwl.SchemeS3, s.config.Bucket+"/"+key), nil
}

func (s *S3Stager) objectKey(taskID, basename string) string {
	prefix := strings.Trim(s.config.Prefix, "/")
	if prefix == "" {
		return taskID + "/" + basename
	}
	return prefix + "/" + taskID + "/" + basename
}

// splitBucketKey parses "bucket/key/with/slashes" into its bucket and key
// parts, as left by ParseLocationScheme stripping the s3:// prefix.
func splitBucketKey(path string) (bucket, key string, err error) {
	path = strings.TrimPrefix(path, "/")
	i := strings.Index(path, "/")
	if i < 0 {
		return "", "", fmt.Errorf("location %q has no object key", path)
	}
	return path[:i], path[i+1:], nil
}
