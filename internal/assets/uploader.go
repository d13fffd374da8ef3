package assets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader stores assets in an S3-compatible bucket (AWS or MinIO via a
// custom endpoint).
type S3Uploader struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// S3Options configures the uploader; Endpoint and PathStyle exist for
// MinIO-style backends.
type S3Options struct {
	Bucket     string
	Region     string
	Endpoint   string
	PathStyle  bool
	PublicBase string
}

// NewS3Uploader builds the S3 client from ambient AWS credentials.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: opts.PathStyle,
					SigningRegion:     opts.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
	})
	return &S3Uploader{client: client, bucket: opts.Bucket, publicBase: strings.TrimSuffix(opts.PublicBase, "/")}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, productID, filename string, data []byte) (string, error) {
	key := productID + "/" + filename
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	if u.publicBase != "" {
		return u.publicBase + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

// LocalUploader writes assets under a base directory, for development
// without an object store.
type LocalUploader struct {
	baseDir string
}

func NewLocalUploader(baseDir string) *LocalUploader {
	if baseDir == "" {
		baseDir = "./output/assets"
	}
	return &LocalUploader{baseDir: baseDir}
}

func (u *LocalUploader) Upload(_ context.Context, productID, filename string, data []byte) (string, error) {
	path := filepath.Join(u.baseDir, productID, filepath.Base(filename))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}
