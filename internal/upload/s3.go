package upload

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lapse-go/internal/config"
	"lapse-go/internal/lapse"
)

// S3Uploader stores uploads in a bucket at prefix + dest.Key using the
// multipart upload manager.
type S3Uploader struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

var _ lapse.Uploader = (*S3Uploader)(nil)

// NewS3Uploader builds an S3 client from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain. A
// custom endpoint switches to path-style addressing for MinIO and friends.
func NewS3Uploader(ctx context.Context, cfg config.UploadConfig) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 upload requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ObjectKey returns the object key an upload destination maps to.
func (u *S3Uploader) ObjectKey(dest lapse.UploadDestination) string {
	if u.prefix == "" {
		return dest.Key
	}
	return path.Join(u.prefix, dest.Key)
}

func (u *S3Uploader) Put(ctx context.Context, dest lapse.UploadDestination, r io.Reader, size int64) error {
	if dest.Key == "" {
		return fmt.Errorf("s3 upload requires a destination key")
	}

	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.ObjectKey(dest)),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("uploading to s3://%s/%s: %w", u.bucket, u.ObjectKey(dest), err)
	}
	return nil
}
