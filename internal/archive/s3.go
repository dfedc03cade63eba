package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

// S3Uploader puts archive files into a bucket
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader loads the default AWS credential chain for region
func NewS3Uploader(ctx context.Context, region, bucket, prefix string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: unable to load SDK config: %w", err)
	}

	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Upload sends the file at path to bucket/prefix/key
func (u *S3Uploader) Upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: failed to open %s: %w", path, err)
	}
	defer f.Close()

	objectKey := key
	if u.prefix != "" {
		objectKey = u.prefix + "/" + key
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(objectKey),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("archive: unable to upload %s to S3: %w", objectKey, err)
	}

	log.Printf("Uploaded archive to s3://%s/%s", u.bucket, objectKey)
	return nil
}
