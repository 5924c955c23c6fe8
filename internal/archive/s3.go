// Package archive keeps a copy of every rendered certificate in object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrNotConfigured = errors.New("archive: bucket not configured")

// PutObjectAPI is the slice of the S3 client used by the archive.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores certificate PDFs under certificates/<year>/<id>.pdf.
type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3 loads the default AWS config chain for region and returns an archive.
func NewS3(ctx context.Context, bucket, region string) (*S3, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, ErrNotConfigured
	}
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3WithClient(s3.NewFromConfig(cfg), bucket), nil
}

// NewS3WithClient wires an explicit client.
func NewS3WithClient(client PutObjectAPI, bucket string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: "certificates"}
}

// Key returns the object key used for a certificate.
func (a *S3) Key(certificateID string, issued time.Time) string {
	return fmt.Sprintf("%s/%04d/%s.pdf", a.prefix, issued.UTC().Year(), certificateID)
}

// Put uploads pdf and returns its s3:// location.
func (a *S3) Put(ctx context.Context, certificateID string, issued time.Time, pdf []byte) (string, error) {
	key := a.Key(certificateID, issued)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pdf),
		ContentType: aws.String("application/pdf"),
		Metadata: map[string]string{
			"certificate-id": certificateID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload certificate %s: %w", certificateID, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
