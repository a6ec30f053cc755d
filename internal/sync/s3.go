package sync

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Destination uploads the record export to an S3-compatible bucket. Each
// sync overwrites the configured object and adds a day-stamped snapshot next
// to it, so the bucket keeps a daily history of the service log.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
	now    func() time.Time
}

// NewS3Destination creates an S3 destination. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		key:    key,
		now:    time.Now,
	}, nil
}

// Write uploads the payload to the configured key and to a day-stamped
// snapshot derived from it.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	for _, key := range []string{d.key, d.snapshotKey()} {
		if err := d.put(ctx, key, data); err != nil {
			return err
		}
	}
	return nil
}

// snapshotKey stamps the object key with the current UTC date:
// exports/records.jsonl becomes exports/records-2026-09-01.jsonl.
func (d *S3Destination) snapshotKey() string {
	stamp := d.now().UTC().Format("2006-01-02")
	if i := strings.LastIndex(d.key, "."); i > strings.LastIndex(d.key, "/") {
		return d.key[:i] + "-" + stamp + d.key[i:]
	}
	return d.key + "-" + stamp
}

func (d *S3Destination) put(ctx context.Context, key string, data []byte) error {
	contentType := "application/x-ndjson"
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}
