// Package s3 writes pipeline output to S3 (or an S3-compatible store).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/io/local"
)

// Config contains minimal configuration for creating an S3 client.
// Values are optional and fall back to the standard AWS config/credential chain.
type Config struct {
	Region string
	// Profile selects a named shared config/credentials profile.
	Profile string
	// UsePathStyle forces path-style addressing (MinIO and friends).
	UsePathStyle bool
}

// PutObjectAPI is the slice of the S3 client the output adapter needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient creates an S3 client using the default AWS configuration chain,
// with optional overrides from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// ParseURI splits s3://bucket/key into bucket and key.
func ParseURI(raw string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse s3 uri: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("not an s3 uri: %q", raw)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs bucket and key: %q", raw)
	}
	return bucket, key, nil
}

// Output stores encoded rows as a single S3 object.
type Output[Out any] struct {
	Client      PutObjectAPI
	Bucket      string
	Key         string
	ContentType string
	Encode      local.EncodeFunc[Out]
}

var _ core.OutputAdapter[string] = Output[string]{}

func (o Output[Out]) Store(ctx context.Context, rows []Out) error {
	var buf bytes.Buffer
	if err := o.Encode(&buf, rows); err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(o.Key),
		Body:   bytes.NewReader(buf.Bytes()),
	}
	if o.ContentType != "" {
		in.ContentType = aws.String(o.ContentType)
	}
	if _, err := o.Client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", o.Bucket, o.Key, err)
	}
	return nil
}
