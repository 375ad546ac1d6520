package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/shpitdev/conference-icp-scout/internal/extract"
	"github.com/shpitdev/conference-icp-scout/internal/pipeline"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/io/local"
	s3io "github.com/shpitdev/conference-icp-scout/pkg/pipeline/io/s3"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/schema"
)

const csvContentType = "text/csv"

// Exporter writes CSV tables to a local path or, for s3://bucket/key
// destinations, to an S3 object. The S3 client is created on first use.
type Exporter struct {
	S3 s3io.Config
	// S3Client overrides the client built from S3.
	S3Client s3io.PutObjectAPI

	once    sync.Once
	client  s3io.PutObjectAPI
	initErr error
}

// Export writes the validated table to dest.
func (e *Exporter) Export(ctx context.Context, dest string, rows []pipeline.Row) error {
	return store(ctx, e, dest, rows, pipeline.WriteCSV)
}

// ExportCompanies writes the raw company list to dest.
func (e *Exporter) ExportCompanies(ctx context.Context, dest string, companies []extract.Company) error {
	return store(ctx, e, dest, companies, pipeline.WriteCompaniesCSV)
}

func (e *Exporter) s3Client(ctx context.Context) (s3io.PutObjectAPI, error) {
	if e.S3Client != nil {
		return e.S3Client, nil
	}
	e.once.Do(func() {
		e.client, e.initErr = s3io.NewClient(ctx, e.S3)
	})
	return e.client, e.initErr
}

func store[T any](ctx context.Context, e *Exporter, dest string, rows []T, encode local.EncodeFunc[T]) error {
	var out core.OutputAdapter[T]
	switch schema.ResolveDestination(dest) {
	case schema.DestinationS3:
		bucket, key, err := s3io.ParseURI(dest)
		if err != nil {
			return err
		}
		client, err := e.s3Client(ctx)
		if err != nil {
			return fmt.Errorf("create s3 client: %w", err)
		}
		out = s3io.Output[T]{Client: client, Bucket: bucket, Key: key, ContentType: csvContentType, Encode: encode}
	default:
		if dest == "" {
			return fmt.Errorf("output path is required")
		}
		out = local.FileOutput[T]{Path: dest, Encode: encode}
	}
	return out.Store(ctx, rows)
}
