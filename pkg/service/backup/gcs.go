package backup

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// GCS uploads objects into one Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

var _ Uploader = &GCS{}

// NewGCS opens a client for bucket. opts are passed to storage.NewClient,
// e.g. option.WithEndpoint for an emulator.
func NewGCS(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	return &GCS{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
	}, nil
}

func (g *GCS) Upload(ctx context.Context, object string, r io.Reader) error {
	w := g.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType(object)

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write object", goerr.V("bucket", g.name), goerr.V("object", object))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize object", goerr.V("bucket", g.name), goerr.V("object", object))
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
