package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/service/backup"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
)

// Storage holds the flags of the GCS backup target.
type Storage struct {
	bucket   string
	prefix   string
	endpoint string
}

func (x *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "GCS bucket receiving box backups",
			Category:    "Storage",
			Sources:     cli.EnvVars("ANEMONE_BACKUP_BUCKET"),
			Destination: &x.bucket,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object name prefix inside the bucket",
			Category:    "Storage",
			Value:       "anemone",
			Sources:     cli.EnvVars("ANEMONE_BACKUP_PREFIX"),
			Destination: &x.prefix,
		},
		&cli.StringFlag{
			Name:        "storage-endpoint",
			Usage:       "Storage API endpoint (e.g. a local emulator)",
			Category:    "Storage",
			Hidden:      true,
			Sources:     cli.EnvVars("ANEMONE_STORAGE_ENDPOINT"),
			Destination: &x.endpoint,
		},
	}
}

func (x Storage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", x.bucket),
		slog.String("prefix", x.prefix),
		slog.String("endpoint", x.endpoint),
	)
}

// Bucket returns the bucket name.
func (x *Storage) Bucket() string {
	return x.bucket
}

// Prefix returns the object name prefix.
func (x *Storage) Prefix() string {
	return x.prefix
}

// Configure opens the GCS bucket. A custom endpoint is used without
// authentication.
func (x *Storage) Configure(ctx context.Context) (*backup.GCS, error) {
	if x.bucket == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "bucket is required")
	}

	var opts []option.ClientOption
	if x.endpoint != "" {
		opts = append(opts, option.WithEndpoint(x.endpoint), option.WithoutAuthentication())
	}

	gcs, err := backup.NewGCS(ctx, x.bucket, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open backup bucket", goerr.V("bucket", x.bucket))
	}
	return gcs, nil
}
