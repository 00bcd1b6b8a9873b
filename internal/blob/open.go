package blob

import (
	"context"
	"fmt"

	"github.com/nvandessel/lifesim/internal/config"
)

// Open selects a Store implementation from the publish configuration.
func Open(ctx context.Context, cfg config.PublishConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.FS.Root)
	case DriverS3:
		return NewS3(ctx, S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
