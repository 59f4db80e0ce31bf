package upload

import (
	"context"
	"fmt"

	"lapse-go/internal/config"
	"lapse-go/internal/lapse"
)

// NewUploaderFromConfig creates an Uploader based on the upload config type.
func NewUploaderFromConfig(ctx context.Context, cfg config.UploadConfig) (lapse.Uploader, error) {
	switch cfg.Type {
	case "http", "":
		return NewHTTPUploader(nil), nil
	case "s3":
		return NewS3Uploader(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem upload requires fs_root to be set")
		}
		return NewFileSystemUploader(cfg.FSRoot)
	case "memory":
		return NewMemoryUploader(), nil
	default:
		return nil, fmt.Errorf("unknown upload type: %s", cfg.Type)
	}
}
