package remote

import (
	"fmt"

	"lapse-go/internal/config"
	"lapse-go/internal/lapse"
)

// Remote bundles the two server-side collaborators.
type Remote interface {
	lapse.DeviceRegistry
	lapse.DraftService
}

// NewRemoteFromConfig creates the device registry and draft service based on
// the configuration type.
func NewRemoteFromConfig(cfg config.RemoteConfig, idGen lapse.IDGenerator, clock lapse.Clock) (Remote, error) {
	switch cfg.Type {
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http remote requires base_url")
		}
		return NewClient(cfg.BaseURL, cfg.APIToken, nil), nil
	case "local":
		if cfg.MetadataDir == "" {
			return nil, fmt.Errorf("local remote requires metadata_dir")
		}
		return NewLocal(cfg.MetadataDir, idGen, clock), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %q", cfg.Type)
	}
}
