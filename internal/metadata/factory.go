package metadata

import (
	"fmt"

	"crepo/internal/config"
	"crepo/internal/repo"
)

// NewStoreFromConfig creates a MetadataStore implementation based on the
// metadata config type.
func NewStoreFromConfig(cfg config.MetadataConfig) (repo.MetadataStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite metadata store")
		}
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewSQLiteStore(":memory:")
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres metadata store")
		}
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %s", cfg.Type)
	}
}
