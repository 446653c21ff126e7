package objectstore

import (
	"fmt"

	"crepo/internal/config"
	"crepo/internal/encryption"
	"crepo/internal/repo"
)

// NewStoreFromConfig creates an ObjectStore implementation based on the
// store config type, wrapping it with at-rest encryption when configured.
func NewStoreFromConfig(storeCfg config.StoreConfig, encCfg config.EncryptionConfig) (repo.ObjectStore, error) {
	var store repo.ObjectStore
	var err error

	switch storeCfg.Type {
	case "memory":
		store = NewMemoryStore()
	case "filesystem":
		if storeCfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires root to be set")
		}
		store, err = NewFileSystemStore(storeCfg.Root, storeCfg.ReproxyBaseURL)
		if err != nil {
			return nil, err
		}
	case "s3":
		store, err = NewS3Store(S3Options{
			Bucket:          storeCfg.S3Bucket,
			Prefix:          storeCfg.S3Prefix,
			Region:          storeCfg.S3Region,
			Endpoint:        storeCfg.S3Endpoint,
			AccessKeyID:     storeCfg.S3AccessKeyID,
			SecretAccessKey: storeCfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store type: %s", storeCfg.Type)
	}

	encryptor, err := encryption.NewEncryptorFromConfig(encCfg)
	if err != nil {
		return nil, err
	}
	if encryptor != nil {
		store = NewEncryptedStore(store, encryptor)
	}
	return store, nil
}
