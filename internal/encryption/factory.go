package encryption

import (
	"fmt"

	"crepo/internal/config"
	"crepo/internal/repo"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. Returns nil when encryption is not configured.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (repo.Encryptor, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
