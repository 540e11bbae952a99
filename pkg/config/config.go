package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/shadowdrop/shadowdrop-go/pkg/store"
)

// Environment variable names for server configuration
const (
	EnvPort          = "SHADOWDROP_PORT"
	EnvStoreType     = "SHADOWDROP_STORE_TYPE"
	EnvBadgerPath    = "SHADOWDROP_BADGER_PATH"
	EnvRedisAddress  = "SHADOWDROP_REDIS_ADDRESS"
	EnvRedisPassword = "SHADOWDROP_REDIS_PASSWORD"
	EnvRedisDB       = "SHADOWDROP_REDIS_DB"
	EnvSealerKey     = "SHADOWDROP_SEALER_KEY"
	EnvProverType    = "SHADOWDROP_PROVER_TYPE"
	EnvProverURL     = "SHADOWDROP_PROVER_URL"
	EnvDebug         = "SHADOWDROP_DEBUG"
)

type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

func (s StoreType) String() string {
	return string(s)
}

type ProverType string

const (
	ProverTypeStub ProverType = "stub"
	ProverTypeHTTP ProverType = "http"
)

func (p ProverType) String() string {
	return string(p)
}

// ProverConfig selects and configures the proof backend. The stub
// backend needs nothing; the http backend needs an endpoint.
type ProverConfig struct {
	Type ProverType `json:"type" yaml:"type"`
	Url  string     `json:"url,omitempty" yaml:"url,omitempty"`
}

func (pc *ProverConfig) Validate() error {
	var allErrors field.ErrorList
	switch pc.Type {
	case ProverTypeStub:
	case ProverTypeHTTP:
		if pc.Url == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("url"), "url is required for the http prover"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("type"), pc.Type,
			[]string{string(ProverTypeStub), string(ProverTypeHTTP)}))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ServerConfig represents the complete configuration for a campaign server
type ServerConfig struct {
	Port int `json:"port"`

	// Store configuration
	StoreType     StoreType `json:"store_type"`
	BadgerPath    string    `json:"badger_path,omitempty"`
	RedisAddress  string    `json:"redis_address,omitempty"`
	RedisPassword string    `json:"redis_password,omitempty"`
	RedisDB       int       `json:"redis_db,omitempty"`

	// SealerKey encrypts campaign artifacts at rest in the durable
	// stores: 32 bytes, hex-encoded. Empty disables sealing.
	SealerKey string `json:"sealer_key,omitempty"`

	Prover ProverConfig `json:"prover"`

	// Operational settings
	Debug bool `json:"debug"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1-65535, got %d", c.Port)
	}

	switch c.StoreType {
	case StoreTypeMemory:
	case StoreTypeBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("badger path cannot be empty for the badger store")
		}
	case StoreTypeRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis address cannot be empty for the redis store")
		}
	default:
		return fmt.Errorf("unsupported store type %q. Supported: %s, %s, %s",
			c.StoreType, StoreTypeMemory, StoreTypeBadger, StoreTypeRedis)
	}

	if c.SealerKey != "" {
		if _, err := c.SealerKeyBytes(); err != nil {
			return err
		}
	}

	if err := c.Prover.Validate(); err != nil {
		return fmt.Errorf("prover config invalid: %w", err)
	}

	return nil
}

// SealerKeyBytes decodes the hex sealing key. Returns nil when sealing
// is disabled.
func (c *ServerConfig) SealerKeyBytes() ([]byte, error) {
	if c.SealerKey == "" {
		return nil, nil
	}
	key := strings.TrimPrefix(c.SealerKey, "0x")
	b, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("sealer key must be hex: %w", err)
	}
	if len(b) != store.SealerKeySize {
		return nil, fmt.Errorf("sealer key must be %d bytes (%d hex chars), got %d bytes",
			store.SealerKeySize, store.SealerKeySize*2, len(b))
	}
	return b, nil
}
