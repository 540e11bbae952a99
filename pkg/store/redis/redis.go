package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shadowdrop/shadowdrop-go/pkg/store"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixCampaign    = "shadowdrop:campaign:"
	keySchemaVersion     = "shadowdrop:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Index set for listing (Redis has no native prefix iteration)
	keySetCampaigns = "shadowdrop:campaigns:index"

	opTimeout = 5 * time.Second
)

var _ store.ICampaignStore = (*RedisStore)(nil)

// RedisStore is a Redis-backed campaign store for deployments where
// the server runs replicated and badger's single-process ownership
// doesn't fit. Records are sealed before SET when a Sealer is
// configured.
type RedisStore struct {
	client    *redis.Client
	sealer    *store.Sealer
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional extra prefix for all keys, for
	// multi-tenant setups.
	KeyPrefix string
}

// NewRedisStore connects to Redis and validates the schema version.
func NewRedisStore(cfg *RedisConfig, sealer *store.Sealer, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to Redis at %s", cfg.Address)
	}

	rs := &RedisStore{
		client:    client,
		sealer:    sealer,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis campaign store initialized",
		"address", cfg.Address, "db", cfg.DB, "sealed", sealer != nil)

	return rs, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisStore) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisStore) campaignKey(id types.Hash) string {
	return r.prefixKey(keyPrefixCampaign + id.Hex())
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

func (r *RedisStore) encode(campaign *types.Campaign) ([]byte, error) {
	data, err := store.MarshalCampaign(campaign)
	if err != nil {
		return nil, err
	}
	return r.sealer.Seal(data)
}

func (r *RedisStore) decode(sealed []byte) (*types.Campaign, error) {
	data, err := r.sealer.Open(sealed)
	if err != nil {
		return nil, err
	}
	return store.UnmarshalCampaign(data)
}

// PutCampaign stores a new campaign. SETNX makes create-only atomic
// even with replicated servers racing on the same id.
func (r *RedisStore) PutCampaign(campaign *types.Campaign) error {
	if campaign == nil {
		return fmt.Errorf("cannot store nil Campaign")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := r.encode(campaign)
	if err != nil {
		return fmt.Errorf("failed to encode Campaign: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	created, err := r.client.SetNX(ctx, r.campaignKey(campaign.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store Campaign: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: campaign %s", types.ErrCampaignExists, campaign.ID.Hex())
	}

	if err := r.client.SAdd(ctx, r.prefixKey(keySetCampaigns), campaign.ID.Hex()).Err(); err != nil {
		return fmt.Errorf("failed to index Campaign: %w", err)
	}
	return nil
}

// GetCampaign retrieves a campaign by id, or nil if absent.
func (r *RedisStore) GetCampaign(id types.Hash) (*types.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.campaignKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Campaign: %w", err)
	}

	campaign, err := r.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Campaign: %w", err)
	}
	return campaign, nil
}

// ListCampaigns returns all campaigns sorted by creation time.
func (r *RedisStore) ListCampaigns() ([]*types.Campaign, error) {
	return r.list(func(*types.Campaign) bool { return true })
}

// ListCampaignsByAuthority returns one authority's campaigns sorted by
// creation time.
func (r *RedisStore) ListCampaignsByAuthority(authority string) ([]*types.Campaign, error) {
	return r.list(func(c *types.Campaign) bool { return c.Authority == authority })
}

func (r *RedisStore) list(keep func(*types.Campaign) bool) ([]*types.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.prefixKey(keySetCampaigns)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list Campaign ids: %w", err)
	}

	campaigns := make([]*types.Campaign, 0, len(ids))
	for _, hexID := range ids {
		id, err := types.HashFromHex(hexID)
		if err != nil {
			r.logger.Sugar().Warnw("Invalid Campaign id in index, skipping",
				"id", hexID, "error", err)
			continue
		}

		data, err := r.client.Get(ctx, r.campaignKey(id)).Bytes()
		if err == redis.Nil {
			continue // indexed but deleted out of band
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load Campaign %s: %w", hexID, err)
		}

		campaign, err := r.decode(data)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to decode Campaign, skipping",
				"id", hexID, "error", err)
			continue
		}

		if keep(campaign) {
			campaigns = append(campaigns, campaign)
		}
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.Before(campaigns[j].CreatedAt)
	})

	return campaigns, nil
}

// MarkClaimed flags one recipient as claimed. The read-modify-write is
// guarded by WATCH so concurrent markers retry instead of clobbering
// each other.
func (r *RedisStore) MarkClaimed(campaignID types.Hash, leafIndex int, at time.Time) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := r.campaignKey(campaignID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("%w: %s", types.ErrCampaignNotFound, campaignID.Hex())
		}
		if err != nil {
			return err
		}

		campaign, err := r.decode(data)
		if err != nil {
			return fmt.Errorf("failed to decode Campaign: %w", err)
		}

		if leafIndex < 0 || leafIndex >= len(campaign.Recipients) {
			return fmt.Errorf("%w: leaf index %d out of range for campaign with %d recipients",
				types.ErrInvalidInput, leafIndex, len(campaign.Recipients))
		}

		recipient := &campaign.Recipients[leafIndex]
		if recipient.Claimed {
			return nil
		}
		recipient.Claimed = true
		claimedAt := at
		recipient.ClaimedAt = &claimedAt

		updated, err := r.encode(campaign)
		if err != nil {
			return fmt.Errorf("failed to encode Campaign: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	// Bounded optimistic retry on WATCH conflicts.
	for attempt := 0; attempt < 5; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("failed to mark claim for campaign %s: too many conflicts", campaignID.Hex())
}

// Close shuts down the store. Idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis campaign store closed")
	return nil
}

// HealthCheck verifies the store is operational.
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.client.Ping(ctx).Err()
}
