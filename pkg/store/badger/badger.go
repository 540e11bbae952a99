package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shadowdrop/shadowdrop-go/pkg/store"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixCampaign    = "campaign:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

var _ store.ICampaignStore = (*BadgerStore)(nil)

// BadgerStore is the durable campaign store, backed by Badger.
// Campaign records are sealed before they hit the value log when a
// Sealer is configured; the recipient secrets must not be recoverable
// from a copied data directory.
type BadgerStore struct {
	db       *badgerdb.DB
	sealer   *store.Sealer
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerStore opens (or creates) a Badger-backed store at dataPath.
// SyncWrites is enabled: losing a just-created campaign's secrets to a
// crash would strand the published root forever. A nil sealer stores
// records in plaintext. A background goroutine runs value log GC.
func NewBadgerStore(dataPath string, sealer *store.Sealer, logger *zap.Logger) (*BadgerStore, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger database at %s", absPath)
	}

	bs := &BadgerStore{
		db:     db,
		sealer: sealer,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger campaign store initialized",
		"path", absPath, "sealed", sealer != nil)

	return bs, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection
func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func campaignKey(id types.Hash) []byte {
	return []byte(keyPrefixCampaign + id.Hex())
}

func (b *BadgerStore) encode(campaign *types.Campaign) ([]byte, error) {
	data, err := store.MarshalCampaign(campaign)
	if err != nil {
		return nil, err
	}
	return b.sealer.Seal(data)
}

func (b *BadgerStore) decode(sealed []byte) (*types.Campaign, error) {
	data, err := b.sealer.Open(sealed)
	if err != nil {
		return nil, err
	}
	return store.UnmarshalCampaign(data)
}

// PutCampaign stores a new campaign. Create-only: the check and the
// write share one transaction, so a concurrent duplicate loses cleanly.
func (b *BadgerStore) PutCampaign(campaign *types.Campaign) error {
	if campaign == nil {
		return fmt.Errorf("cannot store nil Campaign")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := b.encode(campaign)
	if err != nil {
		return fmt.Errorf("failed to encode Campaign: %w", err)
	}

	key := campaignKey(campaign.ID)
	return b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: campaign %s", types.ErrCampaignExists, campaign.ID.Hex())
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, data)
	})
}

// GetCampaign retrieves a campaign by id, or nil if absent.
func (b *BadgerStore) GetCampaign(id types.Hash) (*types.Campaign, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(campaignKey(id))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load Campaign: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	campaign, err := b.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Campaign: %w", err)
	}
	return campaign, nil
}

// ListCampaigns returns all campaigns sorted by creation time.
func (b *BadgerStore) ListCampaigns() ([]*types.Campaign, error) {
	return b.list(func(*types.Campaign) bool { return true })
}

// ListCampaignsByAuthority returns one authority's campaigns sorted by
// creation time.
func (b *BadgerStore) ListCampaignsByAuthority(authority string) ([]*types.Campaign, error) {
	return b.list(func(c *types.Campaign) bool { return c.Authority == authority })
}

func (b *BadgerStore) list(keep func(*types.Campaign) bool) ([]*types.Campaign, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	campaigns := make([]*types.Campaign, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixCampaign)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			campaign, err := b.decode(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to decode Campaign, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			if keep(campaign) {
				campaigns = append(campaigns, campaign)
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Campaigns: %w", err)
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.Before(campaigns[j].CreatedAt)
	})

	return campaigns, nil
}

// MarkClaimed flags one recipient as claimed. The read-modify-write
// runs inside a single transaction. Idempotent.
func (b *BadgerStore) MarkClaimed(campaignID types.Hash, leafIndex int, at time.Time) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	key := campaignKey(campaignID)
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", types.ErrCampaignNotFound, campaignID.Hex())
		}
		if err != nil {
			return err
		}

		var data []byte
		err = item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
		if err != nil {
			return err
		}

		campaign, err := b.decode(data)
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

		updated, err := b.encode(campaign)
		if err != nil {
			return fmt.Errorf("failed to encode Campaign: %w", err)
		}
		return txn.Set(key, updated)
	})
}

// Close shuts down the store. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger campaign store closed")
	return nil
}

// HealthCheck verifies the store is operational.
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
