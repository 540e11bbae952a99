package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shadowdrop/shadowdrop-go/pkg/store"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

var _ store.ICampaignStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory campaign store for tests and local
// development. All data is lost when the process exits.
//
// Thread-safe using sync.RWMutex. Deep copies on every boundary so
// callers can't mutate stored campaigns behind the lock.
type MemoryStore struct {
	mu        sync.RWMutex
	campaigns map[types.Hash]*types.Campaign
	closed    bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: make(map[types.Hash]*types.Campaign),
	}
}

// PutCampaign stores a new campaign. Create-only: an existing id is
// rejected, never overwritten.
func (m *MemoryStore) PutCampaign(campaign *types.Campaign) error {
	if campaign == nil {
		return fmt.Errorf("cannot store nil Campaign")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	if _, exists := m.campaigns[campaign.ID]; exists {
		return fmt.Errorf("%w: campaign %s", types.ErrCampaignExists, campaign.ID.Hex())
	}

	m.campaigns[campaign.ID] = deepCopyCampaign(campaign)
	return nil
}

// GetCampaign retrieves a campaign by id, or nil if absent.
func (m *MemoryStore) GetCampaign(id types.Hash) (*types.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	campaign, exists := m.campaigns[id]
	if !exists {
		return nil, nil
	}
	return deepCopyCampaign(campaign), nil
}

// ListCampaigns returns all campaigns sorted by creation time.
func (m *MemoryStore) ListCampaigns() ([]*types.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	result := make([]*types.Campaign, 0, len(m.campaigns))
	for _, campaign := range m.campaigns {
		result = append(result, deepCopyCampaign(campaign))
	}
	sortByCreation(result)
	return result, nil
}

// ListCampaignsByAuthority returns one authority's campaigns sorted by
// creation time.
func (m *MemoryStore) ListCampaignsByAuthority(authority string) ([]*types.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	result := make([]*types.Campaign, 0)
	for _, campaign := range m.campaigns {
		if campaign.Authority == authority {
			result = append(result, deepCopyCampaign(campaign))
		}
	}
	sortByCreation(result)
	return result, nil
}

// MarkClaimed flags one recipient as claimed. Idempotent.
func (m *MemoryStore) MarkClaimed(campaignID types.Hash, leafIndex int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	campaign, exists := m.campaigns[campaignID]
	if !exists {
		return fmt.Errorf("%w: %s", types.ErrCampaignNotFound, campaignID.Hex())
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
	return nil
}

// Close shuts down the store. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the store is operational.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func sortByCreation(campaigns []*types.Campaign) {
	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.Before(campaigns[j].CreatedAt)
	})
}

func deepCopyCampaign(c *types.Campaign) *types.Campaign {
	if c == nil {
		return nil
	}

	out := *c
	out.Recipients = make([]types.Recipient, len(c.Recipients))
	for i, r := range c.Recipients {
		rc := r
		rc.Path = append(types.MerklePath{}, r.Path...)
		if r.ClaimedAt != nil {
			at := *r.ClaimedAt
			rc.ClaimedAt = &at
		}
		out.Recipients[i] = rc
	}
	return &out
}
