package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

func testCampaign(id byte, authority string, createdAt time.Time) *types.Campaign {
	var cid types.Hash
	cid[0] = id
	return &types.Campaign{
		ID:          cid,
		Nonce:       "nonce",
		Name:        "Campaign",
		Authority:   authority,
		TotalAmount: 400,
		Token:       types.NativeToken(),
		CreatedAt:   createdAt,
		Recipients: []types.Recipient{
			{Wallet: "walletA", Amount: 100, LeafIndex: 0},
			{Wallet: "walletB", Amount: 300, LeafIndex: 1},
		},
	}
}

func TestPutAndGetCampaign(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, s.PutCampaign(campaign))

	loaded, err := s.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, campaign.ID, loaded.ID)
	assert.Equal(t, campaign.Recipients, loaded.Recipients)
}

func TestGetCampaignNotFound(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	var id types.Hash
	id[0] = 0xff
	loaded, err := s.GetCampaign(id)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestPutCampaignIsCreateOnly(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, s.PutCampaign(campaign))

	// A second put under the same id must be rejected, even with
	// different contents: the stored artifact is write-once.
	replacement := testCampaign(1, "authB", time.Now())
	err := s.PutCampaign(replacement)
	require.ErrorIs(t, err, types.ErrCampaignExists)

	loaded, err := s.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "authA", loaded.Authority)
}

func TestListCampaignsSortedByCreation(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	base := time.Unix(1700000000, 0)
	require.NoError(t, s.PutCampaign(testCampaign(2, "authA", base.Add(time.Hour))))
	require.NoError(t, s.PutCampaign(testCampaign(1, "authA", base)))
	require.NoError(t, s.PutCampaign(testCampaign(3, "authB", base.Add(2*time.Hour))))

	all, err := s.ListCampaigns()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, byte(1), all[0].ID[0])
	assert.Equal(t, byte(2), all[1].ID[0])
	assert.Equal(t, byte(3), all[2].ID[0])

	byAuth, err := s.ListCampaignsByAuthority("authA")
	require.NoError(t, err)
	require.Len(t, byAuth, 2)
	assert.Equal(t, byte(1), byAuth[0].ID[0])
	assert.Equal(t, byte(2), byAuth[1].ID[0])
}

func TestMarkClaimed(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, s.PutCampaign(campaign))

	at := time.Unix(1700000000, 0)
	require.NoError(t, s.MarkClaimed(campaign.ID, 1, at))

	loaded, err := s.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Recipients[0].Claimed)
	assert.True(t, loaded.Recipients[1].Claimed)
	require.NotNil(t, loaded.Recipients[1].ClaimedAt)
	assert.Equal(t, at, *loaded.Recipients[1].ClaimedAt)

	// Idempotent: marking again keeps the original timestamp.
	require.NoError(t, s.MarkClaimed(campaign.ID, 1, at.Add(time.Hour)))
	loaded, err = s.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, at, *loaded.Recipients[1].ClaimedAt)
}

func TestMarkClaimedErrors(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, s.PutCampaign(campaign))

	var unknown types.Hash
	unknown[0] = 0xff
	require.ErrorIs(t, s.MarkClaimed(unknown, 0, time.Now()), types.ErrCampaignNotFound)
	require.ErrorIs(t, s.MarkClaimed(campaign.ID, -1, time.Now()), types.ErrInvalidInput)
	require.ErrorIs(t, s.MarkClaimed(campaign.ID, 2, time.Now()), types.ErrInvalidInput)
}

func TestStoredCampaignIsIsolated(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, s.PutCampaign(campaign))

	// Mutating the caller's copy must not leak into the store.
	campaign.Recipients[0].Claimed = true

	loaded, err := s.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Recipients[0].Claimed)

	// Nor mutating a loaded copy.
	loaded.Recipients[1].Amount = 0
	again, err := s.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), again.Recipients[1].Amount)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, s.PutCampaign(campaign))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.MarkClaimed(campaign.ID, i%2, time.Now())
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.GetCampaign(campaign.ID)
		}()
	}
	wg.Wait()

	loaded, err := s.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Recipients[0].Claimed)
	assert.True(t, loaded.Recipients[1].Claimed)
}

func TestClosedStore(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	require.Error(t, s.HealthCheck())
	require.Error(t, s.PutCampaign(testCampaign(1, "authA", time.Now())))
	_, err := s.GetCampaign(types.Hash{})
	require.Error(t, err)
	_, err = s.ListCampaigns()
	require.Error(t, err)
}
