package badger

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowdrop/shadowdrop-go/pkg/logger"
	"github.com/shadowdrop/shadowdrop-go/pkg/store"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

func newTestStore(t *testing.T, sealer *store.Sealer) *BadgerStore {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bs, err := NewBadgerStore(t.TempDir(), sealer, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

func testCampaign(id byte, authority string, createdAt time.Time) *types.Campaign {
	var cid, secret types.Hash
	cid[0] = id
	secret[0] = 0xaa
	return &types.Campaign{
		ID:          cid,
		Nonce:       "nonce",
		Name:        "Campaign",
		Authority:   authority,
		TotalAmount: 400,
		Token:       types.NativeToken(),
		CreatedAt:   createdAt.UTC(),
		Recipients: []types.Recipient{
			{Wallet: "walletA", Amount: 100, Secret: secret, LeafIndex: 0},
			{Wallet: "walletB", Amount: 300, LeafIndex: 1},
		},
	}
}

func TestBadgerStore_PutAndGet(t *testing.T) {
	bs := newTestStore(t, nil)

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, bs.PutCampaign(campaign))

	loaded, err := bs.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, campaign.ID, loaded.ID)
	assert.Equal(t, campaign.Recipients, loaded.Recipients)

	var unknown types.Hash
	unknown[0] = 0xff
	missing, err := bs.GetCampaign(unknown)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestBadgerStore_CreateOnly(t *testing.T) {
	bs := newTestStore(t, nil)

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, bs.PutCampaign(campaign))
	require.ErrorIs(t, bs.PutCampaign(testCampaign(1, "authB", time.Now())), types.ErrCampaignExists)

	loaded, err := bs.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "authA", loaded.Authority)
}

func TestBadgerStore_List(t *testing.T) {
	bs := newTestStore(t, nil)

	base := time.Unix(1700000000, 0)
	require.NoError(t, bs.PutCampaign(testCampaign(2, "authA", base.Add(time.Hour))))
	require.NoError(t, bs.PutCampaign(testCampaign(1, "authA", base)))
	require.NoError(t, bs.PutCampaign(testCampaign(3, "authB", base.Add(2*time.Hour))))

	all, err := bs.ListCampaigns()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, byte(1), all[0].ID[0])
	assert.Equal(t, byte(3), all[2].ID[0])

	byAuth, err := bs.ListCampaignsByAuthority("authB")
	require.NoError(t, err)
	require.Len(t, byAuth, 1)
	assert.Equal(t, byte(3), byAuth[0].ID[0])
}

func TestBadgerStore_MarkClaimed(t *testing.T) {
	bs := newTestStore(t, nil)

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, bs.PutCampaign(campaign))

	at := time.Unix(1700000000, 0).UTC()
	require.NoError(t, bs.MarkClaimed(campaign.ID, 0, at))

	loaded, err := bs.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Recipients[0].Claimed)
	require.NotNil(t, loaded.Recipients[0].ClaimedAt)
	assert.Equal(t, at, *loaded.Recipients[0].ClaimedAt)
	assert.False(t, loaded.Recipients[1].Claimed)

	// Idempotent on an already-claimed leaf.
	require.NoError(t, bs.MarkClaimed(campaign.ID, 0, at.Add(time.Hour)))
	loaded, err = bs.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, at, *loaded.Recipients[0].ClaimedAt)

	var unknown types.Hash
	unknown[0] = 0xff
	require.ErrorIs(t, bs.MarkClaimed(unknown, 0, at), types.ErrCampaignNotFound)
	require.ErrorIs(t, bs.MarkClaimed(campaign.ID, 5, at), types.ErrInvalidInput)
}

func TestBadgerStore_SealedRoundTrip(t *testing.T) {
	key := make([]byte, store.SealerKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	sealer, err := store.NewSealer(key)
	require.NoError(t, err)

	bs := newTestStore(t, sealer)

	campaign := testCampaign(1, "authA", time.Now())
	require.NoError(t, bs.PutCampaign(campaign))

	loaded, err := bs.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, campaign.Recipients[0].Secret, loaded.Recipients[0].Secret)

	require.NoError(t, bs.MarkClaimed(campaign.ID, 1, time.Now().UTC()))
	loaded, err = bs.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Recipients[1].Claimed)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bs, err := NewBadgerStore(dir, nil, testLogger)
	require.NoError(t, err)

	campaign := testCampaign(1, "authA", time.Unix(1700000000, 0))
	require.NoError(t, bs.PutCampaign(campaign))
	require.NoError(t, bs.Close())

	reopened, err := NewBadgerStore(dir, nil, testLogger)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, campaign.Recipients, loaded.Recipients)
}

func TestBadgerStore_CloseIdempotentAndHealth(t *testing.T) {
	bs := newTestStore(t, nil)
	require.NoError(t, bs.HealthCheck())

	require.NoError(t, bs.Close())
	require.NoError(t, bs.Close())
	require.Error(t, bs.HealthCheck())
	require.Error(t, bs.PutCampaign(testCampaign(1, "authA", time.Now())))
}
