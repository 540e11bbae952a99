package memory

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowdrop/shadowdrop-go/pkg/commitment"
	"github.com/shadowdrop/shadowdrop-go/pkg/derivation"
	"github.com/shadowdrop/shadowdrop-go/pkg/ledger"
	"github.com/shadowdrop/shadowdrop-go/pkg/prover"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

const (
	authorityWallet = "4Nd1mYvR6eKfzvWtMZjQGKqTVXkSWBU6U7hqoHC6q6gL"
	claimerWallet   = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	otherWallet     = "3yFwqXBCqY5dTSTMEkAYCLXLsMuciBBX42X5FPDAHSsA"
)

// fixture builds a funded two-recipient campaign on a fresh ledger and
// returns a ready proof for the second recipient.
type fixture struct {
	ledger   *MemoryLedger
	campaign *types.Campaign
	proof    *prover.Proof
	amount   uint64
}

func newFixture(t *testing.T, funding uint64) *fixture {
	t.Helper()

	artifact, err := commitment.Build([]commitment.Entry{
		{Wallet: claimerWallet, Amount: 100},
		{Wallet: otherWallet, Amount: 250},
	}, rand.Reader)
	require.NoError(t, err)

	campaignID, err := derivation.CampaignID(authorityWallet, "ledger-test")
	require.NoError(t, err)
	vaultID, err := derivation.VaultID(authorityWallet, "ledger-test")
	require.NoError(t, err)

	campaign := &types.Campaign{
		ID:          campaignID,
		Nonce:       "ledger-test",
		Authority:   authorityWallet,
		MerkleRoot:  artifact.Root,
		TotalAmount: artifact.TotalAmount(),
		Token:       types.NativeToken(),
		VaultID:     vaultID,
		CreatedAt:   time.Now().UTC(),
		Recipients:  artifact.Recipients,
	}

	ml := NewMemoryLedger()
	require.NoError(t, ml.CreateCampaign(context.Background(), campaign, funding))

	rec := artifact.Recipients[1]
	proof, err := prover.NewStubProver().Prove(context.Background(), &prover.ProofRequest{
		CampaignID: campaignID,
		MerkleRoot: artifact.Root,
		Wallet:     rec.Wallet,
		Amount:     rec.Amount,
		Secret:     rec.Secret,
		Nullifier:  derivation.Nullifier(rec.Secret, campaignID),
		LeafIndex:  rec.LeafIndex,
		Path:       rec.Path,
	})
	require.NoError(t, err)

	return &fixture{ledger: ml, campaign: campaign, proof: proof, amount: rec.Amount}
}

func TestCreateCampaignAndState(t *testing.T) {
	f := newFixture(t, 350)

	state, err := f.ledger.GetCampaignState(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, f.campaign.MerkleRoot, state.MerkleRoot)
	assert.Equal(t, uint64(350), state.VaultBalance)
	assert.Equal(t, uint64(0), state.ClaimedAmount)
	assert.True(t, state.IsActive)

	require.ErrorIs(t, f.ledger.CreateCampaign(context.Background(), f.campaign, 1), types.ErrCampaignExists)

	var unknown types.Hash
	unknown[0] = 0xff
	_, err = f.ledger.GetCampaignState(context.Background(), unknown)
	require.ErrorIs(t, err, types.ErrCampaignNotFound)
}

func TestSubmitTokenClaim(t *testing.T) {
	f := newFixture(t, 350)
	ctx := context.Background()

	record, err := f.ledger.SubmitTokenClaim(ctx, f.campaign.ID, claimerWallet, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), record.Amount)

	// Record existence is the double-claim guard.
	_, err = f.ledger.SubmitTokenClaim(ctx, f.campaign.ID, claimerWallet, 100)
	require.ErrorIs(t, err, ledger.ErrRecordExists)

	loaded, err := f.ledger.GetClaimRecord(ctx, f.campaign.ID, claimerWallet)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record.ClaimedAt, loaded.ClaimedAt)

	missing, err := f.ledger.GetClaimRecord(ctx, f.campaign.ID, otherWallet)
	require.NoError(t, err)
	require.Nil(t, missing)

	state, err := f.ledger.GetCampaignState(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), state.VaultBalance)
	assert.Equal(t, uint64(100), state.ClaimedAmount)
	assert.Equal(t, uint64(1), state.TotalClaims)
}

func TestSubmitAnonymousClaim(t *testing.T) {
	f := newFixture(t, 350)
	ctx := context.Background()

	record, err := f.ledger.SubmitAnonymousClaim(ctx, f.campaign.ID, f.proof, f.amount)
	require.NoError(t, err)
	assert.Equal(t, f.proof.Nullifier, record.Nullifier)

	// Spending the same nullifier again is rejected.
	_, err = f.ledger.SubmitAnonymousClaim(ctx, f.campaign.ID, f.proof, f.amount)
	require.ErrorIs(t, err, ledger.ErrRecordExists)

	loaded, err := f.ledger.GetNullifierRecord(ctx, f.campaign.ID, f.proof.Nullifier)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, f.amount, loaded.Amount)
}

func TestSubmitAnonymousClaimRejectsBadProof(t *testing.T) {
	f := newFixture(t, 350)
	ctx := context.Background()

	t.Run("truncated proof", func(t *testing.T) {
		bad := *f.proof
		bad.Groth16Proof = bad.Groth16Proof[:10]
		_, err := f.ledger.SubmitAnonymousClaim(ctx, f.campaign.ID, &bad, f.amount)
		require.ErrorIs(t, err, types.ErrMalformedProof)
	})

	t.Run("foreign root", func(t *testing.T) {
		bad := *f.proof
		bad.MerkleRoot[0] ^= 0x01
		bad.PublicWitness = prover.EncodePublicWitness(bad.MerkleRoot, bad.Nullifier, types.Hash{})
		_, err := f.ledger.SubmitAnonymousClaim(ctx, f.campaign.ID, &bad, f.amount)
		require.ErrorIs(t, err, types.ErrMalformedProof)
	})
}

func TestVaultUnderfunded(t *testing.T) {
	f := newFixture(t, 50) // vault holds less than any allocation
	ctx := context.Background()

	_, err := f.ledger.SubmitTokenClaim(ctx, f.campaign.ID, claimerWallet, 100)
	require.ErrorIs(t, err, types.ErrVaultUnderfunded)

	// The failed attempt must not create a record or touch counters.
	record, err := f.ledger.GetClaimRecord(ctx, f.campaign.ID, claimerWallet)
	require.NoError(t, err)
	require.Nil(t, record)

	state, err := f.ledger.GetCampaignState(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), state.VaultBalance)
	assert.Equal(t, uint64(0), state.TotalClaims)
}

func TestConcurrentAnonymousClaimsSettleOnce(t *testing.T) {
	f := newFixture(t, 350)
	ctx := context.Background()

	const attempts = 8
	results := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.SubmitAnonymousClaim(ctx, f.campaign.ID, f.proof, f.amount)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var settled, raceLost int
	for err := range results {
		switch {
		case err == nil:
			settled++
		default:
			require.ErrorIs(t, err, ledger.ErrRecordExists)
			raceLost++
		}
	}

	// Exactly one settlement, exactly one debit.
	assert.Equal(t, 1, settled)
	assert.Equal(t, attempts-1, raceLost)

	state, err := f.ledger.GetCampaignState(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(350-f.amount), state.VaultBalance)
	assert.Equal(t, uint64(1), state.TotalClaims)
}

func TestCloseCampaign(t *testing.T) {
	f := newFixture(t, 350)
	ctx := context.Background()

	_, err := f.ledger.SubmitTokenClaim(ctx, f.campaign.ID, claimerWallet, 100)
	require.NoError(t, err)

	_, err = f.ledger.CloseCampaign(ctx, f.campaign.ID, claimerWallet)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	remaining, err := f.ledger.CloseCampaign(ctx, f.campaign.ID, authorityWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), remaining)

	// Closed campaigns accept no further claims and cannot close twice.
	_, err = f.ledger.SubmitAnonymousClaim(ctx, f.campaign.ID, f.proof, f.amount)
	var rejected *types.LedgerRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.False(t, rejected.Retryable)

	_, err = f.ledger.CloseCampaign(ctx, f.campaign.ID, authorityWallet)
	require.ErrorAs(t, err, &rejected)
}
