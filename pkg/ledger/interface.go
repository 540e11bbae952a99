// Package ledger is the boundary to the external settlement ledger:
// the on-chain program that owns campaign accounts, vaults and the
// claim/nullifier records. The ledger — not this process — is the
// source of truth for whether a claim settled; everything local is a
// cache that must reconcile against it.
package ledger

import (
	"context"
	"errors"

	"github.com/shadowdrop/shadowdrop-go/pkg/prover"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// ErrRecordExists is the ledger's create-if-absent rejection: a claim
// or nullifier record is already present. For the claim processor this
// is race-loss reconciliation, not a failure — some other submission
// for the same claimant won, and the claim IS settled.
var ErrRecordExists = errors.New("ledger: record already exists")

// CampaignState is the on-ledger view of a campaign: the published
// commitment plus the live counters that advance with claims.
type CampaignState struct {
	CampaignID    types.Hash
	VaultID       types.Hash
	Authority     string
	MerkleRoot    types.Hash
	TotalAmount   uint64
	VaultBalance  uint64
	ClaimedAmount uint64
	TotalClaims   uint64
	IsActive      bool
}

// ILedger submits instructions to and reads accounts from the
// settlement ledger. All calls take a context: every one of them is
// (conceptually) network I/O.
type ILedger interface {
	// CreateCampaign registers the campaign account and funds its
	// vault with initialFunding. Returns types.ErrCampaignExists if
	// the campaign id is already registered.
	CreateCampaign(ctx context.Context, campaign *types.Campaign, initialFunding uint64) error

	// GetCampaignState reads the on-ledger campaign account. Returns
	// types.ErrCampaignNotFound for an unregistered id.
	GetCampaignState(ctx context.Context, campaignID types.Hash) (*CampaignState, error)

	// SubmitTokenClaim settles a non-anonymous claim: creates the
	// claim record for (campaign, claimer) and debits the vault.
	// Returns ErrRecordExists when a record for the pair already
	// exists and types.ErrVaultUnderfunded when the vault cannot
	// cover the amount.
	SubmitTokenClaim(ctx context.Context, campaignID types.Hash, claimer string, amount uint64) (*types.ClaimRecord, error)

	// SubmitAnonymousClaim settles a proof-carrying claim: verifies
	// the proof against the registered root, creates the nullifier
	// record and debits the vault. Returns ErrRecordExists when the
	// nullifier is already spent.
	SubmitAnonymousClaim(ctx context.Context, campaignID types.Hash, proof *prover.Proof, amount uint64) (*types.NullifierRecord, error)

	// GetClaimRecord reads the claim record for (campaign, claimer).
	// Returns nil if none exists, error only on ledger failure.
	GetClaimRecord(ctx context.Context, campaignID types.Hash, claimer string) (*types.ClaimRecord, error)

	// GetNullifierRecord reads the nullifier record for
	// (campaign, nullifier). Returns nil if none exists.
	GetNullifierRecord(ctx context.Context, campaignID types.Hash, nullifier types.Hash) (*types.NullifierRecord, error)

	// CloseCampaign deactivates a campaign and returns the remaining
	// vault balance to the authority. Only the authority may close;
	// anyone else gets types.ErrUnauthorized.
	CloseCampaign(ctx context.Context, campaignID types.Hash, authority string) (uint64, error)
}
