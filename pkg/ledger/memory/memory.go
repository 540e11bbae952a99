// Package memory is an in-process ledger for tests and local
// development. It enforces the same rules the on-chain program does —
// create-if-absent records, vault debits, authority checks — so the
// claim flow exercises real rejections without a chain.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shadowdrop/shadowdrop-go/pkg/ledger"
	"github.com/shadowdrop/shadowdrop-go/pkg/prover"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

var _ ledger.ILedger = (*MemoryLedger)(nil)

type recordKey struct {
	campaign types.Hash
	holder   string // claimer wallet, or nullifier hex
}

type campaignAccount struct {
	state            ledger.CampaignState
	claimRecords     map[string]*types.ClaimRecord
	nullifierRecords map[types.Hash]*types.NullifierRecord
}

// MemoryLedger is a mutex-serialized ledger. One lock for everything:
// the point is the atomicity of check-create-debit, not throughput.
type MemoryLedger struct {
	mu        sync.Mutex
	campaigns map[types.Hash]*campaignAccount
	now       func() time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		campaigns: make(map[types.Hash]*campaignAccount),
		now:       time.Now,
	}
}

// SetClock overrides the settlement timestamp source, for tests.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// CreateCampaign registers a campaign account and funds its vault.
func (l *MemoryLedger) CreateCampaign(_ context.Context, campaign *types.Campaign, initialFunding uint64) error {
	if campaign == nil {
		return fmt.Errorf("%w: nil campaign", types.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.campaigns[campaign.ID]; exists {
		return fmt.Errorf("%w: campaign %s", types.ErrCampaignExists, campaign.ID.Hex())
	}

	l.campaigns[campaign.ID] = &campaignAccount{
		state: ledger.CampaignState{
			CampaignID:   campaign.ID,
			VaultID:      campaign.VaultID,
			Authority:    campaign.Authority,
			MerkleRoot:   campaign.MerkleRoot,
			TotalAmount:  campaign.TotalAmount,
			VaultBalance: initialFunding,
			IsActive:     true,
		},
		claimRecords:     make(map[string]*types.ClaimRecord),
		nullifierRecords: make(map[types.Hash]*types.NullifierRecord),
	}
	return nil
}

// GetCampaignState reads the campaign account.
func (l *MemoryLedger) GetCampaignState(_ context.Context, campaignID types.Hash) (*ledger.CampaignState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.account(campaignID)
	if err != nil {
		return nil, err
	}
	state := account.state
	return &state, nil
}

// SubmitTokenClaim creates the (campaign, claimer) claim record and
// debits the vault, atomically.
func (l *MemoryLedger) SubmitTokenClaim(_ context.Context, campaignID types.Hash, claimer string, amount uint64) (*types.ClaimRecord, error) {
	if claimer == "" || amount == 0 {
		return nil, fmt.Errorf("%w: empty claimer or zero amount", types.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.activeAccount(campaignID)
	if err != nil {
		return nil, err
	}

	if _, exists := account.claimRecords[claimer]; exists {
		return nil, fmt.Errorf("%w: claim record for %s", ledger.ErrRecordExists, claimer)
	}
	if err := l.debit(account, amount); err != nil {
		return nil, err
	}

	record := &types.ClaimRecord{
		Campaign:  campaignID,
		Claimer:   claimer,
		Amount:    amount,
		ClaimedAt: l.now().UTC(),
	}
	account.claimRecords[claimer] = record
	out := *record
	return &out, nil
}

// SubmitAnonymousClaim verifies the proof against the registered root,
// creates the nullifier record and debits the vault, atomically.
func (l *MemoryLedger) SubmitAnonymousClaim(_ context.Context, campaignID types.Hash, proof *prover.Proof, amount uint64) (*types.NullifierRecord, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", types.ErrInvalidInput)
	}
	if err := prover.ValidateProof(proof); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.activeAccount(campaignID)
	if err != nil {
		return nil, err
	}

	if proof.MerkleRoot != account.state.MerkleRoot {
		return nil, fmt.Errorf("%w: proof root does not match campaign root", types.ErrMalformedProof)
	}

	if _, exists := account.nullifierRecords[proof.Nullifier]; exists {
		return nil, fmt.Errorf("%w: nullifier %s already spent", ledger.ErrRecordExists, proof.Nullifier.Hex())
	}
	if err := l.debit(account, amount); err != nil {
		return nil, err
	}

	record := &types.NullifierRecord{
		Campaign:  campaignID,
		Nullifier: proof.Nullifier,
		Amount:    amount,
		ClaimedAt: l.now().UTC(),
	}
	account.nullifierRecords[proof.Nullifier] = record
	out := *record
	return &out, nil
}

// GetClaimRecord reads a claim record, nil if absent.
func (l *MemoryLedger) GetClaimRecord(_ context.Context, campaignID types.Hash, claimer string) (*types.ClaimRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.account(campaignID)
	if err != nil {
		return nil, err
	}
	record, exists := account.claimRecords[claimer]
	if !exists {
		return nil, nil
	}
	out := *record
	return &out, nil
}

// GetNullifierRecord reads a nullifier record, nil if absent.
func (l *MemoryLedger) GetNullifierRecord(_ context.Context, campaignID types.Hash, nullifier types.Hash) (*types.NullifierRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.account(campaignID)
	if err != nil {
		return nil, err
	}
	record, exists := account.nullifierRecords[nullifier]
	if !exists {
		return nil, nil
	}
	out := *record
	return &out, nil
}

// CloseCampaign deactivates the campaign and returns the remaining
// vault balance to the authority.
func (l *MemoryLedger) CloseCampaign(_ context.Context, campaignID types.Hash, authority string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.account(campaignID)
	if err != nil {
		return 0, err
	}
	if account.state.Authority != authority {
		return 0, fmt.Errorf("%w: %s is not the campaign authority", types.ErrUnauthorized, authority)
	}
	if !account.state.IsActive {
		return 0, &types.LedgerRejectedError{Reason: "campaign is not active", Retryable: false}
	}

	remaining := account.state.VaultBalance
	account.state.VaultBalance = 0
	account.state.IsActive = false
	return remaining, nil
}

func (l *MemoryLedger) account(campaignID types.Hash) (*campaignAccount, error) {
	account, exists := l.campaigns[campaignID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrCampaignNotFound, campaignID.Hex())
	}
	return account, nil
}

func (l *MemoryLedger) activeAccount(campaignID types.Hash) (*campaignAccount, error) {
	account, err := l.account(campaignID)
	if err != nil {
		return nil, err
	}
	if !account.state.IsActive {
		return nil, &types.LedgerRejectedError{Reason: "campaign is not active", Retryable: false}
	}
	return account, nil
}

func (l *MemoryLedger) debit(account *campaignAccount, amount uint64) error {
	if amount > account.state.VaultBalance {
		return fmt.Errorf("%w: requested %d, vault holds %d",
			types.ErrVaultUnderfunded, amount, account.state.VaultBalance)
	}
	account.state.VaultBalance -= amount
	account.state.ClaimedAmount += amount
	account.state.TotalClaims++
	return nil
}
