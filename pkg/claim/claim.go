// Package claim drives a claim from Unclaimed through Pending to
// Settled. Pending is deliberately in-memory only: if the process
// dies mid-submission, the next eligibility check re-derives the real
// state from the presence or absence of the ledger record. The ledger
// is the source of truth; this processor only orchestrates and then
// makes the local store agree with it.
package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shadowdrop/shadowdrop-go/pkg/eligibility"
	"github.com/shadowdrop/shadowdrop-go/pkg/ledger"
	"github.com/shadowdrop/shadowdrop-go/pkg/store"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
	"github.com/shadowdrop/shadowdrop-go/pkg/vesting"
)

// Result reports a settled claim. RaceLost marks the reconciliation
// path: a competing submission created the record first, the claim is
// settled all the same and the caller sees success, not an error.
type Result struct {
	Amount    uint64     `json:"amount"`
	LeafIndex int        `json:"leafIndex"`
	RaceLost  bool       `json:"raceLost,omitempty"`
	Nullifier types.Hash `json:"nullifier,omitempty"`
	ClaimedAt time.Time  `json:"claimedAt"`
}

type pendingKey struct {
	campaign types.Hash
	holder   string
}

// Processor executes claims against the ledger.
type Processor struct {
	store        store.ICampaignStore
	ledger       ledger.ILedger
	orchestrator *eligibility.Orchestrator
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.Mutex
	pending map[pendingKey]struct{}
}

// NewProcessor wires the processor to its collaborators.
func NewProcessor(st store.ICampaignStore, lg ledger.ILedger, orch *eligibility.Orchestrator, logger *zap.Logger) *Processor {
	return &Processor{
		store:        st,
		ledger:       lg,
		orchestrator: orch,
		logger:       logger,
		now:          time.Now,
		pending:      make(map[pendingKey]struct{}),
	}
}

// SetClock overrides the vesting clock, for tests.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// ClaimAnonymous runs the full anonymous claim: eligibility, vesting,
// proof, ledger submission, local bookkeeping. The settled amount is
// exactly the currently vested portion of the allocation — never the
// full amount while vesting is still running.
func (p *Processor) ClaimAnonymous(ctx context.Context, campaignID types.Hash, wallet string) (*Result, error) {
	campaign, check, err := p.eligibleFor(ctx, campaignID, wallet)
	if err != nil {
		return nil, err
	}

	amount, err := p.vestedAmount(campaign, check.Amount)
	if err != nil {
		return nil, err
	}

	proof, err := p.orchestrator.RequestProof(ctx, campaignID, wallet)
	if err != nil {
		return nil, err
	}

	release, err := p.markPending(campaignID, proof.Nullifier.Hex())
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := p.ledger.SubmitAnonymousClaim(ctx, campaignID, proof, amount)
	if err != nil {
		if errors.Is(err, ledger.ErrRecordExists) {
			// Race-loss: a competing submission for this nullifier won.
			// The claim is settled, just not by us.
			return p.settleRaceLoss(campaignID, check.LeafIndex, amount, proof.Nullifier)
		}
		return nil, p.classifyRejection(err)
	}

	p.markStoreClaimed(campaignID, check.LeafIndex, record.ClaimedAt)

	p.logger.Sugar().Infow("Anonymous claim settled",
		"campaign", campaignID.Hex(), "leafIndex", check.LeafIndex, "amount", amount)

	return &Result{
		Amount:    amount,
		LeafIndex: check.LeafIndex,
		Nullifier: record.Nullifier,
		ClaimedAt: record.ClaimedAt,
	}, nil
}

// ClaimToken runs the non-anonymous claim path, keyed by the claimer
// wallet instead of a nullifier.
func (p *Processor) ClaimToken(ctx context.Context, campaignID types.Hash, wallet string) (*Result, error) {
	campaign, check, err := p.eligibleFor(ctx, campaignID, wallet)
	if err != nil {
		return nil, err
	}

	amount, err := p.vestedAmount(campaign, check.Amount)
	if err != nil {
		return nil, err
	}

	release, err := p.markPending(campaignID, wallet)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := p.ledger.SubmitTokenClaim(ctx, campaignID, wallet, amount)
	if err != nil {
		if errors.Is(err, ledger.ErrRecordExists) {
			return p.settleRaceLoss(campaignID, check.LeafIndex, amount, types.Hash{})
		}
		return nil, p.classifyRejection(err)
	}

	p.markStoreClaimed(campaignID, check.LeafIndex, record.ClaimedAt)

	p.logger.Sugar().Infow("Token claim settled",
		"campaign", campaignID.Hex(), "wallet", wallet, "amount", amount)

	return &Result{
		Amount:    amount,
		LeafIndex: check.LeafIndex,
		ClaimedAt: record.ClaimedAt,
	}, nil
}

// eligibleFor loads the campaign and requires an unclaimed leaf.
func (p *Processor) eligibleFor(ctx context.Context, campaignID types.Hash, wallet string) (*types.Campaign, *types.Eligibility, error) {
	campaign, err := p.store.GetCampaign(campaignID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading campaign: %w", err)
	}
	if campaign == nil {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrCampaignNotFound, campaignID.Hex())
	}

	check, err := p.orchestrator.CheckEligibility(ctx, campaignID, wallet)
	if err != nil {
		return nil, nil, err
	}
	if check.AlreadyClaimed {
		return nil, nil, fmt.Errorf("%w: leaf %d", types.ErrAlreadyClaimed, check.LeafIndex)
	}
	if !check.Eligible {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrNotEligible, wallet)
	}
	return campaign, check, nil
}

// vestedAmount computes the settleable amount right now. The delta is
// clamped at zero: a schedule that has unlocked nothing yet is a
// timing answer, not a reason to submit anything.
func (p *Processor) vestedAmount(campaign *types.Campaign, total uint64) (uint64, error) {
	amount := vesting.Claimable(total, campaign.Vesting, p.now().Unix())
	if amount == 0 {
		return 0, fmt.Errorf("%w: campaign %s", types.ErrNothingVested, campaign.ID.Hex())
	}
	return amount, nil
}

// markPending moves the claim into the in-flight set. A second local
// submission for the same key while one is in flight is turned away
// retryable rather than racing our own ledger call.
func (p *Processor) markPending(campaignID types.Hash, holder string) (func(), error) {
	key := pendingKey{campaign: campaignID, holder: holder}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, inFlight := p.pending[key]; inFlight {
		return nil, &types.LedgerRejectedError{Reason: "claim already in flight", Retryable: true}
	}
	p.pending[key] = struct{}{}

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.pending, key)
	}, nil
}

// settleRaceLoss records the competing settlement locally and reports
// success to the caller.
func (p *Processor) settleRaceLoss(campaignID types.Hash, leafIndex int, amount uint64, nullifier types.Hash) (*Result, error) {
	at := p.now().UTC()
	p.markStoreClaimed(campaignID, leafIndex, at)

	p.logger.Sugar().Infow("Claim race lost, reconciled as settled",
		"campaign", campaignID.Hex(), "leafIndex", leafIndex)

	return &Result{
		Amount:    amount,
		LeafIndex: leafIndex,
		RaceLost:  true,
		Nullifier: nullifier,
		ClaimedAt: at,
	}, nil
}

// markStoreClaimed patches the off-chain copy. Failure here is logged,
// not returned: the ledger already settled, and the next eligibility
// check will reconcile the flag anyway.
func (p *Processor) markStoreClaimed(campaignID types.Hash, leafIndex int, at time.Time) {
	if err := p.store.MarkClaimed(campaignID, leafIndex, at); err != nil {
		p.logger.Sugar().Warnw("Failed to mark local claim flag",
			"campaign", campaignID.Hex(), "leafIndex", leafIndex, "error", err)
	}
}

// classifyRejection sorts ledger failures into terminal vs retryable.
func (p *Processor) classifyRejection(err error) error {
	if errors.Is(err, types.ErrVaultUnderfunded) {
		// Terminal for this attempt: only the authority topping up the
		// vault can change the outcome.
		return err
	}
	var rejected *types.LedgerRejectedError
	if errors.As(err, &rejected) {
		return err
	}
	// Anything else is a transient transport-level failure.
	return &types.LedgerRejectedError{Reason: err.Error(), Retryable: true}
}
