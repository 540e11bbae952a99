// Package eligibility answers "can this wallet still claim from this
// campaign" and assembles proof requests for the leaves that can. It
// sits between the off-chain store (which knows the secrets) and the
// ledger (which knows what actually settled); when the two disagree,
// the ledger wins and the store is patched to match.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shadowdrop/shadowdrop-go/pkg/derivation"
	"github.com/shadowdrop/shadowdrop-go/pkg/ledger"
	"github.com/shadowdrop/shadowdrop-go/pkg/prover"
	"github.com/shadowdrop/shadowdrop-go/pkg/store"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Orchestrator runs eligibility checks and proof requests. Recipient
// secrets flow through here on their way to the prover; they are never
// logged, only campaign ids, wallets and leaf indices are.
type Orchestrator struct {
	store  store.ICampaignStore
	ledger ledger.ILedger
	prover prover.IProver
	logger *zap.Logger
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(st store.ICampaignStore, lg ledger.ILedger, pr prover.IProver, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:  st,
		ledger: lg,
		prover: pr,
		logger: logger,
	}
}

// CheckEligibility reports whether wallet holds an unclaimed leaf in
// the campaign. A stale local "unclaimed" flag is reconciled against
// the ledger's nullifier record before answering; the process may have
// crashed mid-claim, or another instance may have settled it.
//
// Ineligibility and already-claimed are answers, not errors.
func (o *Orchestrator) CheckEligibility(ctx context.Context, campaignID types.Hash, wallet string) (*types.Eligibility, error) {
	recipient, err := o.claimableLeaf(ctx, campaignID, wallet)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return &types.Eligibility{Eligible: false, LeafIndex: -1}, nil
	}
	if recipient.Claimed {
		return &types.Eligibility{
			Eligible:       false,
			Amount:         recipient.Amount,
			AlreadyClaimed: true,
			LeafIndex:      recipient.LeafIndex,
		}, nil
	}
	return &types.Eligibility{
		Eligible:  true,
		Amount:    recipient.Amount,
		LeafIndex: recipient.LeafIndex,
	}, nil
}

// ListEligibleCampaigns returns every campaign in which wallet still
// holds an unclaimed leaf.
func (o *Orchestrator) ListEligibleCampaigns(ctx context.Context, wallet string) ([]types.EligibleCampaign, error) {
	campaigns, err := o.store.ListCampaigns()
	if err != nil {
		return nil, fmt.Errorf("listing campaigns: %w", err)
	}

	eligible := make([]types.EligibleCampaign, 0)
	for _, campaign := range campaigns {
		check, err := o.CheckEligibility(ctx, campaign.ID, wallet)
		if err != nil {
			return nil, err
		}
		if !check.Eligible {
			continue
		}
		eligible = append(eligible, types.EligibleCampaign{
			CampaignID:  campaign.ID,
			Name:        campaign.Name,
			Amount:      check.Amount,
			TotalAmount: campaign.TotalAmount,
			VaultID:     campaign.VaultID,
			CreatedAt:   campaign.CreatedAt,
		})
	}
	return eligible, nil
}

// BuildProofRequest assembles the full leaf opening for the wallet's
// first claimable leaf: the stored secret and path, the recomputed
// nullifier, and the campaign's public root.
func (o *Orchestrator) BuildProofRequest(ctx context.Context, campaignID types.Hash, wallet string) (*prover.ProofRequest, error) {
	campaign, err := o.store.GetCampaign(campaignID)
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}
	if campaign == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrCampaignNotFound, campaignID.Hex())
	}

	recipient, err := o.claimableLeaf(ctx, campaignID, wallet)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotEligible, wallet)
	}
	if recipient.Claimed {
		return nil, fmt.Errorf("%w: leaf %d", types.ErrAlreadyClaimed, recipient.LeafIndex)
	}

	return &prover.ProofRequest{
		CampaignID: campaignID,
		MerkleRoot: campaign.MerkleRoot,
		Wallet:     recipient.Wallet,
		Amount:     recipient.Amount,
		Secret:     recipient.Secret,
		Nullifier:  derivation.Nullifier(recipient.Secret, campaignID),
		LeafIndex:  recipient.LeafIndex,
		Path:       recipient.Path,
	}, nil
}

// RequestProof builds the proof request, sends it to the prover and
// validates the returned shape before handing it to the caller.
func (o *Orchestrator) RequestProof(ctx context.Context, campaignID types.Hash, wallet string) (*prover.Proof, error) {
	req, err := o.BuildProofRequest(ctx, campaignID, wallet)
	if err != nil {
		return nil, err
	}

	o.logger.Sugar().Infow("Requesting membership proof",
		"campaign", campaignID.Hex(), "wallet", wallet, "leafIndex", req.LeafIndex)

	proof, err := o.prover.Prove(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("requesting proof: %w", err)
	}
	if err := prover.ValidateProof(proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// claimableLeaf finds the wallet's first not-yet-claimed leaf, falling
// back to its first leaf if all are claimed. Returns nil when the
// wallet holds no leaf at all. Local claim flags are reconciled with
// the ledger before being trusted.
func (o *Orchestrator) claimableLeaf(ctx context.Context, campaignID types.Hash, wallet string) (*types.Recipient, error) {
	campaign, err := o.store.GetCampaign(campaignID)
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}
	if campaign == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrCampaignNotFound, campaignID.Hex())
	}

	var fallback *types.Recipient
	for i := range campaign.Recipients {
		recipient := &campaign.Recipients[i]
		if recipient.Wallet != wallet {
			continue
		}
		if fallback == nil {
			fallback = recipient
		}
		if recipient.Claimed {
			continue
		}

		settled, err := o.reconcile(ctx, campaignID, recipient, recipient == fallback)
		if err != nil {
			return nil, err
		}
		if !settled {
			return recipient, nil
		}
	}
	return fallback, nil
}

// reconcile checks the ledger for a settlement the local store doesn't
// know about: the leaf's nullifier record, or — for the wallet's first
// leaf — the non-anonymous claim record. The claim record is keyed by
// wallet rather than leaf and the ledger admits only one per wallet
// and campaign, so it is attributed to the first leaf; later leaves of
// the same wallet reconcile through their nullifiers only. If a record
// exists the store is patched and the leaf reported settled.
func (o *Orchestrator) reconcile(ctx context.Context, campaignID types.Hash, recipient *types.Recipient, firstLeaf bool) (bool, error) {
	nullifier := derivation.Nullifier(recipient.Secret, campaignID)
	record, err := o.ledger.GetNullifierRecord(ctx, campaignID, nullifier)
	if err != nil {
		return false, fmt.Errorf("reading nullifier record: %w", err)
	}

	var claimedAt time.Time
	switch {
	case record != nil:
		claimedAt = record.ClaimedAt
	case firstLeaf:
		claimRecord, err := o.ledger.GetClaimRecord(ctx, campaignID, recipient.Wallet)
		if err != nil {
			return false, fmt.Errorf("reading claim record: %w", err)
		}
		if claimRecord == nil {
			return false, nil
		}
		claimedAt = claimRecord.ClaimedAt
	default:
		return false, nil
	}

	o.logger.Sugar().Infow("Reconciling stale claim flag from ledger",
		"campaign", campaignID.Hex(), "leafIndex", recipient.LeafIndex)

	if err := o.store.MarkClaimed(campaignID, recipient.LeafIndex, claimedAt); err != nil {
		return false, fmt.Errorf("marking reconciled claim: %w", err)
	}
	recipient.Claimed = true
	recipient.ClaimedAt = &claimedAt
	return true, nil
}
