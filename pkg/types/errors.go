package types

import (
	"errors"
	"fmt"
)

// Error taxonomy for the commitment-and-claim core. Validation errors
// (ErrInvalidInput, ErrHashDomain, ErrMalformedProof) are rejected
// locally and never reach the ledger. Ledger-reported errors are
// classified into retryable vs terminal at the boundary.
var (
	// ErrInvalidInput marks a malformed recipient list, zero amount or
	// oversized campaign nonce, rejected before any hashing happens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrHashDomain marks a value that cannot be mapped into the hash
	// field's input domain.
	ErrHashDomain = errors.New("value outside hash field domain")

	// ErrNotEligible means no leaf matches the claimant. Expected,
	// user-facing, not retried.
	ErrNotEligible = errors.New("wallet is not a recipient of this campaign")

	// ErrAlreadyClaimed means a claim or nullifier record already
	// exists for the matching leaf. Expected, user-facing, not retried.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrProofServiceUnavailable means the external prover could not be
	// reached. Retryable with backoff.
	ErrProofServiceUnavailable = errors.New("proof service unavailable")

	// ErrMalformedProof marks a prover response whose proof, public
	// witness or nullifier does not have the circuit's fixed size. Hard
	// reject: never submitted to the ledger.
	ErrMalformedProof = errors.New("malformed proof")

	// ErrVaultUnderfunded means the requested amount exceeds the
	// remaining vault balance. Fatal for the claim attempt until the
	// authority tops up; never silently retried.
	ErrVaultUnderfunded = errors.New("campaign vault underfunded")

	// ErrNothingVested means the vesting schedule has unlocked nothing
	// claimable yet. Expected, user-facing, retryable later.
	ErrNothingVested = errors.New("no amount vested yet")

	// ErrCampaignNotFound means no campaign exists under the given id.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrCampaignExists guards the write-once commitment artifact: a
	// campaign id can never be re-published with different secrets.
	ErrCampaignExists = errors.New("campaign already exists")

	// ErrUnauthorized means the caller is not the campaign authority.
	ErrUnauthorized = errors.New("unauthorized")
)

// LedgerRejectedError wraps a ledger rejection verbatim, classified
// into retryable vs terminal before being surfaced to the caller.
type LedgerRejectedError struct {
	Reason    string
	Retryable bool
}

func (e *LedgerRejectedError) Error() string {
	return fmt.Sprintf("ledger rejected: %s", e.Reason)
}

// IsRetryable reports whether the caller may retry the same operation
// without rebuilding anything. Race-loss and terminal rejections are
// not retryable; transient transport and vesting-timing errors are.
func IsRetryable(err error) bool {
	var lr *LedgerRejectedError
	if errors.As(err, &lr) {
		return lr.Retryable
	}
	return errors.Is(err, ErrProofServiceUnavailable) || errors.Is(err, ErrNothingVested)
}
