// Package derivation computes the deterministic account identifiers
// shared with the on-chain program, and the nullifier that binds a
// claim to (secret, campaign). Identifier derivation is SHA-256 over
// domain-tagged seeds and must match the ledger byte-for-byte: any
// drift breaks every lookup. The nullifier uses the field hash because
// the circuit recomputes it.
package derivation

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/shadowdrop/shadowdrop-go/pkg/fieldhash"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Seed tags. The literal tag domain-separates the four identifier
// kinds so they never collide even on identical raw inputs.
const (
	tagCampaign  = "campaign"
	tagVault     = "vault"
	tagClaim     = "claim"
	tagNullifier = "nullifier"

	// programSeed pins derivations to this program, mirroring how the
	// ledger appends its program id to every seed list.
	programSeed = "ShadowDropProgram"

	// nullifierDomain separates the nullifier from every other use of
	// the field hash.
	nullifierDomain = "nullifier-domain"

	// MaxNonceLen bounds the creator-chosen campaign nonce, matching
	// the ledger's seed length limit.
	MaxNonceLen = 32
)

// Derive hashes a tagged seed list into a 32-byte account identifier.
// One-way and collision-resistant; recomputable from public inputs.
func Derive(tag string, seeds ...[]byte) types.Hash {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte(programSeed))
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// CampaignID derives the campaign account id from the authority wallet
// and the creator-chosen nonce.
func CampaignID(authority, nonce string) (types.Hash, error) {
	auth, err := decodeAddress(authority)
	if err != nil {
		return types.Hash{}, err
	}
	if err := ValidateNonce(nonce); err != nil {
		return types.Hash{}, err
	}
	return Derive(tagCampaign, auth, []byte(nonce)), nil
}

// VaultID derives the campaign's fund vault id from the same seeds as
// the campaign, under the "vault" tag.
func VaultID(authority, nonce string) (types.Hash, error) {
	auth, err := decodeAddress(authority)
	if err != nil {
		return types.Hash{}, err
	}
	if err := ValidateNonce(nonce); err != nil {
		return types.Hash{}, err
	}
	return Derive(tagVault, auth, []byte(nonce)), nil
}

// ClaimRecordID derives the id of the non-anonymous claim record for
// (campaign, claimer).
func ClaimRecordID(campaignID types.Hash, claimer string) (types.Hash, error) {
	c, err := decodeAddress(claimer)
	if err != nil {
		return types.Hash{}, err
	}
	return Derive(tagClaim, campaignID[:], c), nil
}

// NullifierRecordID derives the id of the anonymous claim record for
// (campaign, nullifier).
func NullifierRecordID(campaignID, nullifier types.Hash) types.Hash {
	return Derive(tagNullifier, campaignID[:], nullifier[:])
}

// Nullifier computes the claim nullifier from the recipient's secret
// and the campaign id. The same recipient claiming the same campaign
// always produces the same value, so the ledger's create-if-absent on
// the nullifier record is the whole double-claim defense; nothing in
// the value reveals the wallet. This is the only derivation that needs
// private input.
func Nullifier(secret, campaignID types.Hash) types.Hash {
	return fieldhash.Hash3(fieldhash.DomainTag(nullifierDomain), secret, campaignID)
}

// ValidateNonce enforces the ledger's campaign nonce length limit.
func ValidateNonce(nonce string) error {
	if nonce == "" {
		return fmt.Errorf("%w: campaign nonce is empty", types.ErrInvalidInput)
	}
	if len(nonce) > MaxNonceLen {
		return fmt.Errorf("%w: campaign nonce %q exceeds %d bytes", types.ErrInvalidInput, nonce, MaxNonceLen)
	}
	return nil
}

func decodeAddress(addr string) ([]byte, error) {
	b, err := base58.Decode(addr)
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("%w: address %q is not base58", types.ErrInvalidInput, addr)
	}
	return b, nil
}
