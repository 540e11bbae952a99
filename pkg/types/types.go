package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Hash is a 32-byte value: a field element, merkle node, nullifier or
// derived account id. JSON-encoded as a hex string so stored artifacts
// stay human-inspectable.
type Hash [32]byte

// ZeroHash is the canonical zero leaf used to pad merkle trees.
var ZeroHash Hash

// Hex returns the lowercase hex encoding without a 0x prefix.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// HashFromHex parses a 32-byte hex string (with or without 0x prefix).
func HashFromHex(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash length: got %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// IsZero reports whether the hash is all zero bytes.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// TokenKind distinguishes campaigns paying out in the native unit from
// campaigns paying out a minted token.
type TokenKind string

const (
	TokenKindNative TokenKind = "native"
	TokenKindMint   TokenKind = "mint"
)

// Token is the tagged token variant for a campaign. A native campaign
// has no mint; a mint campaign carries the mint address and decimals so
// base-unit conversion is enforced by the type, not by convention.
type Token struct {
	Kind     TokenKind `json:"kind"`
	Mint     string    `json:"mint,omitempty"`
	Decimals uint8     `json:"decimals,omitempty"`
}

// NativeToken returns the native-unit token variant.
func NativeToken() Token {
	return Token{Kind: TokenKindNative}
}

// MintToken returns a minted-token variant.
func MintToken(mint string, decimals uint8) Token {
	return Token{Kind: TokenKindMint, Mint: mint, Decimals: decimals}
}

// VestingSchedule describes a linear vesting release. A zero Duration
// means the full allocation unlocks at Start. Frequency is a display
// granularity only; it never changes the settlement math.
type VestingSchedule struct {
	Start        int64  `json:"start"`
	CliffSeconds int64  `json:"cliffSeconds"`
	Duration     int64  `json:"durationSeconds"`
	Frequency    string `json:"frequency,omitempty"`
}

// IsInstant reports whether the schedule releases everything at Start.
func (v VestingSchedule) IsInstant() bool {
	return v.Duration == 0
}

// Validate rejects schedules the settlement math has no meaning for.
// Checked once at campaign creation; the schedule is immutable after.
func (v VestingSchedule) Validate() error {
	if v.CliffSeconds < 0 {
		return fmt.Errorf("%w: negative vesting cliff", ErrInvalidInput)
	}
	if v.Duration < 0 {
		return fmt.Errorf("%w: negative vesting duration", ErrInvalidInput)
	}
	if v.CliffSeconds > v.Duration {
		return fmt.Errorf("%w: vesting cliff exceeds duration", ErrInvalidInput)
	}
	return nil
}

// Recipient is one entry of a campaign's recipient set, with the
// creation-time secret that unlinks the wallet from its leaf. The
// secret is write-once: regenerating it invalidates the published root.
type Recipient struct {
	Wallet    string     `json:"wallet"`
	Amount    uint64     `json:"amount"`
	Secret    Hash       `json:"secret"`
	LeafIndex int        `json:"leafIndex"`
	Path      MerklePath `json:"path"`
	Claimed   bool       `json:"claimed"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
}

// MerklePath is the ordered sibling sequence from a leaf to the root.
// The direction at each level follows from the leaf index: bit i of the
// index says whether the node is the right child at level i.
type MerklePath []Hash

// Campaign is the off-chain record of one airdrop campaign. Everything
// except the claim flags on the recipients is immutable after creation.
type Campaign struct {
	ID          Hash            `json:"id"`
	Nonce       string          `json:"nonce"`
	Name        string          `json:"name"`
	Authority   string          `json:"authority"`
	MerkleRoot  Hash            `json:"merkleRoot"`
	TotalAmount uint64          `json:"totalAmount"`
	Token       Token           `json:"token"`
	Vesting     VestingSchedule `json:"vesting"`
	VaultID     Hash            `json:"vaultId"`
	TxSignature string          `json:"txSignature,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Recipients  []Recipient     `json:"recipients"`
}

// CampaignInfo is the public summary of a campaign. It deliberately
// omits the recipient list: publishing it would defeat the commitment.
type CampaignInfo struct {
	ID              Hash      `json:"id"`
	Nonce           string    `json:"nonce"`
	Name            string    `json:"name"`
	Authority       string    `json:"authority"`
	MerkleRoot      Hash      `json:"merkleRoot"`
	TotalAmount     uint64    `json:"totalAmount"`
	TotalRecipients int       `json:"totalRecipients"`
	ClaimedCount    int       `json:"claimedCount"`
	VaultID         Hash      `json:"vaultId"`
	TxSignature     string    `json:"txSignature,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Info builds the recipient-free summary view.
func (c *Campaign) Info() CampaignInfo {
	claimed := 0
	for i := range c.Recipients {
		if c.Recipients[i].Claimed {
			claimed++
		}
	}
	return CampaignInfo{
		ID:              c.ID,
		Nonce:           c.Nonce,
		Name:            c.Name,
		Authority:       c.Authority,
		MerkleRoot:      c.MerkleRoot,
		TotalAmount:     c.TotalAmount,
		TotalRecipients: len(c.Recipients),
		ClaimedCount:    claimed,
		VaultID:         c.VaultID,
		TxSignature:     c.TxSignature,
		CreatedAt:       c.CreatedAt,
	}
}

// ClaimRecord is the ledger account created by the non-anonymous claim
// path, keyed by (campaign, claimer). Its existence is the double-claim
// guard when identity is not hidden.
type ClaimRecord struct {
	Campaign  Hash      `json:"campaign"`
	Claimer   string    `json:"claimer"`
	Amount    uint64    `json:"amount"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// NullifierRecord is the ledger account created by the anonymous claim
// path, keyed by (campaign, nullifier). Its existence is the sole
// double-claim defense when identity is hidden.
type NullifierRecord struct {
	Campaign  Hash      `json:"campaign"`
	Nullifier Hash      `json:"nullifier"`
	Amount    uint64    `json:"amount"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// Eligibility is the outcome of an eligibility check. AlreadyClaimed
// and a false Eligible are normal outcomes, not alarms.
type Eligibility struct {
	Eligible       bool   `json:"eligible"`
	Amount         uint64 `json:"amount"`
	AlreadyClaimed bool   `json:"alreadyClaimed"`
	LeafIndex      int    `json:"leafIndex"`
}

// EligibleCampaign summarizes one campaign a wallet can still claim in.
type EligibleCampaign struct {
	CampaignID  Hash      `json:"campaignId"`
	Name        string    `json:"name"`
	Amount      uint64    `json:"amount"`
	TotalAmount uint64    `json:"totalAmount"`
	VaultID     Hash      `json:"vaultId"`
	CreatedAt   time.Time `json:"createdAt"`
}
