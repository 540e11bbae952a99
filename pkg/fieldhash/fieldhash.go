// Package fieldhash implements the field-friendly hashing used by the
// commitment scheme: a Poseidon2 sponge over the BN254 scalar field,
// compatible with the proving circuit's arithmetic. Leaves, merkle
// nodes and nullifiers are all computed here; a general-purpose byte
// hash must never be substituted.
package fieldhash

import (
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/mr-tron/base58"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Poseidon2 parameters for BN254, width 4. The circuit hashes with the
// same permutation, so these are fixed.
const (
	permWidth         = 4
	permFullRounds    = 8
	permPartialRounds = 56
)

// Hash2 absorbs two field elements and squeezes one, using the sponge
// construction the circuit's standard library uses: initial state
// [a, b, 0, iv] with iv = 2*2^64, one permutation, output state[0].
func Hash2(a, b types.Hash) types.Hash {
	var state [permWidth]fr.Element
	state[0] = toElement(a)
	state[1] = toElement(b)
	state[3] = spongeIV(2)
	permute(&state)
	return fromElement(state[0])
}

// Hash3 is the three-input variant: state [a, b, c, iv] with iv = 3*2^64.
func Hash3(a, b, c types.Hash) types.Hash {
	var state [permWidth]fr.Element
	state[0] = toElement(a)
	state[1] = toElement(b)
	state[2] = toElement(c)
	state[3] = spongeIV(3)
	permute(&state)
	return fromElement(state[0])
}

// LeafHash computes a recipient's merkle leaf:
// Hash3(wallet_as_field, amount_as_field, secret).
func LeafHash(wallet string, amount uint64, secret types.Hash) (types.Hash, error) {
	w, err := WalletToField(wallet)
	if err != nil {
		return types.Hash{}, err
	}
	return Hash3(w, AmountToField(amount), secret), nil
}

// WalletToField maps a base58 wallet address into the field: decode,
// take the first 31 bytes, right-align them in 32 bytes. 31 bytes is
// always below the BN254 modulus, so no reduction happens and the
// mapping is injective for same-length inputs.
func WalletToField(wallet string) (types.Hash, error) {
	decoded, err := base58.Decode(wallet)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: wallet %q is not base58", types.ErrHashDomain, wallet)
	}
	if len(decoded) == 0 {
		return types.Hash{}, fmt.Errorf("%w: empty wallet address", types.ErrHashDomain)
	}
	var out types.Hash
	n := len(decoded)
	if n > 31 {
		n = 31
	}
	copy(out[32-n:], decoded[:n])
	return out, nil
}

// AmountToField maps a base-unit amount into the field as a big-endian
// integer in the low 8 bytes.
func AmountToField(amount uint64) types.Hash {
	var out types.Hash
	out[24] = byte(amount >> 56)
	out[25] = byte(amount >> 48)
	out[26] = byte(amount >> 40)
	out[27] = byte(amount >> 32)
	out[28] = byte(amount >> 24)
	out[29] = byte(amount >> 16)
	out[30] = byte(amount >> 8)
	out[31] = byte(amount)
	return out
}

// DomainTag maps an ASCII domain-separation tag (at most 31 bytes)
// into the field, right-aligned like wallet addresses.
func DomainTag(tag string) types.Hash {
	var out types.Hash
	n := len(tag)
	if n > 31 {
		n = 31
	}
	copy(out[32-n:], tag[:n])
	return out
}

// RandomSecret draws a uniformly random field element from r by
// rejection sampling: out-of-range draws are discarded and retried so
// the secret carries no modular bias. Biased secrets can leak
// membership information through proof statistics.
func RandomSecret(r io.Reader) (types.Hash, error) {
	modulus := fr.Modulus()
	var buf [32]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return types.Hash{}, fmt.Errorf("reading randomness: %w", err)
		}
		v := new(big.Int).SetBytes(buf[:])
		if v.Cmp(modulus) < 0 {
			return types.Hash(buf), nil
		}
	}
}

// InField reports whether the 32 bytes, read big-endian, are a
// canonical field element.
func InField(h types.Hash) bool {
	v := new(big.Int).SetBytes(h[:])
	return v.Cmp(fr.Modulus()) < 0
}

func toElement(h types.Hash) fr.Element {
	var e fr.Element
	e.SetBytes(h[:])
	return e
}

func fromElement(e fr.Element) types.Hash {
	return types.Hash(e.Bytes())
}

func spongeIV(messageLen uint64) fr.Element {
	// iv = messageLen * 2^64, which exceeds uint64 range.
	iv := new(big.Int).Lsh(new(big.Int).SetUint64(messageLen), 64)
	var e fr.Element
	e.SetBigInt(iv)
	return e
}
