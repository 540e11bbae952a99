package fieldhash

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// testWallet builds a valid base58 address from raw bytes.
func testWallet(raw []byte) string {
	return base58.Encode(raw)
}

func randomInput(t *testing.T) types.Hash {
	t.Helper()
	secret, err := RandomSecret(rand.Reader)
	require.NoError(t, err)
	return secret
}

func TestRoundKeyTableCoversAllRounds(t *testing.T) {
	require.Len(t, params.RoundKeys, permFullRounds+permPartialRounds)

	half := permFullRounds / 2
	for round := range params.RoundKeys {
		if round < half || round >= half+permPartialRounds {
			require.Len(t, params.RoundKeys[round], permWidth, "full round %d", round)
		} else {
			require.NotEmpty(t, params.RoundKeys[round], "partial round %d", round)
		}
	}
}

func TestPermuteMixesState(t *testing.T) {
	var zero [permWidth]fr.Element

	first := zero
	permute(&first)
	second := zero
	permute(&second)
	require.Equal(t, first, second)
	require.NotEqual(t, zero, first)

	for i := range first {
		require.False(t, first[i].IsZero(), "limb %d must be mixed", i)
	}

	// A single-bit input difference moves the whole state.
	var tweaked [permWidth]fr.Element
	tweaked[0].SetUint64(1)
	permute(&tweaked)
	for i := range tweaked {
		require.NotEqual(t, first[i], tweaked[i], "limb %d must depend on the input", i)
	}
}

func TestHash2Deterministic(t *testing.T) {
	a := randomInput(t)
	b := randomInput(t)

	first := Hash2(a, b)
	second := Hash2(a, b)
	require.Equal(t, first, second)
	require.False(t, first.IsZero())
}

func TestHash2OrderMatters(t *testing.T) {
	a := randomInput(t)
	b := randomInput(t)
	require.NotEqual(t, Hash2(a, b), Hash2(b, a))
}

func TestHash3DistinctFromHash2(t *testing.T) {
	a := randomInput(t)
	b := randomInput(t)

	// The sponge iv encodes the message length, so a three-input hash
	// with a zero third element must not collide with the two-input hash.
	require.NotEqual(t, Hash2(a, b), Hash3(a, b, types.ZeroHash))
}

func TestHashOutputInField(t *testing.T) {
	a := randomInput(t)
	b := randomInput(t)
	require.True(t, InField(Hash2(a, b)))
	require.True(t, InField(Hash3(a, b, a)))
}

func TestWalletToField(t *testing.T) {
	t.Run("right-aligns decoded bytes", func(t *testing.T) {
		raw := []byte{0xde, 0xad, 0xbe, 0xef}
		f, err := WalletToField(testWallet(raw))
		require.NoError(t, err)

		var want types.Hash
		copy(want[32-len(raw):], raw)
		require.Equal(t, want, f)
	})

	t.Run("truncates 32-byte keys to 31 bytes", func(t *testing.T) {
		raw := bytes.Repeat([]byte{0xab}, 32)
		f, err := WalletToField(testWallet(raw))
		require.NoError(t, err)
		require.Equal(t, byte(0), f[0])
		require.Equal(t, raw[:31], f[1:])
		require.True(t, InField(f))
	})

	t.Run("rejects non-base58 input", func(t *testing.T) {
		_, err := WalletToField("not base58 0OIl")
		require.ErrorIs(t, err, types.ErrHashDomain)
	})

	t.Run("rejects empty address", func(t *testing.T) {
		_, err := WalletToField("")
		require.ErrorIs(t, err, types.ErrHashDomain)
	})
}

func TestAmountToField(t *testing.T) {
	f := AmountToField(0x0102030405060708)
	var want types.Hash
	copy(want[24:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	require.Equal(t, want, f)
	require.Equal(t, types.ZeroHash, AmountToField(0))
}

func TestDomainTag(t *testing.T) {
	tag := DomainTag("nullifier-domain")
	require.Equal(t, []byte("nullifier-domain"), []byte(tag[32-len("nullifier-domain"):]))
	require.True(t, InField(tag))
}

func TestRandomSecretInField(t *testing.T) {
	for i := 0; i < 64; i++ {
		secret, err := RandomSecret(rand.Reader)
		require.NoError(t, err)
		require.True(t, InField(secret), "secret must be below the field modulus")
	}
}

func TestRandomSecretRejectsOutOfRangeDraws(t *testing.T) {
	// First 32 bytes are all-ones (above the modulus) and must be
	// discarded; the following draw is tiny and must be accepted.
	var feed bytes.Buffer
	feed.Write(bytes.Repeat([]byte{0xff}, 32))
	valid := make([]byte, 32)
	valid[31] = 7
	feed.Write(valid)

	secret, err := RandomSecret(&feed)
	require.NoError(t, err)

	var want types.Hash
	want[31] = 7
	require.Equal(t, want, secret)
}

func TestRandomSecretPropagatesReaderFailure(t *testing.T) {
	_, err := RandomSecret(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestLeafHashDeterministic(t *testing.T) {
	wallet := testWallet(bytes.Repeat([]byte{0x11}, 32))
	secret := randomInput(t)

	first, err := LeafHash(wallet, 250, secret)
	require.NoError(t, err)
	second, err := LeafHash(wallet, 250, secret)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Any input change moves the leaf.
	other, err := LeafHash(wallet, 251, secret)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}
