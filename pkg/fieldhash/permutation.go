package fieldhash

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// params carries the deterministic round keys for the width-4
// instance. poseidon2.NewParameters derives keys for any width; the
// library's ready-made Permutation stops at widths 2 and 3, so the
// width-4 round function itself lives below. The key table is the one
// place to swap should the circuit publish its own constant set.
var params = poseidon2.NewParameters(permWidth, permFullRounds, permPartialRounds)

// permute applies the width-4 Poseidon2 permutation in place: the
// initial external matrix, the first half of the full rounds, all
// partial rounds, then the remaining full rounds.
func permute(state *[permWidth]fr.Element) {
	matMulExternal(state)

	halfFull := permFullRounds / 2
	for round := 0; round < halfFull; round++ {
		addRoundKeys(state, round)
		sboxAll(state)
		matMulExternal(state)
	}
	for round := halfFull; round < halfFull+permPartialRounds; round++ {
		state[0].Add(&state[0], &params.RoundKeys[round][0])
		sbox(&state[0])
		matMulInternal(state)
	}
	for round := halfFull + permPartialRounds; round < permFullRounds+permPartialRounds; round++ {
		addRoundKeys(state, round)
		sboxAll(state)
		matMulExternal(state)
	}
}

func addRoundKeys(state *[permWidth]fr.Element, round int) {
	for i := 0; i < permWidth; i++ {
		state[i].Add(&state[i], &params.RoundKeys[round][i])
	}
}

// sbox raises one element to the 5th power.
func sbox(e *fr.Element) {
	var square fr.Element
	square.Square(e)
	square.Square(&square)
	e.Mul(e, &square)
}

func sboxAll(state *[permWidth]fr.Element) {
	for i := range state {
		sbox(&state[i])
	}
}

// matMulExternal multiplies the state by the width-4 external matrix
// [[5,7,1,3],[4,6,1,1],[1,3,5,7],[1,1,4,6]], using the standard
// addition chain.
func matMulExternal(state *[permWidth]fr.Element) {
	var t0, t1, t2, t3, t4, t5, t6, t7 fr.Element
	t0.Add(&state[0], &state[1])
	t1.Add(&state[2], &state[3])
	t2.Double(&state[1])
	t2.Add(&t2, &t1)
	t3.Double(&state[3])
	t3.Add(&t3, &t0)
	t4.Double(&t1)
	t4.Double(&t4)
	t4.Add(&t4, &t3)
	t5.Double(&t0)
	t5.Double(&t5)
	t5.Add(&t5, &t2)
	t6.Add(&t3, &t5)
	t7.Add(&t2, &t4)
	state[0] = t6
	state[1] = t5
	state[2] = t7
	state[3] = t4
}

// matMulInternal multiplies the state by the internal matrix, the
// all-ones matrix plus diag(1,1,1,2) — the same shape the library uses
// for its width-2 and width-3 internal layers.
func matMulInternal(state *[permWidth]fr.Element) {
	var sum fr.Element
	sum.Add(&state[0], &state[1])
	sum.Add(&sum, &state[2])
	sum.Add(&sum, &state[3])
	state[3].Double(&state[3])
	for i := range state {
		state[i].Add(&state[i], &sum)
	}
}
