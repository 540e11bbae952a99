// Package vesting computes the linearly vested portion of a campaign
// allocation. The math here is settlement math: the claim processor
// settles exactly the unlocked-but-unclaimed delta it derives from
// Claimable, so any drift from the ledger's own schedule would strand
// or overpay funds.
//
// The schedule's display frequency (daily/weekly/monthly) is a UI
// granularity only and never enters the calculation; do not be tempted
// to step the curve by it.
package vesting

import (
	"math/bits"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Claimable returns the amount of total unlocked at now under the
// schedule, in base units, floored and clamped into [0, total].
//
// A zero duration means no vesting: everything unlocks at Start. Before
// Start plus the cliff nothing is claimable; after Start plus the full
// duration everything is. In between the unlocked amount grows linearly
// over the post-cliff window.
func Claimable(total uint64, schedule types.VestingSchedule, now int64) uint64 {
	if now < schedule.Start {
		return 0
	}
	if schedule.IsInstant() {
		return total
	}
	if now < schedule.Start+schedule.CliffSeconds {
		return 0
	}
	if now >= schedule.Start+schedule.Duration {
		return total
	}

	// Here cliff <= now-start < duration, so the window is non-empty.
	elapsed := now - schedule.Start - schedule.CliffSeconds
	window := schedule.Duration - schedule.CliffSeconds

	// Integer math floors to the base unit. total*elapsed can exceed
	// 64 bits for large allocations, so go through the 128-bit product.
	hi, lo := bits.Mul64(total, uint64(elapsed))
	unlocked, _ := bits.Div64(hi, lo, uint64(window))
	if unlocked > total {
		return total
	}
	return unlocked
}
