package vesting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

func TestClaimableLinearSchedule(t *testing.T) {
	schedule := types.VestingSchedule{
		Start:        0,
		CliffSeconds: 86400,   // one day
		Duration:     2592000, // thirty days
	}
	const total = uint64(1000)

	testCases := []struct {
		name string
		now  int64
		want uint64
	}{
		{"before start", -1, 0},
		{"at start", 0, 0},
		{"inside cliff", 86399, 0},
		{"cliff boundary", 86400, 0},
		{"just past cliff", 86401, 0}, // floors below one base unit
		{"midpoint of vesting window", 86400 + 1296000, 517},
		{"one second before completion", 2591999, 999},
		{"at completion", 2592000, total},
		{"long after completion", 1 << 40, total},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Claimable(total, schedule, tc.now))
		})
	}
}

func TestClaimableInstant(t *testing.T) {
	schedule := types.VestingSchedule{Start: 100, Duration: 0}

	require.Equal(t, uint64(0), Claimable(500, schedule, 99))
	require.Equal(t, uint64(500), Claimable(500, schedule, 100))
	require.Equal(t, uint64(500), Claimable(500, schedule, 1<<40))
}

func TestClaimableNoCliff(t *testing.T) {
	schedule := types.VestingSchedule{Start: 0, Duration: 100}

	require.Equal(t, uint64(0), Claimable(1000, schedule, 0))
	require.Equal(t, uint64(250), Claimable(1000, schedule, 25))
	require.Equal(t, uint64(990), Claimable(1000, schedule, 99))
	require.Equal(t, uint64(1000), Claimable(1000, schedule, 100))
}

func TestClaimableMonotonic(t *testing.T) {
	schedule := types.VestingSchedule{
		Start:        1700000000,
		CliffSeconds: 3600,
		Duration:     864000,
	}

	prev := uint64(0)
	for now := schedule.Start; now <= schedule.Start+schedule.Duration; now += 7919 {
		got := Claimable(12345, schedule, now)
		require.GreaterOrEqual(t, got, prev, "claimable must never decrease (now=%d)", now)
		require.LessOrEqual(t, got, uint64(12345))
		prev = got
	}
}

func TestClaimableLargeAllocationNoOverflow(t *testing.T) {
	// A near-max total times a large elapsed would overflow a 64-bit
	// product; the division must still land exactly.
	schedule := types.VestingSchedule{Start: 0, Duration: 1 << 40}
	total := uint64(1) << 62

	require.Equal(t, total/2, Claimable(total, schedule, 1<<39))
	require.Equal(t, total, Claimable(total, schedule, 1<<40))
}

func TestClaimableFrequencyIsIgnored(t *testing.T) {
	base := types.VestingSchedule{Start: 0, CliffSeconds: 10, Duration: 110}
	monthly := base
	monthly.Frequency = "monthly"

	for _, now := range []int64{0, 10, 37, 60, 110, 200} {
		require.Equal(t, Claimable(777, base, now), Claimable(777, monthly, now))
	}
}
