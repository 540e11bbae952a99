package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVestingScheduleValidate(t *testing.T) {
	tests := []struct {
		name     string
		schedule VestingSchedule
		wantErr  bool
	}{
		{
			name:     "instant release",
			schedule: VestingSchedule{},
		},
		{
			name:     "linear with cliff",
			schedule: VestingSchedule{Start: 1700000000, CliffSeconds: 86400, Duration: 2592000},
		},
		{
			name:     "cliff equal to duration",
			schedule: VestingSchedule{CliffSeconds: 3600, Duration: 3600},
		},
		{
			name:     "negative cliff",
			schedule: VestingSchedule{CliffSeconds: -1, Duration: 3600},
			wantErr:  true,
		},
		{
			name:     "negative duration",
			schedule: VestingSchedule{Duration: -1},
			wantErr:  true,
		},
		{
			name:     "cliff exceeds duration",
			schedule: VestingSchedule{CliffSeconds: 7200, Duration: 3600},
			wantErr:  true,
		},
		{
			name:     "cliff on instant schedule",
			schedule: VestingSchedule{CliffSeconds: 60},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}
