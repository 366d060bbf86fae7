package expiry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

func fixed(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int { return &v }

func TestCalculate_PresetMonthEndClamp(t *testing.T) {
	calc := NewCalculator(time.UTC).WithClock(fixed(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))

	res, err := calc.Calculate(Input{PlanMonths: intPtr(1)})
	require.NoError(t, err)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), *res.ExpiresAt)
	assert.Equal(t, 1, *res.PlanMonths)
}

func TestCalculate_CustomEndDate(t *testing.T) {
	calc := NewCalculator(time.UTC).WithClock(fixed(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))
	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	res, err := calc.Calculate(Input{EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC), *res.ExpiresAt)
	assert.Equal(t, 5, *res.PlanMonths)
}

func TestCalculate_CustomEndDateWithStart(t *testing.T) {
	calc := NewCalculator(time.UTC).WithClock(fixed(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	res, err := calc.Calculate(Input{EndDate: &end, StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, 3, *res.PlanMonths)
}

func TestCalculate_PastCustomDateIsKept(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	calc := NewCalculator(time.UTC).WithClock(fixed(now))
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	res, err := calc.Calculate(Input{EndDate: &end})
	require.NoError(t, err)
	assert.True(t, res.ExpiresAt.Before(now))
	assert.Equal(t, 0, *res.PlanMonths)

	acct := core.VpnAccount{ExpiresAt: res.ExpiresAt}
	assert.Equal(t, core.ExpirationExpired, acct.ExpirationStatus(now))
}

func TestCalculate_Unlimited(t *testing.T) {
	res, err := NewCalculator(time.UTC).Calculate(Input{})
	require.NoError(t, err)
	assert.Nil(t, res.ExpiresAt)
	assert.Nil(t, res.PlanMonths)
}

func TestCalculate_RejectsNonPositiveMonths(t *testing.T) {
	_, err := NewCalculator(time.UTC).Calculate(Input{PlanMonths: intPtr(0)})
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"leap february", time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC)},
		{"common february", time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"year rollover", time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC), 3, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"mid month", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), 12, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"thirty day month", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.in, tt.n))
		})
	}
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"same day next months", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 5},
		{"one day short", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), 4},
		{"end of short month", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), 1},
		{"past end", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthsBetween(tt.start, tt.end))
		})
	}
}
