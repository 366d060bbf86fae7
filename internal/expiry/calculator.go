// Package expiry derives absolute account expiry timestamps from plan input.
package expiry

import (
	"fmt"
	"time"

	"github.com/zawnaing-2024/vmaster/internal/core"
)

// Input selects one of the three expiry modes. Leaving both fields unset
// means unlimited.
type Input struct {
	PlanMonths *int
	EndDate    *time.Time
	// StartDate anchors the display duration of a custom end date; defaults to now.
	StartDate *time.Time
}

type Result struct {
	ExpiresAt  *time.Time
	PlanMonths *int
}

type Calculator struct {
	loc *time.Location
	now func() time.Time
}

func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{loc: loc, now: time.Now}
}

func (c *Calculator) Location() *time.Location { return c.loc }

// WithClock returns a copy of c that reads the current time from now.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	return &Calculator{loc: c.loc, now: now}
}

func (c *Calculator) Calculate(in Input) (Result, error) {
	now := c.now().In(c.loc)

	switch {
	case in.EndDate != nil:
		end := EndOfDay(in.EndDate.In(c.loc))
		start := now
		if in.StartDate != nil {
			start = in.StartDate.In(c.loc)
		}
		months := MonthsBetween(start, end)
		return Result{ExpiresAt: &end, PlanMonths: &months}, nil

	case in.PlanMonths != nil:
		if *in.PlanMonths <= 0 {
			return Result{}, fmt.Errorf("plan duration must be positive, got %d: %w", *in.PlanMonths, core.ErrInvalidInput)
		}
		exp := AddMonths(now, *in.PlanMonths)
		months := *in.PlanMonths
		return Result{ExpiresAt: &exp, PlanMonths: &months}, nil
	}

	return Result{}, nil
}

// AddMonths adds n calendar months to t, clamping the day to the last day of
// the target month so Jan 31 + 1 month lands on the end of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// MonthsBetween counts whole calendar months from start to end. It never
// returns a negative value.
func MonthsBetween(start, end time.Time) int {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	months := (ey-sy)*12 + int(em-sm)
	if ed < sd && ed < daysIn(ey, em) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// EndOfDay returns 23:59:59 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
