package expiry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Date is a custom end or start date as sent by clients: either an RFC 3339
// timestamp or a plain calendar day such as "2024-06-15". A plain day is
// read in the calculator's location, not UTC.
type Date struct {
	t   time.Time
	day bool
}

// At wraps an instant.
func At(t time.Time) *Date {
	return &Date{t: t}
}

// Day wraps a calendar day.
func Day(year int, month time.Month, day int) *Date {
	return &Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), day: true}
}

func ParseDate(s string) (*Date, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &Date{t: t, day: true}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("date %q is neither YYYY-MM-DD nor RFC 3339", s)
	}
	return &Date{t: t}, nil
}

// In resolves d in loc. A nil Date resolves to nil.
func (d *Date) In(loc *time.Location) *time.Time {
	if d == nil {
		return nil
	}
	var t time.Time
	if d.day {
		y, m, dd := d.t.Date()
		t = time.Date(y, m, dd, 0, 0, 0, 0, loc)
	} else {
		t = d.t.In(loc)
	}
	return &t
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.day {
		return json.Marshal(d.t.Format(time.DateOnly))
	}
	return json.Marshal(d.t.Format(time.RFC3339))
}
