package harm

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day in UTC
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day. The wrapped time is always midnight UTC.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the UTC calendar day containing t.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// StartOfDay is the first instant of the day.
func (d Date) StartOfDay() time.Time { return d.Time }

// EndOfDay is the last representable instant of the day. Daily scores are
// computed as of this instant.
func (d Date) EndOfDay() time.Time { return d.Time.Add(24*time.Hour - time.Nanosecond) }

// Contains reports whether t falls on this day (UTC).
func (d Date) Contains(t time.Time) bool { return DateOf(t).Equal(d) }

func (d Date) String() string { return d.Time.Format(dateLayout) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween returns whole calendar days from -> to (negative if to is earlier).
func DaysBetween(from, to Date) int { return int(to.Time.Sub(from.Time).Hours() / 24) }

// ElapsedDays returns the fractional number of days from occurred to ref.
func ElapsedDays(occurred, ref time.Time) float64 { return ref.Sub(occurred).Hours() / 24 }

func minDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}
