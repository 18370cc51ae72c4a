package paluwagan

import "time"

// =============================================================================
// DATE - Day-granularity calendar date (cycles are day-scoped)
// =============================================================================

// Date is a calendar date normalized to UTC midnight. All cycle windows and
// due dates are day-granular; time-of-day never affects scheduling.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.t.After(o.t) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.t.Before(o.t) }
func (d Date) IsZero() bool              { return d.t.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// AddMonthsClamped advances by whole months keeping the day-of-month, clamped
// to the target month's length. Unlike time.AddDate, Jan 31 + 1 month yields
// Feb 28/29 rather than normalizing into March. Monthly cycle windows depend
// on this clamping to stay contiguous.
func (d Date) AddMonthsClamped(n int) Date {
	y, m, day := d.t.Year(), int(d.t.Month()), d.t.Day()
	m += n
	y += (m - 1) / 12
	m = (m-1)%12 + 1
	if m < 1 { // Go's % can go negative for negative n
		m += 12
		y--
	}
	if max := daysInMonth(y, time.Month(m)); day > max {
		day = max
	}
	return NewDate(y, time.Month(m), day)
}

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// DaysBetween returns the whole days from one date to another.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}
