// Package dates holds the pure calendar arithmetic used by the reminder
// engine. Every function works on UTC instants plus integer hour offsets;
// nothing here touches the time zone database.
package dates

import (
	"fmt"
	"time"
)

// Frequency describes how often a reminder repeats.
type Frequency string

const (
	FreqNone          Frequency = "none"
	FreqDaily         Frequency = "daily"
	FreqDailyWeekdays Frequency = "daily-weekdays"
	FreqWeekly        Frequency = "weekly"
	FreqBiweekly      Frequency = "biweekly"
	FreqTriweekly     Frequency = "triweekly"
	FreqMonthly       Frequency = "monthly"
	FreqQuarterly     Frequency = "quarterly"
	FreqBiannual      Frequency = "biannual"
	FreqAnnual        Frequency = "annual"
)

// Valid reports whether f is one of the known frequency values.
func (f Frequency) Valid() bool {
	switch f {
	case FreqNone, FreqDaily, FreqDailyWeekdays, FreqWeekly, FreqBiweekly,
		FreqTriweekly, FreqMonthly, FreqQuarterly, FreqBiannual, FreqAnnual:
		return true
	}
	return false
}

// Recurring reports whether f schedules more than one fire.
func (f Frequency) Recurring() bool {
	return f != FreqNone && f != ""
}

// DSTDirection selects which way a bulk daylight-saving adjustment moves
// stored wall clocks.
type DSTDirection string

const (
	DSTForward  DSTDirection = "forward"
	DSTBackward DSTDirection = "backward"
)

// WithOffset shifts a UTC instant into the wall clock of a fixed
// UTC-offset zone. Offsets are fractional hours, so +5.5 means +05:30.
// The result is still a time.Time in the UTC location; only its clock
// fields are meaningful to the caller.
func WithOffset(t time.Time, offsetHours float64) time.Time {
	return t.UTC().Add(time.Duration(offsetHours * float64(time.Hour)))
}

// ToUTC undoes WithOffset for the same offset.
func ToUTC(local time.Time, offsetHours float64) time.Time {
	return local.Add(-time.Duration(offsetHours * float64(time.Hour)))
}

// SameCalendarDay reports whether a and b fall on the same calendar day
// when both are viewed through the given fixed offset. Pass 0 for UTC.
func SameCalendarDay(a, b time.Time, offsetHours float64) bool {
	la, lb := WithOffset(a, offsetHours), WithOffset(b, offsetHours)
	return la.Year() == lb.Year() && la.Month() == lb.Month() && la.Day() == lb.Day()
}

// IsLeapYear follows the Gregorian rule: divisible by four, except
// centuries not divisible by four hundred.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the length of the month containing year/month.
func DaysInMonth(year int, month time.Month) int {
	switch month {
	case time.January, time.March, time.May, time.July, time.August, time.October, time.December:
		return 31
	case time.April, time.June, time.September, time.November:
		return 30
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	}
	return 0
}

// AddMonthsClamped advances t by n months, clamping the day of month to
// the destination month's length. Jan 31 plus one month lands on Feb 28,
// or Feb 29 in a leap year; it never spills into March.
func AddMonthsClamped(t time.Time, n int) time.Time {
	t = t.UTC()
	year, month := t.Year(), int(t.Month())-1+n
	year += month / 12
	month %= 12
	if month < 0 {
		month += 12
		year--
	}
	m := time.Month(month + 1)
	day := t.Day()
	if max := DaysInMonth(year, m); day > max {
		day = max
	}
	return time.Date(year, m, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// UpcomingMonday returns the next Monday strictly after t, keeping the
// wall time.
func UpcomingMonday(t time.Time) time.Time {
	t = t.UTC()
	days := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, days)
}

// NextOccurrence computes the fire instant one period after lastFire.
// FreqNone has no next occurrence and is an error; callers decide whether
// a reminder recurs before asking.
func NextOccurrence(lastFire time.Time, freq Frequency) (time.Time, error) {
	lastFire = lastFire.UTC()
	switch freq {
	case FreqDaily:
		return lastFire.Add(24 * time.Hour), nil
	case FreqDailyWeekdays:
		switch lastFire.Weekday() {
		case time.Friday, time.Saturday, time.Sunday:
			return UpcomingMonday(lastFire), nil
		default:
			return lastFire.Add(24 * time.Hour), nil
		}
	case FreqWeekly:
		return lastFire.AddDate(0, 0, 7), nil
	case FreqBiweekly:
		return lastFire.AddDate(0, 0, 14), nil
	case FreqTriweekly:
		return lastFire.AddDate(0, 0, 21), nil
	case FreqMonthly:
		return AddMonthsClamped(lastFire, 1), nil
	case FreqQuarterly:
		return AddMonthsClamped(lastFire, 3), nil
	case FreqBiannual:
		return AddMonthsClamped(lastFire, 6), nil
	case FreqAnnual:
		return AddMonthsClamped(lastFire, 12), nil
	}
	return time.Time{}, fmt.Errorf("dates: no next occurrence for frequency %q", freq)
}

// NextFutureOccurrence advances from lastFire one period at a time until
// the result is strictly after now. Missed periods are skipped, not
// replayed; cost is linear in the number of periods missed.
func NextFutureOccurrence(lastFire time.Time, freq Frequency, now time.Time) (time.Time, error) {
	next, err := NextOccurrence(lastFire, freq)
	if err != nil {
		return time.Time{}, err
	}
	for !next.After(now) {
		next, err = NextOccurrence(next, freq)
		if err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

// ApplyDSTShift moves a stored fire instant's wall clock by one hour for
// a daylight-saving transition. Forward at hour 23 rolls into hour 0 of
// the next day; backward at hour 0 rolls into hour 23 of the previous
// day. Minutes and seconds are untouched.
func ApplyDSTShift(due time.Time, dir DSTDirection) (time.Time, error) {
	due = due.UTC()
	switch dir {
	case DSTForward:
		return due.Add(time.Hour), nil
	case DSTBackward:
		return due.Add(-time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("dates: unknown dst direction %q", dir)
}
