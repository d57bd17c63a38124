package dates

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts.UTC()
}

func TestAddMonthsClamped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		in     string
		months int
		want   string
	}{
		{"jan 31 clamps to feb 28", "2023-01-31T09:00:00Z", 1, "2023-02-28T09:00:00Z"},
		{"jan 31 clamps to feb 29 in leap year", "2024-01-31T09:00:00Z", 1, "2024-02-29T09:00:00Z"},
		{"mar 31 clamps to apr 30", "2024-03-31T12:30:00Z", 1, "2024-04-30T12:30:00Z"},
		{"plain month keeps day", "2024-04-15T08:00:00Z", 1, "2024-05-15T08:00:00Z"},
		{"quarter across year end", "2024-11-30T00:00:00Z", 3, "2025-02-28T00:00:00Z"},
		{"annual keeps feb 29 only in leap target", "2024-02-29T09:00:00Z", 12, "2025-02-28T09:00:00Z"},
		{"wall time preserved", "2024-06-10T23:59:59Z", 6, "2024-12-10T23:59:59Z"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := AddMonthsClamped(mustParse(t, tc.in), tc.months)
			if want := mustParse(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestIsLeapYear(t *testing.T) {
	t.Parallel()

	cases := []struct {
		year int
		want bool
	}{
		{2024, true},
		{2023, false},
		{2000, true},
		{1900, false},
		{2400, true},
	}
	for _, tc := range cases {
		if got := IsLeapYear(tc.year); got != tc.want {
			t.Errorf("IsLeapYear(%d) = %v, want %v", tc.year, got, tc.want)
		}
	}
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		last string
		freq Frequency
		want string
	}{
		{"daily", "2024-06-01T09:00:00Z", FreqDaily, "2024-06-02T09:00:00Z"},
		{"weekday monday to tuesday", "2024-06-03T09:00:00Z", FreqDailyWeekdays, "2024-06-04T09:00:00Z"},
		{"weekday thursday to friday", "2024-06-06T09:00:00Z", FreqDailyWeekdays, "2024-06-07T09:00:00Z"},
		{"weekday friday skips to monday", "2024-06-07T09:00:00Z", FreqDailyWeekdays, "2024-06-10T09:00:00Z"},
		{"weekday saturday skips to monday", "2024-06-08T09:00:00Z", FreqDailyWeekdays, "2024-06-10T09:00:00Z"},
		{"weekday sunday skips to monday", "2024-06-09T09:00:00Z", FreqDailyWeekdays, "2024-06-10T09:00:00Z"},
		{"weekly", "2024-01-01T09:00:00Z", FreqWeekly, "2024-01-08T09:00:00Z"},
		{"biweekly", "2024-01-01T09:00:00Z", FreqBiweekly, "2024-01-15T09:00:00Z"},
		{"triweekly", "2024-01-01T09:00:00Z", FreqTriweekly, "2024-01-22T09:00:00Z"},
		{"monthly clamp", "2024-01-31T09:00:00Z", FreqMonthly, "2024-02-29T09:00:00Z"},
		{"quarterly", "2024-01-15T09:00:00Z", FreqQuarterly, "2024-04-15T09:00:00Z"},
		{"biannual", "2024-01-15T09:00:00Z", FreqBiannual, "2024-07-15T09:00:00Z"},
		{"annual", "2024-02-29T09:00:00Z", FreqAnnual, "2025-02-28T09:00:00Z"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NextOccurrence(mustParse(t, tc.last), tc.freq)
			if err != nil {
				t.Fatalf("NextOccurrence: %v", err)
			}
			if want := mustParse(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestNextOccurrenceRejectsNone(t *testing.T) {
	t.Parallel()

	if _, err := NextOccurrence(time.Now(), FreqNone); err == nil {
		t.Fatal("expected error for non-recurring frequency")
	}
	if _, err := NextOccurrence(time.Now(), Frequency("sometimes")); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
}

func TestNextFutureOccurrenceSkipsMissedPeriods(t *testing.T) {
	t.Parallel()

	// A weekly reminder last scheduled two weeks ago lands on the next
	// upcoming slot, not on a stale intermediate one.
	last := mustParse(t, "2024-01-01T09:00:00Z")
	now := mustParse(t, "2024-01-15T10:00:00Z")
	got, err := NextFutureOccurrence(last, FreqWeekly, now)
	if err != nil {
		t.Fatalf("NextFutureOccurrence: %v", err)
	}
	if want := mustParse(t, "2024-01-22T09:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextFutureOccurrenceStrictlyAfterNow(t *testing.T) {
	t.Parallel()

	// now exactly on a slot boundary pushes to the following slot.
	last := mustParse(t, "2024-01-01T09:00:00Z")
	now := mustParse(t, "2024-01-08T09:00:00Z")
	got, err := NextFutureOccurrence(last, FreqWeekly, now)
	if err != nil {
		t.Fatalf("NextFutureOccurrence: %v", err)
	}
	if want := mustParse(t, "2024-01-15T09:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestApplyDSTShift(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		dir  DSTDirection
		want string
	}{
		{"forward plain", "2024-03-10T09:30:00Z", DSTForward, "2024-03-10T10:30:00Z"},
		{"forward rolls day at hour 23", "2024-03-10T23:45:00Z", DSTForward, "2024-03-11T00:45:00Z"},
		{"backward plain", "2024-11-03T09:30:00Z", DSTBackward, "2024-11-03T08:30:00Z"},
		{"backward rolls day at hour 0", "2024-11-03T00:15:00Z", DSTBackward, "2024-11-02T23:15:00Z"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ApplyDSTShift(mustParse(t, tc.in), tc.dir)
			if err != nil {
				t.Fatalf("ApplyDSTShift: %v", err)
			}
			if want := mustParse(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestApplyDSTShiftRoundTrip(t *testing.T) {
	t.Parallel()

	in := mustParse(t, "2024-06-15T14:20:00Z")
	fwd, err := ApplyDSTShift(in, DSTForward)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	back, err := ApplyDSTShift(fwd, DSTBackward)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if !back.Equal(in) {
		t.Fatalf("round trip drifted: %v -> %v", in, back)
	}
}

func TestApplyDSTShiftRejectsUnknownDirection(t *testing.T) {
	t.Parallel()

	if _, err := ApplyDSTShift(time.Now(), DSTDirection("sideways")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSameCalendarDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		a, b   string
		offset float64
		want   bool
	}{
		{"same utc day", "2024-06-01T00:10:00Z", "2024-06-01T23:50:00Z", 0, true},
		{"different utc day", "2024-06-01T23:50:00Z", "2024-06-02T00:10:00Z", 0, false},
		{"same day under positive offset", "2024-06-01T23:50:00Z", "2024-06-02T00:10:00Z", 5, true},
		{"same day under half-hour offset", "2024-06-01T23:50:00Z", "2024-06-02T00:10:00Z", 5.5, true},
		{"split by negative offset", "2024-06-01T01:00:00Z", "2024-06-01T23:00:00Z", -2, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SameCalendarDay(mustParse(t, tc.a), mustParse(t, tc.b), tc.offset); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	t.Parallel()

	in := mustParse(t, "2024-06-01T10:00:00Z")
	if got := ToUTC(WithOffset(in, 7), 7); !got.Equal(in) {
		t.Fatalf("round trip drifted: %v", got)
	}
}

func TestUpcomingMonday(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"from friday", "2024-06-07T09:00:00Z", "2024-06-10T09:00:00Z"},
		{"from sunday", "2024-06-09T09:00:00Z", "2024-06-10T09:00:00Z"},
		{"from monday jumps a full week", "2024-06-10T09:00:00Z", "2024-06-17T09:00:00Z"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := UpcomingMonday(mustParse(t, tc.in))
			if want := mustParse(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestSameCalendarDayOffsetsVerifiedOnSundayBoundary(t *testing.T) {
	t.Parallel()

	// 2024-06-01T20:00Z is already June 2nd at +5:30.
	a := mustParse(t, "2024-06-01T20:00:00Z")
	b := mustParse(t, "2024-06-02T03:30:00Z")
	if !SameCalendarDay(a, b, 5) {
		t.Fatal("expected same local day at +5")
	}
	if SameCalendarDay(a, b, 0) {
		t.Fatal("expected different utc days")
	}
}
