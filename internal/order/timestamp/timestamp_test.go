package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DayMonthYear(t *testing.T) {
	n := New(time.UTC)

	tests := []struct {
		name     string
		date     string
		time     string
		expected time.Time
	}{
		{
			name:     "date with 12h time",
			date:     "05-03-2024",
			time:     "2:30:15 PM",
			expected: time.Date(2024, time.March, 5, 14, 30, 15, 0, time.UTC),
		},
		{
			name:     "missing time defaults to midnight",
			date:     "05-03-2024",
			time:     "",
			expected: time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "24h time",
			date:     "31-12-2023",
			time:     "23:59",
			expected: time.Date(2023, time.December, 31, 23, 59, 0, 0, time.UTC),
		},
		{
			name:     "lower case meridiem",
			date:     "01-01-2020",
			time:     "12:00:00 pm",
			expected: time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "padded fields",
			date:     " 7 - 8 - 2022 ",
			time:     "9:05 AM",
			expected: time.Date(2022, time.August, 7, 9, 5, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.date, tt.time, Epoch)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestNormalize_IncreasesWithDate(t *testing.T) {
	n := New(time.UTC)
	dates := []string{"28-02-2023", "01-03-2023", "02-03-2023", "15-06-2023", "01-01-2024", "29-02-2024"}

	prev := n.Normalize(dates[0], "10:00:00 AM", Epoch)
	for _, d := range dates[1:] {
		cur := n.Normalize(d, "10:00:00 AM", Epoch)
		assert.True(t, cur.After(prev), "%s should sort after previous date", d)
		prev = cur
	}
}

func TestNormalize_FallsBackWithoutPanicking(t *testing.T) {
	n := New(time.UTC)
	fallback := time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)

	inputs := []struct{ date, time string }{
		{"", ""},
		{"abc", ""},
		{"xx-yy-zzzz", ""},
		{"", "not a time"},
		{"--", "--"},
		{"\x00\x01", "\xff"},
	}
	for _, in := range inputs {
		var got time.Time
		require.NotPanics(t, func() {
			got = n.Normalize(in.date, in.time, fallback)
		})
		assert.True(t, fallback.Equal(got), "date=%q time=%q: got %s", in.date, in.time, got)
	}
}

func TestNormalize_RejectsInvalidTriplets(t *testing.T) {
	tests := []struct {
		name string
		date string
	}{
		{name: "month 13", date: "05-13-2024"},
		{name: "day zero", date: "00-10-2024"},
		{name: "day 32", date: "32-10-2024"},
		{name: "year too old", date: "01-01-1900"},
		{name: "two parts", date: "01-2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := DayMonthYear(tt.date, "", time.UTC)
			assert.False(t, ok)
		})
	}
}

func TestNormalize_InvalidMonthFallsThrough(t *testing.T) {
	n := New(time.UTC)

	got := n.Normalize("05-13-2024", "", Epoch)

	// the generic parser may read this as month-first; either outcome is
	// acceptable, but never the day-month-year reading
	if !got.Equal(Epoch) {
		assert.Equal(t, 2024, got.Year())
		assert.Equal(t, time.May, got.Month())
		assert.Equal(t, 13, got.Day())
	}
}

func TestNormalize_BadTimeFallsToGenericParser(t *testing.T) {
	n := New(time.UTC)

	_, ok := DayMonthYear("05-03-2024", "noon-ish", time.UTC)
	assert.False(t, ok)

	got := n.Normalize("05-03-2024", "noon-ish", Epoch)
	assert.NotPanics(t, func() { _ = got.String() })
}

func TestNormalize_GenericFormats(t *testing.T) {
	n := New(time.UTC)

	got := n.Normalize("2024-03-05", "10:00:00", Epoch)
	assert.True(t, time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC).Equal(got), "got %s", got)

	got = n.Normalize("", "2024-03-05T10:00:00Z", Epoch)
	assert.True(t, time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC).Equal(got), "got %s", got)
}

func TestNormalize_RecoversFromPanickingRule(t *testing.T) {
	n := &Normalizer{
		Location: time.UTC,
		Rules: []Rule{
			func(string, string, *time.Location) (time.Time, bool) { panic("boom") },
			DayMonthYear,
		},
	}

	got := n.Normalize("05-03-2024", "", Epoch)
	assert.True(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC).Equal(got))
}
