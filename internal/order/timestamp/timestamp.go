// Package timestamp turns the free-text date and time pairs stored on order
// documents into comparable instants.
//
// Several writers have stored dates over the years (the checkout form, the
// payment callback, manual back-office edits), so the same field can hold
// "05-03-2024", "2024-03-05T10:00:00Z" or "March 5, 2024". Normalize tries a
// fixed chain of rules and never fails: a value nobody can read sorts as the
// caller's fallback instead of breaking the list.
package timestamp

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DefaultTime is combined with a day-month-year date that has no time text.
const DefaultTime = "12:00:00 AM"

// Epoch is the conventional fallback: unreadable dates sort as oldest.
var Epoch = time.Unix(0, 0).UTC()

var clockLayouts = []string{
	"3:04:05 PM",
	"3:04:05PM",
	"3:04 PM",
	"3:04PM",
	"15:04:05",
	"15:04",
}

// Rule is one step of the chain. ok=false hands over to the next rule.
type Rule func(dateText, timeText string, loc *time.Location) (t time.Time, ok bool)

// Normalizer evaluates Rules in order against a location.
type Normalizer struct {
	Location *time.Location
	Rules    []Rule
}

// New returns the standard chain evaluated in loc (time.Local when nil).
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{
		Location: loc,
		Rules:    []Rule{DayMonthYear, DateAndTime, TimeOnly},
	}
}

var std = New(nil)

// Normalize runs the standard chain in the local zone.
func Normalize(dateText, timeText string, fallback time.Time) time.Time {
	return std.Normalize(dateText, timeText, fallback)
}

func (n *Normalizer) Normalize(dateText, timeText string, fallback time.Time) time.Time {
	loc := n.Location
	if loc == nil {
		loc = time.Local
	}
	dateText = strings.TrimSpace(dateText)
	timeText = strings.TrimSpace(timeText)
	for _, rule := range n.Rules {
		if t, ok := try(rule, dateText, timeText, loc); ok {
			return t
		}
	}
	return fallback
}

func try(rule Rule, dateText, timeText string, loc *time.Location) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	return rule(dateText, timeText, loc)
}

// DayMonthYear reads "DD-MM-YYYY" and combines it with timeText, which
// defaults to DefaultTime.
func DayMonthYear(dateText, timeText string, loc *time.Location) (time.Time, bool) {
	if !strings.Contains(dateText, "-") {
		return time.Time{}, false
	}
	parts := strings.Split(dateText, "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, ok := atoi(parts[0])
	if !ok || day < 1 || day > 31 {
		return time.Time{}, false
	}
	month, ok := atoi(parts[1])
	if !ok || month < 1 || month > 12 {
		return time.Time{}, false
	}
	year, ok := atoi(parts[2])
	if !ok || year <= 1900 {
		return time.Time{}, false
	}

	if timeText == "" {
		timeText = DefaultTime
	}
	clock, ok := parseClock(timeText)
	if !ok {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day,
		clock.Hour(), clock.Minute(), clock.Second(), 0, loc), true
}

// DateAndTime parses "<date> <time>" as a generic human date-time.
func DateAndTime(dateText, timeText string, loc *time.Location) (time.Time, bool) {
	if dateText == "" {
		return time.Time{}, false
	}
	return parseAny(strings.TrimSpace(dateText+" "+timeText), loc)
}

// TimeOnly covers writers that stored a full timestamp in the time field.
func TimeOnly(dateText, timeText string, loc *time.Location) (time.Time, bool) {
	if timeText == "" {
		return time.Time{}, false
	}
	return parseAny(timeText, loc)
}

func parseAny(text string, loc *time.Location) (time.Time, bool) {
	t, err := dateparse.ParseIn(text, loc)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

func parseClock(text string) (time.Time, bool) {
	text = strings.ToUpper(strings.TrimSpace(text))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
