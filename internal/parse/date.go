package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// dateLayouts are tried in order after relative phrases fail to match.
var dateLayouts = []string{
	isoDate,
	"1/2/2006",
	"2/1/2006",
	"January 2",
	"January 2 2006",
	"2 January",
	"2 January 2006",
	"Jan 2",
	"Jan 2 2006",
	"2 Jan",
	"2 Jan 2006",
}

var (
	nextWeekdayRe     = regexp.MustCompile(`next\s+(sun|mon|tues|wednes|thurs|fri|satur)day`)
	thisWeekdayRe     = regexp.MustCompile(`this\s+(sun|mon|tues|wednes|thurs|fri|satur)day`)
	nextWeekOnRe      = regexp.MustCompile(`next week\s+(on\s+)?(sun|mon|tues|wednes|thurs|fri|satur)day`)
	ordinalSuffixRe   = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)
	spacesRe          = regexp.MustCompile(`\s+`)
	weekdays          = map[string]time.Weekday{"sun": time.Sunday, "mon": time.Monday, "tues": time.Tuesday, "wednes": time.Wednesday, "thurs": time.Thursday, "fri": time.Friday, "satur": time.Saturday}
	ambiguousDateHint = "Could not parse date. Please provide date in a clearer format like:\n" +
		"- Exact date (e.g., \"June 19 2024\" or \"2024-06-19\")\n" +
		"- Relative date (e.g., \"next Wednesday\", \"tomorrow\")\n" +
		"- This/next week (e.g., \"this Monday\", \"next week Wednesday\")"
)

// DateResult is the outcome of NormalizeDate.
type DateResult struct {
	Date         string `json:"date"`
	IsValid      bool   `json:"isValid"`
	WasAmbiguous bool   `json:"wasAmbiguous"`
	Message      string `json:"message,omitempty"`
}

// NormalizeDate turns a user supplied date ("tomorrow", "next friday", "June 19")
// into YYYY-MM-DD relative to now. Dates given without a year resolve to the next
// occurrence that is not in the past.
func NormalizeDate(raw string, now time.Time) DateResult {
	if d, ok := relativeDate(raw, now); ok {
		return DateResult{Date: d.Format(isoDate), IsValid: true}
	}

	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", " ")
	cleaned = ordinalSuffixRe.ReplaceAllString(cleaned, "$1")
	cleaned = spacesRe.ReplaceAllString(cleaned, " ")

	for _, layout := range dateLayouts {
		parsed, err := time.ParseInLocation(layout, cleaned, now.Location())
		if err != nil {
			continue
		}
		if !strings.Contains(layout, "2006") {
			parsed = inferYear(parsed, now)
		}
		return DateResult{Date: parsed.Format(isoDate), IsValid: true}
	}

	return DateResult{Date: raw, WasAmbiguous: true, Message: ambiguousDateHint}
}

func inferYear(parsed, now time.Time) time.Time {
	candidate := time.Date(now.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())
	if candidate.Before(startOfDay(now)) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate
}

func relativeDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	today := startOfDay(now)

	if m := nextWeekdayRe.FindStringSubmatch(s); m != nil {
		return weekdayOf(today, weekdays[m[1]]).AddDate(0, 0, 7), true
	}
	if m := thisWeekdayRe.FindStringSubmatch(s); m != nil {
		d := weekdayOf(today, weekdays[m[1]])
		if d.Before(today) {
			d = d.AddDate(0, 0, 7)
		}
		return d, true
	}

	switch s {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "day after tomorrow", "the day after tomorrow":
		return today.AddDate(0, 0, 2), true
	}

	if strings.Contains(s, "next week") {
		if m := nextWeekOnRe.FindStringSubmatch(s); m != nil {
			return weekdayOf(today.AddDate(0, 0, 7), weekdays[m[2]]), true
		}
		return today.AddDate(0, 0, 7), true
	}
	return time.Time{}, false
}

// weekdayOf returns the given weekday within the Sunday-based week containing t.
func weekdayOf(t time.Time, wd time.Weekday) time.Time {
	return t.AddDate(0, 0, int(wd)-int(t.Weekday()))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NormalizeTime converts "2pm", "2:30 PM" or "14:30" to 24-hour HH:MM.
func NormalizeTime(raw string) (string, bool) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	for _, layout := range []string{"15:04", "3:04PM", "3PM", "03:04PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), true
		}
	}
	if h, err := strconv.Atoi(s); err == nil && h >= 0 && h < 24 {
		return time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format("15:04"), true
	}
	return raw, false
}
