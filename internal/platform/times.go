package platform

import (
	"strings"
	"time"
)

var slotLayouts = []string{"3:04 PM", "3:04PM", "3:04pm", "3:04 pm", "15:04", "3 PM", "3PM", "3pm"}

// parseClock reads a wall-clock time as shown by booking sites or as stored
// in booking.Details (24-hour HH:MM).
func parseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range slotLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sameClock reports whether a and b denote the same minute of the day.
func sameClock(a, b string) bool {
	ta, okA := parseClock(a)
	tb, okB := parseClock(b)
	return okA && okB && ta.Equal(tb)
}

// closestSlot picks the slot nearest to the requested time. Slots that do not
// parse are ignored; the first slot is returned when nothing parses.
func closestSlot(slots []string, requested string) string {
	if len(slots) == 0 {
		return ""
	}
	want, ok := parseClock(requested)
	if !ok {
		return slots[0]
	}

	best := ""
	var bestDiff time.Duration
	for _, slot := range slots {
		t, ok := parseClock(slot)
		if !ok {
			continue
		}
		diff := t.Sub(want)
		if diff < 0 {
			diff = -diff
		}
		if best == "" || diff < bestDiff {
			best, bestDiff = slot, diff
		}
	}
	if best == "" {
		return slots[0]
	}
	return best
}

// displayClock renders HH:MM as "2:00 PM".
func displayClock(hhmm string) string {
	t, ok := parseClock(hhmm)
	if !ok {
		return hhmm
	}
	return t.Format("3:04 PM")
}

// splitName returns first and last name for forms that ask for both.
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
