package router

import (
	"strconv"
	"strings"
	"time"
)

// When is a resolved start time.
type When struct {
	Start time.Time
	// AllDay is set when no clock time was given; Start is 09:00 local.
	AllDay bool
	Text   string
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April, "may": time.May,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// ResolveWhen resolves the time expressions in text against ref in loc.
// It reports false when text has no time expression.
func ResolveWhen(text string, ref time.Time, loc *time.Location) (When, bool) {
	if loc == nil {
		loc = time.UTC
	}
	ref = ref.In(loc)
	y, mo, d := ref.Date()
	var (
		found, dayFound, sameWeekday bool
		offset                       int
		hour, minute                 = -1, 0
		defaultHour                  = 9
	)

	if nextWeekRe.MatchString(text) {
		offset, found, dayFound = 7, true, true
	}
	if m := relDayRe.FindStringSubmatch(text); m != nil {
		found, dayFound = true, true
		switch strings.ToLower(m[1]) {
		case "tonight":
			defaultHour = 20
		case "tomorrow", "tmrw", "tmr":
			offset = 1
		}
	}
	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		found, dayFound = true, true
		target := weekdays[strings.ToLower(m[2])]
		delta := (int(target) - int(ref.Weekday()) + 7) % 7
		if delta == 0 {
			if strings.EqualFold(m[1], "next") {
				delta = 7
			} else {
				sameWeekday = true
			}
		}
		offset = delta
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		if day, err := strconv.Atoi(m[2]); err == nil && day >= 1 && day <= 31 {
			found, dayFound = true, true
			mo, d, offset = months[strings.ToLower(m[1])[:3]], day, 0
			y = yearFor(ref, mo, d)
		}
	} else if m := numDateRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		found, dayFound = true, true
		mo, d, offset = time.Month(month), day, 0
		y = yearFor(ref, mo, d)
	}

	if m := clockRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			minute, _ = strconv.Atoi(m[2])
			pm := strings.EqualFold(m[3], "p")
			switch {
			case h == 12 && !pm:
				h = 0
			case pm && h < 12:
				h += 12
			}
			hour, found = h, true
		}
	}
	if hour < 0 {
		// clock forms are stripped first so "3:30pm" is not read as 24h
		if m := h24Re.FindStringSubmatch(clockRe.ReplaceAllString(text, " ")); m != nil {
			hour, _ = strconv.Atoi(m[1])
			minute, _ = strconv.Atoi(m[2])
			found = true
		}
	}
	if hour < 0 {
		if m := noonRe.FindStringSubmatch(text); m != nil {
			found = true
			if strings.EqualFold(m[1], "noon") {
				hour = 12
			} else {
				hour, minute = 23, 59
			}
		}
	}
	if !found {
		return When{}, false
	}

	w := When{Text: matchedTimeText(text)}
	if hour < 0 {
		hour = defaultHour
		w.AllDay = defaultHour == 9
	}
	start := time.Date(y, mo, d+offset, hour, minute, 0, 0, loc)
	switch {
	case sameWeekday && (w.AllDay || !start.After(ref)):
		start = start.AddDate(0, 0, 7)
	case !dayFound && !start.After(ref):
		start = start.AddDate(0, 0, 1)
	}
	w.Start = start
	return w, true
}

// yearFor picks ref's year unless month/day already passed.
func yearFor(ref time.Time, mo time.Month, d int) int {
	y := ref.Year()
	today := time.Date(y, ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	if time.Date(y, mo, d, 0, 0, 0, 0, ref.Location()).Before(today) {
		return y + 1
	}
	return y
}
