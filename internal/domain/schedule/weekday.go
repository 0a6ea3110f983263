package schedule

import "time"

// weekdayAliases maps the spellings and abbreviations seen in upstream
// template feeds onto the canonical time.Weekday. Lookups are done on the
// lower-cased label with trailing dots stripped.
var weekdayAliases = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"su":        time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"mo":        time.Monday,
	"tuesday":   time.Tuesday,
	"tues":      time.Tuesday,
	"tue":       time.Tuesday,
	"tu":        time.Tuesday,
	"wednesday": time.Wednesday,
	"weds":      time.Wednesday,
	"wed":       time.Wednesday,
	"we":        time.Wednesday,
	"thursday":  time.Thursday,
	"thurs":     time.Thursday,
	"thur":      time.Thursday,
	"thu":       time.Thursday,
	"th":        time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"fr":        time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
	"sa":        time.Saturday,
}

// ParseWeekday normalizes a weekday label to the canonical enum. Unrecognized
// labels report ok=false; callers treat that as "no schedule", not an error.
func ParseWeekday(label string) (time.Weekday, bool) {
	key := make([]byte, 0, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'A' && c <= 'Z':
			key = append(key, c+'a'-'A')
		case c >= 'a' && c <= 'z':
			key = append(key, c)
		case c == '.' || c == ' ':
			// ignore
		default:
			return 0, false
		}
	}

	wd, ok := weekdayAliases[string(key)]
	return wd, ok
}
