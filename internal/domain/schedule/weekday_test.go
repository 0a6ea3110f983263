package schedule

import (
	"testing"
	"time"
)

func TestParseWeekday(t *testing.T) {
	cases := []struct {
		label string
		want  time.Weekday
		ok    bool
	}{
		{"Monday", time.Monday, true},
		{"monday", time.Monday, true},
		{"MON", time.Monday, true},
		{"mon.", time.Monday, true},
		{"Tues", time.Tuesday, true},
		{"tu", time.Tuesday, true},
		{"Weds", time.Wednesday, true},
		{"THURS", time.Thursday, true},
		{"Thur.", time.Thursday, true},
		{"fri", time.Friday, true},
		{"Sat", time.Saturday, true},
		{"sunday", time.Sunday, true},
		{"", 0, false},
		{"holiday", 0, false},
		{"m0nday", 0, false},
		{"lunes", 0, false},
	}

	for _, c := range cases {
		got, ok := ParseWeekday(c.label)
		if ok != c.ok {
			t.Errorf("ParseWeekday(%q) ok = %v, want %v", c.label, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseWeekday(%q) = %v, want %v", c.label, got, c.want)
		}
	}
}
