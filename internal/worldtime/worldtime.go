// Package worldtime implements the simulation's discrete world clock.
package worldtime

import "fmt"

// WorldTime is a monotonically advancing (day, hour, minute) clock. Minutes
// carry into hours, hours carry into days.
type WorldTime struct {
	Day    uint32 `json:"day"`
	Hour   uint8  `json:"hour"`
	Minute uint8  `json:"minute"`
}

// New constructs a WorldTime, normalizing any overflow in hour/minute.
func New(day uint32, hour, minute int) WorldTime {
	return WorldTime{}.AddMinutes(int(day)*24*60 + hour*60 + minute)
}

// TotalMinutes returns the minutes elapsed since day 0, hour 0, minute 0.
func (t WorldTime) TotalMinutes() int {
	return int(t.Day)*24*60 + int(t.Hour)*60 + int(t.Minute)
}

// AddMinutes returns a new WorldTime advanced by n minutes (n may be negative,
// but the result is never allowed below day 0).
func (t WorldTime) AddMinutes(n int) WorldTime {
	total := t.TotalMinutes() + n
	if total < 0 {
		total = 0
	}

	day := total / (24 * 60)
	rem := total % (24 * 60)
	hour := rem / 60
	minute := rem % 60

	return WorldTime{Day: uint32(day), Hour: uint8(hour), Minute: uint8(minute)}
}

// Before reports whether t strictly precedes o.
func (t WorldTime) Before(o WorldTime) bool {
	return t.TotalMinutes() < o.TotalMinutes()
}

// After reports whether t strictly follows o.
func (t WorldTime) After(o WorldTime) bool {
	return t.TotalMinutes() > o.TotalMinutes()
}

// AtOrAfter reports t >= o.
func (t WorldTime) AtOrAfter(o WorldTime) bool {
	return !t.Before(o)
}

// Equal reports whether t and o denote the same instant.
func (t WorldTime) Equal(o WorldTime) bool {
	return t.TotalMinutes() == o.TotalMinutes()
}

// Sub returns the number of minutes between t and o (t - o).
func (t WorldTime) Sub(o WorldTime) int {
	return t.TotalMinutes() - o.TotalMinutes()
}

// Clock returns "HH:MM" for the time-of-day portion, ignoring day.
func (t WorldTime) Clock() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t WorldTime) String() string {
	return fmt.Sprintf("day %d %s", t.Day, t.Clock())
}
