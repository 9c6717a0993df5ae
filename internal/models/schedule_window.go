package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ScheduleWindow is a time-of-day + day-of-week interval during which the
// scheduler may claim work. An end time earlier than the start time wraps
// past midnight. Zero enabled windows means the engine is always active.
type ScheduleWindow struct {
	BaseModel

	// StartTime and EndTime are "HH:MM" in the process's local time zone.
	StartTime string `gorm:"not null;size:5" json:"start_time"`
	EndTime   string `gorm:"not null;size:5" json:"end_time"`

	// DaysOfWeek is a comma-separated list of 0..6 (0=Sunday). Empty means
	// every day.
	DaysOfWeek string `gorm:"size:32" json:"days_of_week"`

	Enabled bool `gorm:"default:true" json:"enabled"`
}

// TableName returns the table name for ScheduleWindow.
func (ScheduleWindow) TableName() string {
	return "schedule_windows"
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidClockTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidClockTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidClockTime, s)
	}
	return h*60 + m, nil
}

// Days returns the set of weekdays this window applies to. Empty DaysOfWeek
// yields all seven days.
func (w *ScheduleWindow) Days() map[time.Weekday]bool {
	days := make(map[time.Weekday]bool, 7)
	raw := strings.TrimSpace(w.DaysOfWeek)
	if raw == "" {
		for d := time.Sunday; d <= time.Saturday; d++ {
			days[d] = true
		}
		return days
	}
	for _, p := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days[time.Weekday(n)] = true
	}
	return days
}

// Contains reports whether the given instant falls inside this window.
// Wrap-midnight windows are treated as two intervals: [start, 24h) on the
// listed day and [0, end) on the following day.
func (w *ScheduleWindow) Contains(t time.Time) bool {
	start, err := parseClock(w.StartTime)
	if err != nil {
		return false
	}
	end, err := parseClock(w.EndTime)
	if err != nil {
		return false
	}

	days := w.Days()
	minute := t.Hour()*60 + t.Minute()

	if start <= end {
		return days[t.Weekday()] && minute >= start && minute < end
	}

	// Wrapped: the tail interval belongs to the day the window started on.
	if days[t.Weekday()] && minute >= start {
		return true
	}
	prev := (t.Weekday() + 6) % 7
	return days[prev] && minute < end
}

// Validate performs basic validation on the window.
func (w *ScheduleWindow) Validate() error {
	if _, err := parseClock(w.StartTime); err != nil {
		return err
	}
	if _, err := parseClock(w.EndTime); err != nil {
		return err
	}
	for _, p := range strings.Split(w.DaysOfWeek, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 6 {
			return fmt.Errorf("%w: %q", ErrInvalidDayOfWeek, p)
		}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the window.
func (w *ScheduleWindow) BeforeCreate(tx *gorm.DB) error {
	if err := w.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return w.Validate()
}
