package scheduler

import (
	"time"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// InActiveHours reports whether the instant falls inside the union of the
// enabled windows. Zero enabled windows means always active. Time-of-day
// comparisons use the time value's own location; callers pass local time.
func InActiveHours(windows []*models.ScheduleWindow, now time.Time) bool {
	enabled := 0
	for _, w := range windows {
		if !w.Enabled {
			continue
		}
		enabled++
		if w.Contains(now) {
			return true
		}
	}
	return enabled == 0
}
