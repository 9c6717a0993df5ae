package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// at builds an instant on a given weekday at HH:MM in a fixed zone.
// June 2025: the 2nd is a Monday.
func at(weekday time.Weekday, hour, minute int) time.Time {
	zone := time.FixedZone("test", -5*3600)
	base := time.Date(2025, 6, 1, hour, minute, 0, 0, zone) // Sunday
	return base.AddDate(0, 0, int(weekday-time.Sunday))
}

func TestScheduleWindowContains(t *testing.T) {
	t.Run("normal window", func(t *testing.T) {
		w := &ScheduleWindow{StartTime: "09:00", EndTime: "17:00", Enabled: true}

		assert.True(t, w.Contains(at(time.Monday, 9, 0)))
		assert.True(t, w.Contains(at(time.Monday, 12, 30)))
		assert.False(t, w.Contains(at(time.Monday, 17, 0)), "end is exclusive")
		assert.False(t, w.Contains(at(time.Monday, 8, 59)))
	})

	t.Run("wraps midnight", func(t *testing.T) {
		w := &ScheduleWindow{StartTime: "22:00", EndTime: "06:00", DaysOfWeek: "1,2,3,4,5", Enabled: true}

		// Monday night belongs to Monday's window.
		assert.True(t, w.Contains(at(time.Monday, 22, 0)))
		assert.True(t, w.Contains(at(time.Monday, 23, 59)))
		// Tuesday early morning is the tail of Monday's window.
		assert.True(t, w.Contains(at(time.Tuesday, 5, 59)))
		assert.False(t, w.Contains(at(time.Tuesday, 6, 0)))
		// Monday afternoon is outside.
		assert.False(t, w.Contains(at(time.Monday, 14, 0)))
		// Saturday early morning is the tail of Friday's window.
		assert.True(t, w.Contains(at(time.Saturday, 3, 0)))
		// Monday early morning would be Sunday's tail, and Sunday is not listed.
		assert.False(t, w.Contains(at(time.Monday, 3, 0)))
	})

	t.Run("day restriction", func(t *testing.T) {
		w := &ScheduleWindow{StartTime: "08:00", EndTime: "12:00", DaysOfWeek: "0,6", Enabled: true}

		assert.True(t, w.Contains(at(time.Sunday, 9, 0)))
		assert.True(t, w.Contains(at(time.Saturday, 9, 0)))
		assert.False(t, w.Contains(at(time.Wednesday, 9, 0)))
	})

	t.Run("empty days means every day", func(t *testing.T) {
		w := &ScheduleWindow{StartTime: "00:00", EndTime: "23:59", Enabled: true}
		for d := time.Sunday; d <= time.Saturday; d++ {
			assert.True(t, w.Contains(at(d, 12, 0)))
		}
	})
}

func TestScheduleWindowValidate(t *testing.T) {
	valid := &ScheduleWindow{StartTime: "22:00", EndTime: "06:00", DaysOfWeek: "1,2,3,4,5"}
	require.NoError(t, valid.Validate())

	cases := []*ScheduleWindow{
		{StartTime: "24:00", EndTime: "06:00"},
		{StartTime: "2200", EndTime: "06:00"},
		{StartTime: "22:00", EndTime: "06:60"},
		{StartTime: "22:00", EndTime: "06:00", DaysOfWeek: "7"},
		{StartTime: "22:00", EndTime: "06:00", DaysOfWeek: "mon"},
	}
	for _, w := range cases {
		assert.Error(t, w.Validate(), "window %+v should be invalid", w)
	}
}

func TestNotificationTargetSubscribedTo(t *testing.T) {
	target := &NotificationTarget{
		Name:        "ops",
		TargetType:  NotifyDiscord,
		EndpointURL: "https://example.test/hook",
		Events:      "completed,failed",
	}
	require.NoError(t, target.Validate())

	assert.True(t, target.SubscribedTo(NotifyOnCompleted))
	assert.True(t, target.SubscribedTo(NotifyOnFailed))
	assert.False(t, target.SubscribedTo(NotifyOnQueued))

	bad := &NotificationTarget{Name: "x", TargetType: "sms", EndpointURL: "u"}
	assert.ErrorIs(t, bad.Validate(), ErrUnknownNotificationType)

	badEvents := &NotificationTarget{Name: "x", TargetType: NotifyWebhook, EndpointURL: "u", Events: "completed,nope"}
	assert.ErrorIs(t, badEvents.Validate(), ErrUnknownNotificationEvent)
}
