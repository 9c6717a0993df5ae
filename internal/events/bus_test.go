package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bybrooklyn/alchemist/internal/models"
)

func TestBusBroadcast(t *testing.T) {
	bus := NewBus(8)

	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()
	defer bus.Unsubscribe(sub1)
	defer bus.Unsubscribe(sub2)

	jobID := models.NewULID()
	bus.PublishStatus(jobID, models.JobStatusEncoding)

	for _, sub := range []*Subscriber{sub1, sub2} {
		event := <-sub.Events()
		assert.Equal(t, TypeStatus, event.Type)
		require.NotNil(t, event.JobID)
		assert.Equal(t, jobID, *event.JobID)
		assert.Equal(t, models.JobStatusEncoding, event.Status)
		assert.False(t, event.Timestamp.IsZero())
	}
}

func TestBusOverflowDropsOldest(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	jobID := models.NewULID()
	bus.PublishProgress(jobID, 10)
	bus.PublishProgress(jobID, 20)
	bus.PublishProgress(jobID, 30) // evicts 10

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, 20.0, first.Progress)
	assert.Equal(t, 30.0, second.Progress)
	assert.EqualValues(t, 1, sub.Dropped())
	assert.EqualValues(t, 0, sub.Dropped(), "dropped counter resets on read")
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	// With no reader, far more publishes than capacity must return.
	for i := 0; i < 100; i++ {
		bus.PublishLog("info", "spam", nil)
	}

	event := <-sub.Events()
	assert.Equal(t, TypeLog, event.Type)
	assert.True(t, sub.Dropped() > 0)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Double unsubscribe is harmless.
	bus.Unsubscribe(sub)
}
