package blobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldDeliverEventsToSubscribers(t *testing.T) {
	stream := NewEventStream()
	ch := stream.Subscribe()
	defer stream.Unsubscribe(ch)

	stream.Publish(Event{Type: EventBlobStored, Digest: "abc", Length: 3})

	select {
	case event := <-ch:
		assert.Equal(t, EventBlobStored, event.Type)
		assert.Equal(t, Digest("abc"), event.Digest)
		assert.False(t, event.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishShouldNotBlockOnSlowSubscriber(t *testing.T) {
	stream := NewEventStream()
	ch := stream.Subscribe()
	defer stream.Unsubscribe(ch)

	// nobody drains ch; publishing must still complete
	for i := 0; i < 1000; i++ {
		stream.Publish(Event{Type: EventBlobStored, Digest: "abc"})
	}
}

func TestUnsubscribeShouldCloseChannel(t *testing.T) {
	stream := NewEventStream()
	ch := stream.Subscribe()
	stream.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open)

	// double unsubscribe is a no-op
	stream.Unsubscribe(ch)
}
