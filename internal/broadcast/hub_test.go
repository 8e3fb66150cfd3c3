package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	first, cancelFirst := hub.Subscribe()
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe()
	defer cancelSecond()

	hub.Publish(context.Background(), model.NewQueueEvent(model.QueueReasonCreated, 501))

	for _, ch := range []<-chan model.QueueEvent{first, second} {
		select {
		case evt := <-ch:
			assert.Equal(t, model.QueueEventType, evt.Type)
			assert.Equal(t, int64(501), evt.DealID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestHubCancelledSubscriberStopsReceiving(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	cancel()
	cancel()

	hub.Publish(context.Background(), model.NewQueueEvent(model.QueueReasonRemoved, 1))

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers())
}

func TestHubPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			hub.Publish(context.Background(), model.NewQueueEvent(model.QueueReasonCreated, int64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}
}

func TestEventCodecRoundTrip(t *testing.T) {
	evt := model.NewQueueEvent(model.QueueReasonCompleted, 42)
	evt.Origin = "instance-a"

	data, err := encodeEvent(evt)
	require.NoError(t, err)
	got, err := decodeEvent(data)
	require.NoError(t, err)

	assert.Equal(t, evt.Reason, got.Reason)
	assert.Equal(t, evt.DealID, got.DealID)
	assert.Equal(t, evt.Origin, got.Origin)
	assert.True(t, evt.At.Equal(got.At))

	_, err = decodeEvent([]byte{0xc1})
	assert.Error(t, err)
}
