package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PubSub(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	ch, unsub := bus.Subscribe("img_123")
	defer unsub()

	bus.Publish(NewEvent("img_123", EventTypeStatus, map[string]string{"status": "RUNNING"}))

	select {
	case received := <-ch:
		assert.Equal(t, EventTypeStatus, received.Type)
		assert.JSONEq(t, `{"status":"RUNNING"}`, received.Data)
		assert.NotZero(t, received.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_OtherJobsAreNotDelivered(t *testing.T) {
	bus := NewEventBus(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	ch, unsub := bus.Subscribe("img_a")
	defer unsub()

	bus.Publish(NewEvent("img_b", EventTypeLog, "elsewhere"))

	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ch, unsub := bus.Subscribe("img_456")
	unsub()
	unsub()

	bus.Publish(NewEvent("img_456", EventTypeLog, "should not receive"))

	_, ok := <-ch
	assert.False(t, ok, "channel is closed after unsubscribe")
}

func TestEventBus_MultipleAndGlobalSubscribers(t *testing.T) {
	bus := NewEventBus(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ch1, unsub1 := bus.Subscribe("img_multi")
	defer unsub1()
	ch2, unsub2 := bus.Subscribe("img_multi")
	defer unsub2()
	global, unsub3 := bus.SubscribeGlobal()
	defer unsub3()

	bus.Publish(NewEvent("img_multi", EventTypeArtifact, "broadcast"))

	for _, ch := range []<-chan Event{ch1, ch2, global} {
		select {
		case e := <-ch:
			assert.Equal(t, "broadcast", e.Data)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}

	unsub3()
	_, ok := <-global
	require.False(t, ok)
}

func TestEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	_, unsub := bus.Subscribe("img_slow")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			bus.Publish(NewEvent("img_slow", EventTypeProgress, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
