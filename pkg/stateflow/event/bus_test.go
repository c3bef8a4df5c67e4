package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBus_PublishSubscribe tests basic fan-out to multiple subscribers.
func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus[int](DefaultConfig)
	defer bus.Close()

	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()
	require.NotNil(t, sub1)
	require.NotNil(t, sub2)
	assert.Equal(t, 2, bus.Len())

	bus.Publish(7)
	bus.Publish(8)

	assert.Equal(t, 7, <-sub1.C())
	assert.Equal(t, 8, <-sub1.C())
	assert.Equal(t, 7, <-sub2.C())
	assert.Equal(t, 8, <-sub2.C())
}

// TestBus_Unsubscribe tests that unsubscribing closes the channel and stops
// delivery, and is safe to call twice.
func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus[int](DefaultConfig)
	defer bus.Close()

	sub := bus.Subscribe()
	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 0, bus.Len())

	_, open := <-sub.C()
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(1)
}

// TestBus_DropOnFull tests that a full subscriber buffer drops events and
// reports them through OnDrop instead of blocking Publish.
func TestBus_DropOnFull(t *testing.T) {
	var dropped []int64
	bus := NewBus[int](Config{
		BufferSize: 2,
		OnDrop:     func(id int64) { dropped = append(dropped, id) },
	})
	defer bus.Close()

	sub := bus.Subscribe()

	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3) // buffer full, dropped

	require.Len(t, dropped, 1)

	assert.Equal(t, 1, <-sub.C())
	assert.Equal(t, 2, <-sub.C())
}

// TestBus_Close tests that closing the bus closes all subscriber channels and
// makes further subscribes and publishes no-ops.
func TestBus_Close(t *testing.T) {
	bus := NewBus[string](DefaultConfig)

	sub := bus.Subscribe()
	bus.Publish("before")
	bus.Close()
	bus.Close()

	assert.Equal(t, "before", <-sub.C())
	_, open := <-sub.C()
	assert.False(t, open)

	assert.Nil(t, bus.Subscribe())
	bus.Publish("after") // no-op, must not panic
	assert.Equal(t, 0, bus.Len())
}

// TestBus_ConcurrentPublish tests that concurrent publishers deliver every
// event when buffers are large enough.
func TestBus_ConcurrentPublish(t *testing.T) {
	const publishers = 8
	const perPublisher = 50

	bus := NewBus[int](Config{BufferSize: publishers * perPublisher})
	defer bus.Close()

	sub := bus.Subscribe()

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				bus.Publish(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, publishers*perPublisher, len(sub.C()))
}
