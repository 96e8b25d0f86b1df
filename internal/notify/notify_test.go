package notify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowAssignsUniqueOrderedIDs(t *testing.T) {
	b := NewBroker()
	defer b.ClearAll()

	first := b.Show(Message{Kind: KindInfo, Title: "one", Duration: Forever})
	second := b.Show(Message{Kind: KindInfo, Title: "two", Duration: Forever})

	assert.NotEqual(t, first, second)
	assert.Less(t, first, second, "ids sort in creation order")

	active := b.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "one", active[0].Title)
	assert.Equal(t, "two", active[1].Title)
}

func TestShowDefaults(t *testing.T) {
	b := NewBroker(WithDefaultDuration(time.Hour))
	defer b.ClearAll()

	b.Show(Message{Title: "untyped"})
	msg := b.Active()[0]
	assert.Equal(t, KindInfo, msg.Kind)
	assert.Equal(t, time.Hour, msg.Duration)
	assert.False(t, msg.Created.IsZero())
}

func TestMessagesExpire(t *testing.T) {
	b := NewBroker()
	b.Show(Message{Kind: KindSuccess, Title: "saved", Duration: 20 * time.Millisecond})
	b.Show(Message{Kind: KindError, Title: "sticky", Duration: Forever})

	require.Len(t, b.Active(), 2)
	assert.Eventually(t, func() bool {
		return len(b.Active()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "sticky", b.Active()[0].Title)
}

func TestDismissIsIdempotentAndStopsTimer(t *testing.T) {
	b := NewBroker()
	var changes atomic.Int32
	b.Subscribe(func([]Message) { changes.Add(1) })

	id := b.Show(Message{Title: "x", Duration: 30 * time.Millisecond})
	b.Dismiss(id)
	b.Dismiss(id)
	b.Dismiss("unknown")

	assert.Empty(t, b.Active())

	// Wait past the original expiry; a stopped timer must not retract again.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(2), changes.Load(), "one show and one dismiss")
}

func TestClearAll(t *testing.T) {
	b := NewBroker()
	b.Error("a", "")
	b.Warning("b", "")
	b.Info("c", "")
	b.Success("d", "")
	require.Len(t, b.Active(), 4)

	b.ClearAll()
	assert.Empty(t, b.Active())
	b.ClearAll()
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	b := NewBroker()
	defer b.ClearAll()

	var mu sync.Mutex
	var last []Message
	unsubscribe := b.Subscribe(func(msgs []Message) {
		mu.Lock()
		last = msgs
		mu.Unlock()
	})

	b.Show(Message{Title: "hello", Duration: Forever})
	mu.Lock()
	require.Len(t, last, 1)
	assert.Equal(t, "hello", last[0].Title)
	mu.Unlock()

	unsubscribe()
	b.Show(Message{Title: "ignored", Duration: Forever})
	mu.Lock()
	assert.Len(t, last, 1)
	mu.Unlock()
}

func TestSubscriberEndsOnCurrentList(t *testing.T) {
	b := NewBroker(WithDefaultDuration(Forever))

	var mu sync.Mutex
	var last []Message
	deliveries := 0
	var once sync.Once
	b.Subscribe(func(msgs []Message) {
		if len(msgs) == 1 {
			// The message is retracted while its arrival is still being delivered
			once.Do(func() {
				go b.Dismiss(msgs[0].ID)
				for len(b.Active()) != 0 {
					time.Sleep(time.Millisecond)
				}
			})
		}
		mu.Lock()
		last = msgs
		deliveries++
		mu.Unlock()
	})

	b.Show(Message{Title: "short-lived"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, last)
	assert.Empty(t, b.Active())
}

func TestConcurrentShow(t *testing.T) {
	b := NewBroker(WithDefaultDuration(Forever))
	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- b.Info("n", "")
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, b.Active(), 50)
}
