package radio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStartedQueue(t *testing.T, capacity int) (*TxQueue, *SimDriver) {
	t.Helper()
	driver := NewMedium().Attach()
	tr := NewTransport(driver, testLogger())
	require.NoError(t, tr.Start(DefaultConfig()))
	return NewTxQueue(tr, capacity, testLogger()), driver
}

func TestTxQueueCapacity(t *testing.T) {
	q, _ := newStartedQueue(t, 0)
	assert.Equal(t, DefaultThrottle, q.Throttle())

	for i := 0; i < DefaultQueueCapacity; i++ {
		require.NoError(t, q.Enqueue([]byte{byte(i)}))
	}
	assert.Equal(t, DefaultQueueCapacity, q.Len())

	// The 17th frame is refused, not queued.
	assert.ErrorIs(t, q.Enqueue([]byte{0xFF}), ErrQueueFull)
	assert.Equal(t, DefaultQueueCapacity, q.Len())
}

func TestTxQueueRejectsInvalidEntries(t *testing.T) {
	q, _ := newStartedQueue(t, 4)
	assert.ErrorIs(t, q.Enqueue(nil), ErrInvalidFrame)
	assert.ErrorIs(t, q.Enqueue(make([]byte, DefaultMaxEntrySize+1)), ErrInvalidFrame)
}

func TestTxQueueThrottle(t *testing.T) {
	q, _ := newStartedQueue(t, 4)
	require.NoError(t, q.Enqueue([]byte{1}))
	require.NoError(t, q.Enqueue([]byte{2}))

	start := time.Now()
	q.Process(start)
	assert.Equal(t, uint32(1), q.Sent())
	assert.Equal(t, 1, q.Len())

	// Inside the throttle window nothing moves.
	q.Process(start.Add(50 * time.Millisecond))
	assert.Equal(t, uint32(1), q.Sent())

	q.Process(start.Add(DefaultThrottle))
	assert.Equal(t, uint32(2), q.Sent())
	assert.Equal(t, 0, q.Len())
}

func TestTxQueueDropsFailedSends(t *testing.T) {
	q, driver := newStartedQueue(t, 4)
	driver.FailTransmit = true

	require.NoError(t, q.Enqueue([]byte{1}))
	q.Process(time.Now())

	// Failed frames are dropped outright, never retried.
	assert.Equal(t, uint32(0), q.Sent())
	assert.Equal(t, 0, q.Len())
}

func TestTxQueueCopiesEntries(t *testing.T) {
	q, _ := newStartedQueue(t, 4)
	frame := []byte{1, 2, 3}
	require.NoError(t, q.Enqueue(frame))
	frame[0] = 0xFF

	q.Process(time.Now())
	assert.Equal(t, uint32(1), q.Sent())
}
