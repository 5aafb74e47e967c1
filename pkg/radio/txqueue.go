package radio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ezmesh/meshcore/internal/telemetry"
)

const (
	// DefaultQueueCapacity bounds the number of pending outbound frames.
	DefaultQueueCapacity = 16

	// DefaultMaxEntrySize bounds a single queued frame.
	DefaultMaxEntrySize = 256

	// DefaultThrottle is the minimum spacing between transmissions. LoRa
	// airtime is scarce and duty-cycle limits apply, so even queued traffic
	// is paced.
	DefaultThrottle = 100 * time.Millisecond
)

// QueuedTxPacket is one outbound frame awaiting airtime. Owned exclusively
// by the queue; gone after hand-off to the transport or a forced drop.
type QueuedTxPacket struct {
	Data       []byte
	EnqueuedAt time.Time
}

// TxQueue is the bounded, throttled FIFO in front of the radio transport.
// No priority levels, no retries: a frame that fails to send is dropped so a
// bad entry can never block the head of the line.
type TxQueue struct {
	transport *Transport
	entries   []QueuedTxPacket
	capacity  int
	throttle  time.Duration
	lastTx    time.Time
	sent      uint32
	log       *logrus.Logger
}

// NewTxQueue creates a queue in front of the transport. capacity <= 0 takes
// the default.
func NewTxQueue(transport *Transport, capacity int, log *logrus.Logger) *TxQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TxQueue{
		transport: transport,
		capacity:  capacity,
		throttle:  DefaultThrottle,
		log:       log,
	}
}

// Enqueue adds a frame without blocking. Fails with ErrQueueFull when at
// capacity; the caller decides whether to drop or surface the error.
func (q *TxQueue) Enqueue(data []byte) error {
	if len(data) == 0 || len(data) > DefaultMaxEntrySize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(data))
	}
	if len(q.entries) >= q.capacity {
		telemetry.QueueDrops.Inc()
		return ErrQueueFull
	}
	q.entries = append(q.entries, QueuedTxPacket{
		Data:       append([]byte(nil), data...),
		EnqueuedAt: time.Now(),
	})
	return nil
}

// Len returns the number of pending frames.
func (q *TxQueue) Len() int {
	return len(q.entries)
}

// Sent returns how many frames have been handed to the radio.
func (q *TxQueue) Sent() uint32 {
	return q.sent
}

// SetThrottle adjusts the minimum inter-transmission spacing at runtime.
func (q *TxQueue) SetThrottle(d time.Duration) {
	q.throttle = d
}

// Throttle returns the current spacing.
func (q *TxQueue) Throttle() time.Duration {
	return q.throttle
}

// Process advances the queue by at most one frame. Called once per tick.
func (q *TxQueue) Process(now time.Time) {
	// Finish an in-flight transmit first; the transport re-arms receive.
	if q.transport.State() == StateTransmitting {
		if !q.transport.CheckTxComplete() {
			return
		}
	}

	if len(q.entries) == 0 {
		return
	}
	if !q.lastTx.IsZero() && now.Sub(q.lastTx) < q.throttle {
		return
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]

	if err := q.transport.Send(entry.Data); err != nil {
		// Dropped, not retried: retrying flood packets amplifies load.
		telemetry.QueueDrops.Inc()
		q.log.WithError(err).Warn("TX queue send failed, dropping frame")
		return
	}

	q.lastTx = now
	q.sent++
	telemetry.PacketsSent.Inc()
}
