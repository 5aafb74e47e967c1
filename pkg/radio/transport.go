package radio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// MaxFrameLen is the radio's hard per-transmission payload limit.
const MaxFrameLen = 255

// State is the transport's position in the half-duplex state machine.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateTransmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateTransmitting:
		return "transmitting"
	}
	return "unknown"
}

// Transport owns the single physical radio and its state machine. It is only
// touched from the tick thread: the TX queue for sending, the RX pipeline
// for receiving. All operations return immediately.
type Transport struct {
	driver  Driver
	state   State
	started bool
	log     *logrus.Logger
}

// NewTransport wraps a driver. Call Start before use.
func NewTransport(driver Driver, log *logrus.Logger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transport{
		driver: driver,
		log:    log,
	}
}

// Start initializes the hardware and enters the Receiving state. A failure
// here is fatal for mesh operation.
func (t *Transport) Start(cfg Config) error {
	if err := t.driver.Init(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	if err := t.driver.StartReceive(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	t.state = StateReceiving
	t.started = true
	t.log.WithFields(logrus.Fields{
		"freq_mhz": cfg.Frequency,
		"bw_khz":   cfg.Bandwidth,
		"sf":       cfg.SpreadingFactor,
	}).Info("Radio started")
	return nil
}

// State returns the current state machine state.
func (t *Transport) State() State {
	return t.state
}

// Send begins transmitting a frame. It initiates synchronously and completes
// asynchronously; poll CheckTxComplete each tick. Transmit is legal from both
// Idle and Receiving; it fails with ErrBusy while one is already in flight.
func (t *Transport) Send(frame []byte) error {
	if !t.started {
		return ErrNotReady
	}
	if t.state == StateTransmitting {
		return ErrBusy
	}
	if len(frame) == 0 || len(frame) > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(frame))
	}

	if err := t.driver.StartTransmit(frame); err != nil {
		return fmt.Errorf("transmit failed: %w", err)
	}
	t.state = StateTransmitting
	return nil
}

// CheckTxComplete polls for transmit completion. On completion it re-arms the
// receiver, since the hardware does not resume listening by itself. Returns
// true when the transport is free to send again.
func (t *Transport) CheckTxComplete() bool {
	if t.state != StateTransmitting {
		return true
	}
	if !t.driver.TransmitDone() {
		return false
	}
	if err := t.driver.StartReceive(); err != nil {
		// Stay in Transmitting so the next tick retries the re-arm; parking
		// in Idle would deafen the radio permanently.
		t.log.WithError(err).Warn("Failed to re-arm receiver after transmit")
		return false
	}
	t.state = StateReceiving
	return true
}

// Available reports whether an unread frame is buffered by the hardware.
func (t *Transport) Available() bool {
	return t.state == StateReceiving && t.driver.Available()
}

// Receive drains one buffered frame without blocking. The driver re-arms
// reception on success. Fails with ErrNoData when nothing is buffered.
func (t *Transport) Receive(maxLen int) ([]byte, RxMetadata, error) {
	if t.state == StateIdle {
		return nil, RxMetadata{}, ErrNotReady
	}
	if !t.driver.Available() {
		return nil, RxMetadata{}, ErrNoData
	}
	return t.driver.ReadPacket(maxLen)
}
