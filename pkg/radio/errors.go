package radio

import "errors"

var (
	// ErrInitFailed means the radio hardware could not be brought up. This is
	// fatal at boot: there is no mesh without a working radio, and the host
	// must surface a persistent diagnostic rather than run silently offline.
	ErrInitFailed = errors.New("radio init failed")

	// ErrBusy means a transmit was requested while one is already in flight.
	ErrBusy = errors.New("radio busy")

	// ErrNotReady means the transport is used before a successful Start.
	ErrNotReady = errors.New("radio not initialized")

	// ErrInvalidFrame means the frame is empty or exceeds the radio limit.
	ErrInvalidFrame = errors.New("invalid frame size")

	// ErrNoData means no received frame is buffered.
	ErrNoData = errors.New("no data available")

	// ErrQueueFull means the transmit queue rejected an enqueue.
	ErrQueueFull = errors.New("tx queue full")
)
