// Package radio owns the half-duplex radio: the hardware driver abstraction,
// the Idle/Receiving/Transmitting state machine, and the throttled transmit
// queue in front of it.
package radio

import "time"

// Config carries the LoRa modem parameters. The core treats these as opaque
// and hands them to the driver at init.
type Config struct {
	Frequency       float64 // MHz
	Bandwidth       float64 // kHz
	SpreadingFactor uint8
	CodingRate      uint8
	SyncWord        byte
	TxPower         int8 // dBm
	PreambleLength  uint16
}

// DefaultConfig returns the narrowband European defaults.
func DefaultConfig() Config {
	return Config{
		Frequency:       869.618,
		Bandwidth:       62.5,
		SpreadingFactor: 8,
		CodingRate:      8,
		SyncWord:        0x12,
		TxPower:         22,
		PreambleLength:  8,
	}
}

// RxMetadata describes a received frame's signal quality.
type RxMetadata struct {
	RSSI       float64 // dBm
	SNR        float64 // dB
	ReceivedAt time.Time
}

// Driver abstracts the radio hardware. Implementations must be non-blocking:
// transmit and receive complete asynchronously and are observed through the
// flag methods, which stand in for the interrupt-set flags on real hardware.
// No protocol logic belongs behind this interface.
type Driver interface {
	// Init brings the hardware up with the given modem parameters.
	Init(cfg Config) error

	// StartTransmit begins sending a frame. Completion is signaled through
	// TransmitDone, not by this call returning.
	StartTransmit(frame []byte) error

	// TransmitDone reports whether the in-flight transmission finished.
	TransmitDone() bool

	// StartReceive (re)arms the receiver and clears completion flags. The
	// hardware does not resume listening on its own after a transmit.
	StartReceive() error

	// Available reports whether an unread frame is buffered.
	Available() bool

	// ReadPacket pops the buffered frame, up to maxLen bytes. The driver
	// immediately re-arms reception.
	ReadPacket(maxLen int) ([]byte, RxMetadata, error)
}
