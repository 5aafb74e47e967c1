package radio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Medium is an in-memory broadcast channel standing in for the shared LoRa
// spectrum: every frame a driver transmits is delivered to all other drivers
// attached to the same medium. Loss-free and airtime-free, for tests and the
// host demo.
type Medium struct {
	mu      sync.Mutex
	drivers []*SimDriver
}

// NewMedium creates an empty shared medium.
func NewMedium() *Medium {
	return &Medium{}
}

// Attach creates a driver on this medium.
func (m *Medium) Attach() *SimDriver {
	d := &SimDriver{
		medium: m,
		rssi:   -80,
		snr:    9.5,
	}
	m.mu.Lock()
	m.drivers = append(m.drivers, d)
	m.mu.Unlock()
	return d
}

func (m *Medium) broadcast(from *SimDriver, frame []byte) {
	m.mu.Lock()
	drivers := append([]*SimDriver(nil), m.drivers...)
	m.mu.Unlock()

	for _, d := range drivers {
		if d != from {
			d.deliver(frame)
		}
	}
}

type simFrame struct {
	data []byte
	meta RxMetadata
}

// SimDriver implements Driver over a Medium. The completion flags are
// atomics, mirroring the ISR-set volatile flags on real hardware; the frame
// buffer is mutex-guarded because delivery crosses node tick loops.
type SimDriver struct {
	medium *Medium

	mu        sync.Mutex
	inbox     []simFrame
	receiving bool

	txDone atomic.Bool

	rssi float64
	snr  float64

	// Test hooks.
	FailInit     bool
	FailTransmit bool
	FailReceive  bool
}

// SetSignal overrides the metadata reported for frames this driver receives.
func (d *SimDriver) SetSignal(rssi, snr float64) {
	d.mu.Lock()
	d.rssi, d.snr = rssi, snr
	d.mu.Unlock()
}

func (d *SimDriver) Init(cfg Config) error {
	if d.FailInit {
		return errors.New("simulated init failure")
	}
	return nil
}

func (d *SimDriver) StartTransmit(frame []byte) error {
	if d.FailTransmit {
		return errors.New("simulated transmit failure")
	}
	d.medium.broadcast(d, append([]byte(nil), frame...))
	// Airtime is not modeled; the transmission completes instantly.
	d.txDone.Store(true)
	return nil
}

func (d *SimDriver) TransmitDone() bool {
	return d.txDone.Load()
}

func (d *SimDriver) StartReceive() error {
	if d.FailReceive {
		return errors.New("simulated receive failure")
	}
	d.txDone.Store(false)
	d.mu.Lock()
	d.receiving = true
	d.mu.Unlock()
	return nil
}

func (d *SimDriver) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inbox) > 0
}

func (d *SimDriver) ReadPacket(maxLen int) ([]byte, RxMetadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.inbox) == 0 {
		return nil, RxMetadata{}, ErrNoData
	}

	frame := d.inbox[0]
	d.inbox = d.inbox[1:]

	data := frame.data
	if maxLen > 0 && len(data) > maxLen {
		data = data[:maxLen]
	}
	return data, frame.meta, nil
}

func (d *SimDriver) deliver(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.receiving {
		return
	}
	d.inbox = append(d.inbox, simFrame{
		data: frame,
		meta: RxMetadata{
			RSSI:       d.rssi,
			SNR:        d.snr,
			ReceivedAt: time.Now(),
		},
	})
}
