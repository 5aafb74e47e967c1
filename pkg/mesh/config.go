package mesh

import (
	"time"

	"github.com/ezmesh/meshcore/pkg/radio"
)

// ChannelConfig names a channel to join at boot.
type ChannelConfig struct {
	Name     string
	Password string
}

// Config is the injected engine configuration. Node name, region parameters
// and the channel list are owned by the host's settings layer; the engine
// only consumes them.
type Config struct {
	// NodeName overrides the persisted name when non-empty.
	NodeName string

	Radio radio.Config

	// AnnounceInterval paces the periodic ADVERT. Zero disables it.
	AnnounceInterval time.Duration

	// TxThrottle is the minimum spacing between transmissions.
	TxThrottle time.Duration

	// QueueCapacity bounds the TX queue.
	QueueCapacity int

	// Channels are joined at boot in addition to the default public channel.
	Channels []ChannelConfig
}

// DefaultConfig mirrors the firmware defaults.
func DefaultConfig() Config {
	return Config{
		Radio:            radio.DefaultConfig(),
		AnnounceInterval: 60 * time.Second,
		TxThrottle:       radio.DefaultThrottle,
		QueueCapacity:    radio.DefaultQueueCapacity,
	}
}
