package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezmesh/meshcore/internal/store"
	"github.com/ezmesh/meshcore/pkg/channel"
	"github.com/ezmesh/meshcore/pkg/radio"
)

func findChannel(channels []channel.Channel, name string) *channel.Channel {
	for i := range channels {
		if channels[i].Name == name {
			return &channels[i]
		}
	}
	return nil
}

func TestIdentityPersistsAcrossRestarts(t *testing.T) {
	st := store.NewLocal()
	medium := radio.NewMedium()

	cfg := DefaultConfig()
	cfg.NodeName = "alice"
	first, err := New(cfg, medium.Attach(), st, testLogger())
	require.NoError(t, err)

	// Second boot without a configured name: same keys, persisted name.
	second, err := New(DefaultConfig(), medium.Attach(), st, testLogger())
	require.NoError(t, err)

	assert.Equal(t, first.Identity().FullID(), second.Identity().FullID())
	assert.Equal(t, first.Identity().PathHash(), second.Identity().PathHash())
	assert.Equal(t, "alice", second.Identity().Name())
}

func TestConfiguredNameOverridesPersisted(t *testing.T) {
	st := store.NewLocal()
	medium := radio.NewMedium()

	cfg := DefaultConfig()
	cfg.NodeName = "alice"
	_, err := New(cfg, medium.Attach(), st, testLogger())
	require.NoError(t, err)

	cfg.NodeName = "alice2"
	renamed, err := New(cfg, medium.Attach(), st, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "alice2", renamed.Identity().Name())

	// The override sticks for later unnamed boots.
	third, err := New(DefaultConfig(), medium.Attach(), st, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "alice2", third.Identity().Name())
}

func TestChannelsPersistAcrossRestarts(t *testing.T) {
	st := store.NewLocal()
	medium := radio.NewMedium()

	cfg := DefaultConfig()
	cfg.Channels = []ChannelConfig{{Name: "secret", Password: "hunter2"}}
	first, err := New(cfg, medium.Attach(), st, testLogger())
	require.NoError(t, err)

	saved := findChannel(first.Channels(), "#secret")
	require.NotNil(t, saved)
	assert.True(t, saved.Protected)

	second, err := New(DefaultConfig(), medium.Attach(), st, testLogger())
	require.NoError(t, err)

	restored := findChannel(second.Channels(), "#secret")
	require.NotNil(t, restored)
	assert.True(t, restored.Joined)
	assert.True(t, restored.Protected)
	assert.Equal(t, saved.Key, restored.Key)
	assert.Equal(t, saved.Hash, restored.Hash)
}

func TestLeftChannelNotRestored(t *testing.T) {
	st := store.NewLocal()
	medium := radio.NewMedium()

	cfg := DefaultConfig()
	cfg.Channels = []ChannelConfig{{Name: "temp"}}
	first, err := New(cfg, medium.Attach(), st, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.LeaveChannel("#temp"))

	second, err := New(DefaultConfig(), medium.Attach(), st, testLogger())
	require.NoError(t, err)
	assert.Nil(t, findChannel(second.Channels(), "#temp"))
}
