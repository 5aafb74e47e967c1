package mesh

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ezmesh/meshcore/internal/store"
	"github.com/ezmesh/meshcore/pkg/channel"
	"github.com/ezmesh/meshcore/pkg/crypto"
	"github.com/ezmesh/meshcore/pkg/identity"
)

const (
	keyIdentitySeed = "identity/seed"
	keyIdentityName = "identity/name"
	keyChannels     = "channels"
)

// loadOrCreateIdentity restores the node identity from the store, generating
// and persisting a fresh keypair on first boot. A non-empty configured name
// wins over the persisted one and is written back.
func loadOrCreateIdentity(st store.Store, configuredName string) (*identity.Identity, error) {
	seed, err := st.Retrieve(keyIdentitySeed)
	switch {
	case errors.Is(err, store.ErrNotFound):
		id, err := identity.Generate()
		if err != nil {
			return nil, err
		}
		if configuredName != "" {
			id.SetName(configuredName)
		}
		if err := st.Store(keyIdentitySeed, id.Seed()); err != nil {
			return nil, fmt.Errorf("failed to persist identity: %w", err)
		}
		if err := st.Store(keyIdentityName, []byte(id.Name())); err != nil {
			return nil, fmt.Errorf("failed to persist node name: %w", err)
		}
		return id, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	name := configuredName
	if name == "" {
		if stored, err := st.Retrieve(keyIdentityName); err == nil {
			name = string(stored)
		}
	}
	id, err := identity.FromSeed(seed, name)
	if err != nil {
		return nil, err
	}
	if configuredName != "" {
		if err := st.Store(keyIdentityName, []byte(id.Name())); err != nil {
			return nil, fmt.Errorf("failed to persist node name: %w", err)
		}
	}
	return id, nil
}

type savedChannel struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Key       []byte `json:"key"`
}

// saveChannels persists the joined non-public channels. The key is always
// saved, even when it is name-derived.
func (e *Engine) saveChannels() {
	var out []savedChannel
	for _, ch := range e.channels {
		if !ch.Joined || ch.Name == channel.PublicName {
			continue
		}
		out = append(out, savedChannel{
			Name:      ch.Name,
			Protected: ch.Protected,
			Key:       append([]byte(nil), ch.Key[:]...),
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		e.log.WithError(err).Warn("Failed to encode channel list")
		return
	}
	if err := e.store.Store(keyChannels, data); err != nil {
		e.log.WithError(err).Warn("Failed to persist channel list")
	}
}

// loadChannels restores previously joined channels.
func (e *Engine) loadChannels() {
	data, err := e.store.Retrieve(keyChannels)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.WithError(err).Warn("Failed to load channel list")
		return
	}

	var saved []savedChannel
	if err := json.Unmarshal(data, &saved); err != nil {
		e.log.WithError(err).Warn("Failed to decode channel list")
		return
	}

	for _, s := range saved {
		if len(s.Key) != crypto.ChannelKeySize || s.Name == "" {
			continue
		}
		ch := &channel.Channel{
			Name:      channel.Normalize(s.Name),
			Joined:    true,
			Protected: s.Protected,
		}
		copy(ch.Key[:], s.Key)
		ch.Hash = crypto.ChannelHash(ch.Key)
		e.channels = append(e.channels, ch)
		e.log.WithFields(logrus.Fields{
			"channel": ch.Name,
			"hash":    fmt.Sprintf("%02X", ch.Hash),
		}).Debug("Restored channel")
	}
}
