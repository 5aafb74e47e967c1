package mesh

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/ezmesh/meshcore/pkg/identity"
	"github.com/ezmesh/meshcore/pkg/protocol"
)

// ADVERT payload: [timestamp:4 LE][public key:32][name:variable].
const advertMinLen = 4 + ed25519.PublicKeySize

type advert struct {
	Timestamp uint32
	PublicKey ed25519.PublicKey
	Name      string
}

func encodeAdvert(timestamp uint32, publicKey ed25519.PublicKey, name string) []byte {
	if len(name) > identity.MaxNodeName {
		name = name[:identity.MaxNodeName]
	}
	buf := make([]byte, 0, advertMinLen+len(name))
	buf = binary.LittleEndian.AppendUint32(buf, timestamp)
	buf = append(buf, publicKey...)
	buf = append(buf, name...)
	return buf
}

func parseAdvert(payload []byte) (advert, error) {
	var a advert
	if len(payload) < advertMinLen {
		return a, fmt.Errorf("%w: advert payload %d bytes", protocol.ErrTooShort, len(payload))
	}
	a.Timestamp = binary.LittleEndian.Uint32(payload[:4])
	a.PublicKey = append(ed25519.PublicKey(nil), payload[4:advertMinLen]...)

	name := payload[advertMinLen:]
	if len(name) > identity.MaxNodeName {
		name = name[:identity.MaxNodeName]
	}
	a.Name = string(name)
	return a, nil
}
