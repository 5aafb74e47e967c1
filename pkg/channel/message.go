package channel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ezmesh/meshcore/pkg/crypto"
)

var (
	// ErrMalformedMessage means a decrypted group payload is missing one of
	// its delimiters.
	ErrMalformedMessage = errors.New("malformed group message")

	// ErrAuthenticationFailed means the MAC did not verify; the message must
	// be dropped without delivery.
	ErrAuthenticationFailed = errors.New("group message authentication failed")
)

const (
	separator  = ": "
	headerSize = 5 // timestamp(4) + flags(1)

	// minSealedSize is the smallest valid GRP_TXT payload:
	// channel hash, MAC, one AES block.
	minSealedSize = 1 + crypto.MACSize + crypto.BlockSize
)

// GroupMessage is the plaintext carried inside an encrypted channel message.
type GroupMessage struct {
	Timestamp uint32 // sender clock, unix seconds
	Sender    string
	Body      string
}

// EncodeGroupMessage builds the plaintext wire form:
// [timestamp:4 LE][flags:1=0][sender][": "][body][0x00].
func EncodeGroupMessage(timestamp uint32, sender, body string) []byte {
	buf := make([]byte, 0, headerSize+len(sender)+len(separator)+len(body)+1)
	buf = binary.LittleEndian.AppendUint32(buf, timestamp)
	buf = append(buf, 0) // flags
	buf = append(buf, sender...)
	buf = append(buf, separator...)
	buf = append(buf, body...)
	buf = append(buf, 0)
	return buf
}

// DecodeGroupMessage parses the plaintext form, splitting on the first ": "
// after the header and on the trailing NUL. Either delimiter missing fails
// with ErrMalformedMessage.
func DecodeGroupMessage(plaintext []byte) (GroupMessage, error) {
	var msg GroupMessage
	if len(plaintext) < headerSize+1 {
		return msg, fmt.Errorf("%w: %d bytes", ErrMalformedMessage, len(plaintext))
	}

	msg.Timestamp = binary.LittleEndian.Uint32(plaintext[:4])
	content := plaintext[headerSize:]

	nul := bytes.IndexByte(content, 0)
	if nul < 0 {
		return msg, fmt.Errorf("%w: missing terminator", ErrMalformedMessage)
	}
	content = content[:nul]

	sep := bytes.Index(content, []byte(separator))
	if sep < 0 {
		return msg, fmt.Errorf("%w: missing sender separator", ErrMalformedMessage)
	}

	msg.Sender = string(content[:sep])
	msg.Body = string(content[sep+len(separator):])
	return msg, nil
}

// Seal wraps a plaintext group message into a GRP_TXT packet payload:
// [channel hash:1][mac:2][ciphertext, 16-byte aligned]. The MAC covers the
// plaintext, not the ciphertext.
func Seal(ch *Channel, plaintext []byte) ([]byte, error) {
	ciphertext, err := crypto.Encrypt(ch.Key, plaintext)
	if err != nil {
		return nil, err
	}
	tag := crypto.MAC(ch.Key, plaintext)

	payload := make([]byte, 0, 1+crypto.MACSize+len(ciphertext))
	payload = append(payload, ch.Hash)
	payload = append(payload, tag[:]...)
	payload = append(payload, ciphertext...)
	return payload, nil
}

// Open reverses Seal: decrypts the ciphertext, strips the zero padding back
// to the message's own NUL terminator, and verifies the MAC over the
// recovered plaintext in constant time. The returned plaintext includes the
// trailing NUL, ready for DecodeGroupMessage.
func Open(ch *Channel, payload []byte) ([]byte, error) {
	if len(payload) < minSealedSize {
		return nil, fmt.Errorf("%w: sealed payload too short (%d bytes)", ErrMalformedMessage, len(payload))
	}

	var tag [crypto.MACSize]byte
	copy(tag[:], payload[1:1+crypto.MACSize])
	ciphertext := payload[1+crypto.MACSize:]

	padded, err := crypto.Decrypt(ch.Key, ciphertext)
	if err != nil {
		return nil, err
	}

	// Encoded plaintext always ends with exactly one NUL before the zero
	// padding, so trimming trailing zeros and restoring one NUL recovers the
	// exact bytes the MAC was computed over.
	trimmed := bytes.TrimRight(padded, "\x00")
	plaintext := append(trimmed, 0)

	if !crypto.VerifyMAC(ch.Key, plaintext, tag) {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
