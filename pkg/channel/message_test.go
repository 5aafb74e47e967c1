package channel

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ezmesh/meshcore/pkg/crypto"
)

func TestNewChannelKeys(t *testing.T) {
	pub := New("#Public", "")
	if pub.Key != crypto.PublicChannelKey() {
		t.Error("#Public did not get the well-known key")
	}
	if pub.Hash != 0x11 {
		t.Errorf("#Public hash = %#02x, want 0x11", pub.Hash)
	}

	// Name normalization: "test" and "#test" are the same channel.
	named := New("test", "")
	if named.Name != "#test" {
		t.Errorf("Normalized name = %q, want %q", named.Name, "#test")
	}
	if named.Hash != 0xD9 {
		t.Errorf("#test hash = %#02x, want 0xD9", named.Hash)
	}
	if named.Protected {
		t.Error("Name-derived channel marked protected")
	}

	secret := New("#test", "hunter2")
	if secret.Key == named.Key {
		t.Error("Password-derived key matches name-derived key")
	}
	if !secret.Protected {
		t.Error("Password-derived channel not marked protected")
	}
}

func TestGroupMessageRoundTrip(t *testing.T) {
	encoded := EncodeGroupMessage(1700000000, "alice", "hello mesh")

	msg, err := DecodeGroupMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeGroupMessage() error = %v", err)
	}
	if msg.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want 1700000000", msg.Timestamp)
	}
	if msg.Sender != "alice" {
		t.Errorf("Sender = %q, want %q", msg.Sender, "alice")
	}
	if msg.Body != "hello mesh" {
		t.Errorf("Body = %q, want %q", msg.Body, "hello mesh")
	}
}

func TestDecodeGroupMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", make([]byte, 5)},
		{"no terminator", []byte{0, 0, 0, 0, 0, 'a', ':', ' ', 'b'}},
		{"no separator", []byte{0, 0, 0, 0, 0, 'h', 'i', 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeGroupMessage(tt.data); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("DecodeGroupMessage() error = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	ch := New("#test", "")
	plaintext := EncodeGroupMessage(42, "bob", "hi")

	payload, err := Seal(ch, plaintext)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if payload[0] != ch.Hash {
		t.Errorf("Payload hash byte = %#02x, want %#02x", payload[0], ch.Hash)
	}
	if ctLen := len(payload) - 1 - crypto.MACSize; ctLen%crypto.BlockSize != 0 {
		t.Errorf("Ciphertext length %d not block aligned", ctLen)
	}

	opened, err := Open(ch, payload)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Open() = %x, want %x", opened, plaintext)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	ch := New("#test", "")
	payload, err := Seal(ch, EncodeGroupMessage(42, "bob", "hi"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// Flipping any ciphertext byte must fail authentication.
	for i := 1 + crypto.MACSize; i < len(payload); i++ {
		tampered := append([]byte(nil), payload...)
		tampered[i] ^= 0x80

		if _, err := Open(ch, tampered); !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("Open() with byte %d flipped: error = %v, want ErrAuthenticationFailed", i, err)
		}
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sender := New("#test", "")
	payload, err := Seal(sender, EncodeGroupMessage(42, "bob", "hi"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	other := New("#other", "")
	if _, err := Open(other, payload); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Open() with wrong key: error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestOpenRejectsShortPayload(t *testing.T) {
	ch := New("#test", "")
	if _, err := Open(ch, make([]byte, minSealedSize-1)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("Open() error = %v, want ErrMalformedMessage", err)
	}
}
