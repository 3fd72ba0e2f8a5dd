package cryptochan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	k1 := DeriveKey("team-meeting")
	k2 := DeriveKey("team-meeting")
	require.Equal(t, k1, k2, "DeriveKey must be deterministic for the same room name")

	k3 := DeriveKey("other-room")
	require.NotEqual(t, k1, k3, "expected different keys for different room names")
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := DeriveKey("demo")
	plaintext := []byte(`{"structure":[{"type":"text","content":"hello"}]}`)

	sealed, err := Seal(key, plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, sealed.IV)
	require.NotEmpty(t, sealed.Encrypted)
	require.NotEmpty(t, sealed.AuthTag)

	opened, err := Open(key, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenFailsOnTamperedTag(t *testing.T) {
	key := DeriveKey("demo")
	sealed, err := Seal(key, []byte("hello"))
	require.NoError(t, err)

	// Flip a hex nibble in the tag to simulate a corrupted authTag.
	tampered := sealed
	if tampered.AuthTag[0] == 'a' {
		tampered.AuthTag = "b" + tampered.AuthTag[1:]
	} else {
		tampered.AuthTag = "a" + tampered.AuthTag[1:]
	}
	_, err = Open(key, tampered)
	require.Error(t, err)
}

func TestOpenFailsOnWrongKey(t *testing.T) {
	keyA := DeriveKey("room-a")
	keyB := DeriveKey("room-b")
	sealed, err := Seal(keyA, []byte("hello"))
	require.NoError(t, err)

	_, err = Open(keyB, sealed)
	require.Error(t, err)
}
