// Package cryptochan derives a room's symmetric key and provides the
// authenticated-encrypted seal/open primitive used to protect every
// envelope's content field on the wire.
package cryptochan

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"localchat/internal/localerr"
)

const (
	// kdfSalt is the fixed salt literal mandated bit-exact by the wire
	// protocol so every node derives the same key for the same room name.
	kdfSalt = "localchat2024salt"

	// aad is the fixed associated-data string bound into every seal/open
	// call. It does not authenticate anything room-specific beyond the
	// key itself; it exists so ciphertext from a different protocol
	// version cannot be replayed here.
	aad = "localchat"

	kdfIterations = 100000
	keySize       = 32
	nonceSize     = 12
)

// Key is a room's derived 32-byte AES-256-GCM key.
type Key [keySize]byte

// DeriveKey derives the room's symmetric key from its (already
// normalized) name via PBKDF2-HMAC-SHA-256.
func DeriveKey(roomName string) Key {
	raw := pbkdf2.Key([]byte(roomName), []byte(kdfSalt), kdfIterations, keySize, sha256.New)
	var k Key
	copy(k[:], raw)
	return k
}

// Sealed is the wire shape of a sealed payload: nonce, ciphertext, and
// authentication tag, each hex-encoded.
type Sealed struct {
	IV        string `json:"iv"`
	Encrypted string `json:"encrypted"`
	AuthTag   string `json:"authTag"`
}

// Seal authenticated-encrypts plaintext under the room key with a fresh
// random 12-byte nonce per call.
func Seal(key Key, plaintext []byte) (Sealed, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return Sealed{}, fmt.Errorf("cryptochan: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return Sealed{}, fmt.Errorf("cryptochan: new gcm: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("cryptochan: nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, []byte(aad))
	tagStart := len(sealed) - gcm.Overhead()
	return Sealed{
		IV:        hex.EncodeToString(nonce),
		Encrypted: hex.EncodeToString(sealed[:tagStart]),
		AuthTag:   hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Open reverses Seal. It fails with localerr.ErrAeadFailure on a tag
// mismatch or malformed hex; callers must drop the datagram silently on
// error, never surface it to a peer.
func Open(key Key, s Sealed) ([]byte, error) {
	nonce, err := hex.DecodeString(s.IV)
	if err != nil || len(nonce) != nonceSize {
		return nil, localerr.ErrAeadFailure
	}
	ct, err := hex.DecodeString(s.Encrypted)
	if err != nil {
		return nil, localerr.ErrAeadFailure
	}
	tag, err := hex.DecodeString(s.AuthTag)
	if err != nil {
		return nil, localerr.ErrAeadFailure
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, localerr.ErrAeadFailure
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, localerr.ErrAeadFailure
	}
	sealed := append(ct, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(aad))
	if err != nil {
		return nil, localerr.ErrAeadFailure
	}
	return plaintext, nil
}
