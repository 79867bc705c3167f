package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vantavault/vanta/internal/models"
)

// Frame layout: magic(4) || nonce(24) || ciphertext+tag.
var codecMagic = []byte("VE01")

const (
	// KeySize is the DEK size (XChaCha20-Poly1305 key).
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the XChaCha20 extended nonce size.
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the Poly1305 tag size.
	TagSize = chacha20poly1305.Overhead

	// Overhead is the total framing added by Encrypt.
	Overhead = len("VE01") + NonceSize + TagSize
)

// Encrypt seals plaintext under the DEK with a fresh random nonce.
// Associated data is empty; identity is carried by the filename and the
// manifest, not the frame.
func Encrypt(dek, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(codecMagic)+NonceSize+len(plaintext)+TagSize)
	out = append(out, codecMagic...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	return out, nil
}

// Decrypt opens a frame produced by Encrypt. Tamper, truncation, or a key
// mismatch all surface as ErrCorruptBlob.
func Decrypt(dek, frame []byte) ([]byte, error) {
	if len(dek) != KeySize {
		return nil, fmt.Errorf("invalid key size: %d", len(dek))
	}

	if len(frame) < Overhead {
		return nil, models.ErrCorruptBlob
	}

	if !bytes.Equal(frame[:len(codecMagic)], codecMagic) {
		return nil, models.ErrCorruptBlob
	}

	nonce := frame[len(codecMagic) : len(codecMagic)+NonceSize]
	sealed := frame[len(codecMagic)+NonceSize:]

	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, models.ErrCorruptBlob
	}

	return plaintext, nil
}

// NewDEK generates a fresh 32-byte data-encryption key.
func NewDEK() ([]byte, error) {
	dek := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("generate dek: %w", err)
	}
	return dek, nil
}

// Zeroize overwrites a key buffer in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
