package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vantavault/vanta/internal/models"
)

// Envelope layout (bit-exact, little-endian integers):
//
//	magic(4) || version(1) || kdf_id(1) || mem_kib(u32) || iters(u32) ||
//	parallelism(u8) || salt(16) || wrap_nonce(24) || wrapped_dek(32) ||
//	wrap_tag(16)
var envelopeMagic = []byte("VNT1")

const (
	envelopeVersion = 1
	kdfIDArgon2id   = 1

	wrappedDEKSize = KeySize + TagSize

	// EnvelopeSize is the exact serialized envelope length.
	EnvelopeSize = 4 + 1 + 1 + 4 + 4 + 1 + SaltSize + NonceSize + wrappedDEKSize
)

// Envelope is the persisted record protecting the DEK.
type Envelope struct {
	Params     KDFParams
	Salt       []byte
	WrapNonce  []byte
	WrappedDEK []byte // ciphertext || tag
}

// SealEnvelope generates a fresh DEK and an envelope wrapping it under a
// KEK derived from the password. The caller owns the returned DEK.
func SealEnvelope(password string, params KDFParams) ([]byte, *Envelope, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, nil, err
	}

	kek, err := DeriveKEK(password, salt, params)
	if err != nil {
		return nil, nil, err
	}
	defer Zeroize(kek)

	dek, err := NewDEK()
	if err != nil {
		return nil, nil, err
	}

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, nil, fmt.Errorf("create aead: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate wrap nonce: %w", err)
	}

	wrapped := aead.Seal(nil, nonce, dek, nil)

	return dek, &Envelope{
		Params:     params,
		Salt:       salt,
		WrapNonce:  nonce,
		WrappedDEK: wrapped,
	}, nil
}

// Open derives the KEK from the password and unwraps the DEK. A KDF or
// AEAD failure is reported only as ErrWrongPassword so a tampered
// envelope is indistinguishable from a mistyped password.
func (e *Envelope) Open(password string) ([]byte, error) {
	kek, err := DeriveKEK(password, e.Salt, e.Params)
	if err != nil {
		return nil, models.ErrWrongPassword
	}
	defer Zeroize(kek)

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, models.ErrWrongPassword
	}

	dek, err := aead.Open(nil, e.WrapNonce, e.WrappedDEK, nil)
	if err != nil {
		return nil, models.ErrWrongPassword
	}

	if len(dek) != KeySize {
		return nil, models.ErrWrongPassword
	}

	return dek, nil
}

// Marshal serializes the envelope to its exact on-disk form.
func (e *Envelope) Marshal() ([]byte, error) {
	if len(e.Salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes", SaltSize)
	}
	if len(e.WrapNonce) != NonceSize {
		return nil, fmt.Errorf("wrap nonce must be %d bytes", NonceSize)
	}
	if len(e.WrappedDEK) != wrappedDEKSize {
		return nil, fmt.Errorf("wrapped dek must be %d bytes", wrappedDEKSize)
	}

	buf := make([]byte, 0, EnvelopeSize)
	buf = append(buf, envelopeMagic...)
	buf = append(buf, envelopeVersion, kdfIDArgon2id)
	buf = binary.LittleEndian.AppendUint32(buf, e.Params.MemoryKiB)
	buf = binary.LittleEndian.AppendUint32(buf, e.Params.Iterations)
	buf = append(buf, e.Params.Parallelism)
	buf = append(buf, e.Salt...)
	buf = append(buf, e.WrapNonce...)
	buf = append(buf, e.WrappedDEK...)

	return buf, nil
}

// UnmarshalEnvelope parses an on-disk envelope record.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	if len(data) != EnvelopeSize {
		return nil, fmt.Errorf("envelope must be %d bytes, got %d", EnvelopeSize, len(data))
	}

	if !bytes.Equal(data[:4], envelopeMagic) {
		return nil, fmt.Errorf("bad envelope magic")
	}
	if data[4] != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", data[4])
	}
	if data[5] != kdfIDArgon2id {
		return nil, fmt.Errorf("unsupported kdf: %d", data[5])
	}

	e := &Envelope{
		Params: KDFParams{
			MemoryKiB:   binary.LittleEndian.Uint32(data[6:10]),
			Iterations:  binary.LittleEndian.Uint32(data[10:14]),
			Parallelism: data[14],
		},
	}

	off := 15
	e.Salt = append([]byte(nil), data[off:off+SaltSize]...)
	off += SaltSize
	e.WrapNonce = append([]byte(nil), data[off:off+NonceSize]...)
	off += NonceSize
	e.WrappedDEK = append([]byte(nil), data[off:off+wrappedDEKSize]...)

	if err := e.Params.Validate(); err != nil {
		return nil, fmt.Errorf("envelope kdf params: %w", err)
	}

	return e, nil
}
