package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the KDF salt size in bytes.
const SaltSize = 16

// KDFParams holds the Argon2id cost parameters persisted in the envelope
// so that future parameter upgrades can re-seal old vaults.
type KDFParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the parameters used for new envelopes:
// 64 MiB memory, 3 passes, parallelism 4.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// Validate checks the parameters meet the memory-hardness floor.
func (p KDFParams) Validate() error {
	if p.MemoryKiB == 0 {
		return fmt.Errorf("argon2id: memory must be > 0")
	}
	if p.Iterations == 0 {
		return fmt.Errorf("argon2id: iterations must be > 0")
	}
	if p.Parallelism == 0 {
		return fmt.Errorf("argon2id: parallelism must be > 0")
	}
	return nil
}

// GenerateSalt generates a random 16-byte KDF salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKEK derives the 32-byte key-encryption key from the master
// password with Argon2id.
func DeriveKEK(password string, salt []byte, params KDFParams) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		KeySize,
	)
	return key, nil
}
