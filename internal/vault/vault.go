package vault

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/vantavault/vanta/internal/crypto"
	"github.com/vantavault/vanta/internal/events"
	"github.com/vantavault/vanta/internal/imaging"
	"github.com/vantavault/vanta/internal/manifest"
	"github.com/vantavault/vanta/internal/models"
	"github.com/vantavault/vanta/internal/storage"
	"github.com/vantavault/vanta/internal/tags"
)

// Vault is the encrypted image vault: a three-state lifecycle
// (uninitialized, locked, unlocked) gating every operation, with the DEK
// and manifest held in memory only while unlocked.
type Vault struct {
	store     *storage.Store
	processor *imaging.Processor
	logger    *events.Logger
	kdfParams crypto.KDFParams

	// stateMu guards the lifecycle fields. The gate takes it in read
	// mode per check; operations pin it in read mode for their whole
	// duration so Lock cannot zeroize the DEK or drop the manifest
	// under a running operation. Lifecycle transitions take it in
	// write mode and therefore wait for in-flight operations.
	stateMu      sync.RWMutex
	dek          []byte
	sessionToken string

	// mu serializes manifest and tag-index access. Writers stage a new
	// manifest, persist it, then swap it in under the write lock.
	mu       sync.RWMutex
	manifest *manifest.Manifest
	index    *tags.Index
}

// New creates a vault over the given store.
func New(store *storage.Store, processor *imaging.Processor, kdfParams crypto.KDFParams, logger *events.Logger) *Vault {
	return &Vault{
		store:     store,
		processor: processor,
		logger:    logger.WithField("component", "vault"),
		kdfParams: kdfParams,
	}
}

// Status reports the lifecycle flags surfaced by the status endpoint.
func (v *Vault) Status() (initialized, unlocked bool, err error) {
	initialized, err = v.store.EnvelopeExists()
	if err != nil {
		return false, false, err
	}

	v.stateMu.RLock()
	unlocked = v.dek != nil
	v.stateMu.RUnlock()

	return initialized, unlocked, nil
}

// Initialize creates the envelope for a fresh vault and leaves it
// unlocked with a new session token. Refused when an envelope already
// exists.
func (v *Vault) Initialize(password string) (string, error) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	exists, err := v.store.EnvelopeExists()
	if err != nil {
		return "", err
	}
	if exists {
		return "", models.ErrAlreadyInitialized
	}

	dek, env, err := crypto.SealEnvelope(password, v.kdfParams)
	if err != nil {
		return "", fmt.Errorf("seal envelope: %w", err)
	}

	envBytes, err := env.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	if err := v.store.WriteEnvelope(envBytes); err != nil {
		crypto.Zeroize(dek)
		return "", err
	}

	m := manifest.New()
	encoded, err := m.Encode()
	if err != nil {
		crypto.Zeroize(dek)
		return "", err
	}
	if err := v.store.WriteManifest(dek, encoded); err != nil {
		crypto.Zeroize(dek)
		return "", err
	}

	token, err := newSessionToken()
	if err != nil {
		crypto.Zeroize(dek)
		return "", err
	}

	v.dek = dek
	v.sessionToken = token

	v.mu.Lock()
	v.manifest = m
	v.index = tags.NewIndex()
	v.mu.Unlock()

	v.logger.Info("Vault initialized")
	return token, nil
}

// Unlock opens the envelope with the password and loads the manifest.
// Unlocking an already-unlocked vault re-verifies the password and
// issues a fresh session token. On any failure the vault stays locked.
func (v *Vault) Unlock(password string) (string, error) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	envBytes, err := v.store.ReadEnvelope()
	if err != nil {
		return "", err
	}

	env, err := crypto.UnmarshalEnvelope(envBytes)
	if err != nil {
		// A malformed envelope is indistinguishable from a bad password.
		return "", models.ErrWrongPassword
	}

	dek, err := env.Open(password)
	if err != nil {
		return "", err
	}

	if v.dek != nil {
		// Already unlocked; the password checked out, reissue the session.
		crypto.Zeroize(dek)
		token, err := newSessionToken()
		if err != nil {
			return "", err
		}
		v.sessionToken = token
		return token, nil
	}

	m, err := v.loadManifest(dek)
	if err != nil {
		crypto.Zeroize(dek)
		return "", err
	}

	if err := v.checkBlobAgreement(m); err != nil {
		crypto.Zeroize(dek)
		v.logger.WithError(err).Error("Blob agreement check failed")
		return "", err
	}

	token, err := newSessionToken()
	if err != nil {
		crypto.Zeroize(dek)
		return "", err
	}

	v.dek = dek
	v.sessionToken = token

	v.mu.Lock()
	v.manifest = m
	v.index = tags.Build(m.Iter())
	v.mu.Unlock()

	v.logger.WithField("entries", m.Len()).Info("Vault unlocked")
	return token, nil
}

// Lock zeroizes the DEK, drops the manifest from memory, and
// invalidates the session token. Logout is the same operation. Lock
// waits for in-flight operations to finish, so it never pulls the DEK
// out from under a running upload or retrieval.
func (v *Vault) Lock() {
	v.stateMu.Lock()
	if v.dek != nil {
		crypto.Zeroize(v.dek)
		v.dek = nil
	}
	v.sessionToken = ""
	v.stateMu.Unlock()

	v.mu.Lock()
	v.manifest = nil
	v.index = nil
	v.mu.Unlock()

	v.logger.Info("Vault locked")
}

// Gate checks the predicate every protected operation requires: the
// vault is unlocked and the caller holds the current session token.
func (v *Vault) Gate(token string) error {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()

	if v.dek == nil {
		exists, err := v.store.EnvelopeExists()
		if err != nil {
			return err
		}
		if !exists {
			return models.ErrNotInitialized
		}
		return models.ErrLocked
	}

	if token == "" || v.sessionToken == "" {
		return models.ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.sessionToken)) != 1 {
		return models.ErrUnauthenticated
	}
	return nil
}

// loadManifest decrypts and decodes the manifest file; absence means an
// empty vault.
func (v *Vault) loadManifest(dek []byte) (*manifest.Manifest, error) {
	data, err := v.store.ReadManifest(dek)
	if err != nil {
		if err == models.ErrNotFound {
			return manifest.New(), nil
		}
		return nil, err
	}
	return manifest.Decode(data)
}

// checkBlobAgreement verifies no blob directory exists that the
// manifest does not reference. Garbage blobs are a fatal integrity
// error.
func (v *Vault) checkBlobAgreement(m *manifest.Manifest) error {
	onDisk, err := v.store.ListBlobIDs()
	if err != nil {
		return err
	}

	known := m.AllIDs()
	for _, id := range onDisk {
		if !known[id] {
			return &models.IntegrityError{ID: id, Detail: "blob not referenced by manifest"}
		}
	}
	return nil
}

// acquireDEK pins the unlocked state for one operation. The returned
// release func must be called when the operation finishes; until then
// Lock blocks, so the DEK stays valid and the manifest stays loaded for
// the full operation. Callers must not retain the DEK past release.
func (v *Vault) acquireDEK() ([]byte, func(), error) {
	v.stateMu.RLock()
	if v.dek == nil {
		v.stateMu.RUnlock()
		return nil, nil, models.ErrLocked
	}
	return v.dek, v.stateMu.RUnlock, nil
}

// persist stages a manifest rewrite: encode, encrypt, atomic write,
// then swap the in-memory manifest and rebuild the tag index. The
// caller holds mu in write mode. On failure the previous manifest stays
// live.
func (v *Vault) persist(dek []byte, staged *manifest.Manifest) error {
	encoded, err := staged.Encode()
	if err != nil {
		return err
	}

	if err := v.store.WriteManifest(dek, encoded); err != nil {
		return err
	}

	v.manifest = staged
	v.index = tags.Build(staged.Iter())
	return nil
}

func newSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
