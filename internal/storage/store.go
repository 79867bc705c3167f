package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vantavault/vanta/internal/crypto"
	"github.com/vantavault/vanta/internal/events"
	"github.com/vantavault/vanta/internal/models"
)

const (
	envelopeFile = "envelope.bin"
	manifestFile = "manifest.enc"
	blobsDir     = "blobs"
)

// Store maps (id, variant) tuples to files under the vault root and
// keeps every payload codec-framed on disk. A partially-written file is
// never visible under its final name.
type Store struct {
	root   string
	logger *events.Logger
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *events.Logger) (*Store, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(absRoot, blobsDir), 0700); err != nil {
		return nil, models.NewIoError("mkdir", absRoot, err)
	}

	return &Store{
		root:   absRoot,
		logger: logger.WithField("component", "store"),
	}, nil
}

// Root returns the vault root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) envelopePath() string {
	return filepath.Join(s.root, envelopeFile)
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.root, manifestFile)
}

func (s *Store) blobDir(id string) string {
	return filepath.Join(s.root, blobsDir, id)
}

func (s *Store) blobPath(id string, variant models.Variant) string {
	return filepath.Join(s.blobDir(id), string(variant)+".enc")
}

// writeAtomic writes data to path via a temp file, fsyncs it, then
// renames over the destination.
func (s *Store) writeAtomic(path string, data []byte, syncDir bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return models.NewIoError("mkdir", filepath.Dir(path), err)
	}

	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return models.NewIoError("create", tmpPath, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return models.NewIoError("write", tmpPath, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return models.NewIoError("sync", tmpPath, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return models.NewIoError("close", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return models.NewIoError("rename", path, err)
	}

	if syncDir {
		if err := fsyncDir(filepath.Dir(path)); err != nil {
			return err
		}
	}

	return nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return models.NewIoError("open", dir, err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return models.NewIoError("sync", dir, err)
	}
	return nil
}

// EnvelopeExists reports whether an envelope record is present.
func (s *Store) EnvelopeExists() (bool, error) {
	_, err := os.Stat(s.envelopePath())
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, models.NewIoError("stat", s.envelopePath(), err)
}

// ReadEnvelope loads the raw envelope record. The envelope is
// self-describing and not codec-framed.
func (s *Store) ReadEnvelope() ([]byte, error) {
	data, err := os.ReadFile(s.envelopePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrNotInitialized
		}
		return nil, models.NewIoError("read", s.envelopePath(), err)
	}
	return data, nil
}

// WriteEnvelope persists the envelope record atomically.
func (s *Store) WriteEnvelope(data []byte) error {
	return s.writeAtomic(s.envelopePath(), data, true)
}

// ReadManifest loads and decrypts the manifest. A missing manifest file
// returns models.ErrNotFound so the caller can treat it as empty.
func (s *Store) ReadManifest(dek []byte) ([]byte, error) {
	frame, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrNotFound
		}
		return nil, models.NewIoError("read", s.manifestPath(), err)
	}

	plaintext, err := crypto.Decrypt(dek, frame)
	if err != nil {
		return nil, models.ErrManifestCorrupt
	}
	return plaintext, nil
}

// WriteManifest encrypts and atomically rewrites the manifest file,
// fsyncing the vault root after the rename.
func (s *Store) WriteManifest(dek, plaintext []byte) error {
	frame, err := crypto.Encrypt(dek, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt manifest: %w", err)
	}
	return s.writeAtomic(s.manifestPath(), frame, true)
}

// WriteBlob encrypts and persists one variant of one image.
func (s *Store) WriteBlob(dek []byte, id string, variant models.Variant, plaintext []byte) error {
	frame, err := crypto.Encrypt(dek, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt blob: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"id":      id,
		"variant": variant,
		"size":    len(plaintext),
	}).Debug("Writing blob")

	return s.writeAtomic(s.blobPath(id, variant), frame, false)
}

// ReadBlob loads and decrypts one variant of one image.
func (s *Store) ReadBlob(dek []byte, id string, variant models.Variant) ([]byte, error) {
	frame, err := os.ReadFile(s.blobPath(id, variant))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrNotFound
		}
		return nil, models.NewIoError("read", s.blobPath(id, variant), err)
	}

	return crypto.Decrypt(dek, frame)
}

// DeleteBlobs removes every variant of an image. A missing directory is
// not an error; deletes run only after the manifest rewrite that commits
// the removal.
func (s *Store) DeleteBlobs(id string) error {
	dir := s.blobDir(id)

	s.logger.WithField("id", id).Debug("Deleting blobs")

	if err := os.RemoveAll(dir); err != nil {
		return models.NewIoError("remove", dir, err)
	}
	return nil
}

// ListBlobIDs returns the id of every blob directory on disk. Used by
// the manifest/filesystem agreement check.
func (s *Store) ListBlobIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, blobsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, models.NewIoError("readdir", filepath.Join(s.root, blobsDir), err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
