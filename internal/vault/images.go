package vault

import (
	"context"
	"net/http"
	"time"

	"github.com/vantavault/vanta/internal/imaging"
	"github.com/vantavault/vanta/internal/models"
)

// Upload runs the full pipeline on an uploaded image and commits it as
// a new cover entry. Blob writes complete before the manifest rewrite
// that references them; partial blobs are removed on any failure.
func (v *Vault) Upload(ctx context.Context, data []byte, mime string) (*models.ImageEntry, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	processed, err := v.processor.Process(ctx, data, mime)
	if err != nil {
		return nil, err
	}

	id, err := models.NewID()
	if err != nil {
		return nil, err
	}

	entry := &models.ImageEntry{
		ID:           id,
		OriginalMime: processed.OriginalMime,
		OriginalSize: processed.OriginalSize,
		CreatedAt:    time.Now().Unix(),
		Tags:         []string{},
		LinkedImages: []models.LinkedImage{},
	}
	for _, variant := range processed.Variants {
		entry.Variants = append(entry.Variants, variant.Variant)
	}

	if err := v.writeVariants(dek, id, processed); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	staged := v.manifest.Clone()
	if err := staged.Insert(entry.Clone()); err != nil {
		_ = v.store.DeleteBlobs(id)
		return nil, err
	}

	if err := v.persist(dek, staged); err != nil {
		_ = v.store.DeleteBlobs(id)
		return nil, err
	}

	v.logger.WithFields(map[string]interface{}{
		"id":   id,
		"mime": mime,
		"size": processed.OriginalSize,
	}).Info("Image stored")

	return entry, nil
}

// writeVariants persists every produced variant, deleting any partial
// blobs if one write fails.
func (v *Vault) writeVariants(dek []byte, id string, processed *imaging.Processed) error {
	for _, variant := range processed.Variants {
		if err := v.store.WriteBlob(dek, id, variant.Variant, variant.Data); err != nil {
			_ = v.store.DeleteBlobs(id)
			return err
		}
	}
	return nil
}

// Retrieve returns the decrypted bytes of one variant and the MIME type
// to serve them with.
func (v *Vault) Retrieve(id string, variant models.Variant) ([]byte, string, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, "", err
	}
	defer release()

	return v.retrieve(dek, id, variant)
}

// retrieve is Retrieve with the unlocked state already pinned.
func (v *Vault) retrieve(dek []byte, id string, variant models.Variant) ([]byte, string, error) {
	if !models.ValidID(id) {
		return nil, "", models.ErrNotFound
	}

	v.mu.RLock()
	entry, err := v.manifest.Get(id)
	if err != nil {
		v.mu.RUnlock()
		return nil, "", err
	}
	if !entry.HasVariant(variant) {
		v.mu.RUnlock()
		return nil, "", models.ErrNotFound
	}
	mime := entry.OriginalMime
	v.mu.RUnlock()

	data, err := v.store.ReadBlob(dek, id, variant)
	if err != nil {
		return nil, "", err
	}

	return data, serveMime(variant, mime, data), nil
}

// serveMime picks the Content-Type for a variant. The high variant may
// reuse the original bytes instead of a WebP re-encode, so derived
// variants are sniffed rather than assumed.
func serveMime(variant models.Variant, originalMime string, data []byte) string {
	if variant == models.VariantOriginal {
		return originalMime
	}
	return http.DetectContentType(data)
}

// Get returns a snapshot of one cover entry.
func (v *Vault) Get(id string) (*models.ImageEntry, error) {
	_, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	return v.snapshot(id)
}

// snapshot clones one cover entry with the unlocked state already
// pinned.
func (v *Vault) snapshot(id string) (*models.ImageEntry, error) {
	if !models.ValidID(id) {
		return nil, models.ErrNotFound
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	entry, err := v.manifest.Get(id)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// Delete removes a cover entry, its linked sub-entries, and all their
// blobs. Files are unlinked only after the manifest rewrite committing
// the removal has succeeded.
func (v *Vault) Delete(id string) error {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return err
	}
	defer release()

	if !models.ValidID(id) {
		return models.ErrNotFound
	}

	v.mu.Lock()

	staged := v.manifest.Clone()
	removed, err := staged.Remove(id)
	if err != nil {
		v.mu.Unlock()
		return err
	}

	if err := v.persist(dek, staged); err != nil {
		v.mu.Unlock()
		return err
	}
	v.mu.Unlock()

	if err := v.store.DeleteBlobs(id); err != nil {
		v.logger.WithError(err).Error("Failed to delete cover blobs")
	}
	for _, linked := range removed.LinkedImages {
		if err := v.store.DeleteBlobs(linked.ID); err != nil {
			v.logger.WithError(err).Error("Failed to delete linked blobs")
		}
	}

	v.logger.WithFields(map[string]interface{}{
		"id":     id,
		"linked": len(removed.LinkedImages),
	}).Info("Image deleted")

	return nil
}
