package vault

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/vantavault/vanta/internal/models"
)

// AttachLinked runs the full pipeline on an upload and appends the
// result to a cover entry's linked set. Linked sub-entries carry no tags
// and cannot nest.
func (v *Vault) AttachLinked(ctx context.Context, coverID string, data []byte, mime string) (*models.ImageEntry, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	if !models.ValidID(coverID) {
		return nil, models.ErrNotFound
	}

	// Check the cover exists before paying for the pipeline.
	if _, err := v.snapshot(coverID); err != nil {
		return nil, err
	}

	processed, err := v.processor.Process(ctx, data, mime)
	if err != nil {
		return nil, err
	}

	subID, err := models.NewID()
	if err != nil {
		return nil, err
	}

	linked := models.LinkedImage{
		ID:           subID,
		OriginalMime: processed.OriginalMime,
		OriginalSize: processed.OriginalSize,
		CreatedAt:    time.Now().Unix(),
	}
	for _, variant := range processed.Variants {
		linked.Variants = append(linked.Variants, variant.Variant)
	}

	if err := v.writeVariants(dek, subID, processed); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	staged := v.manifest.Clone()
	if err := staged.AttachLinked(coverID, linked); err != nil {
		_ = v.store.DeleteBlobs(subID)
		return nil, err
	}

	if err := v.persist(dek, staged); err != nil {
		_ = v.store.DeleteBlobs(subID)
		return nil, err
	}

	v.logger.WithFields(map[string]interface{}{
		"cover": coverID,
		"sub":   subID,
	}).Info("Linked image attached")

	entry, err := v.manifest.Get(coverID)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// DetachLinked removes a linked sub-entry from its cover and deletes
// its blobs after the manifest rewrite commits the removal.
func (v *Vault) DetachLinked(coverID, linkedID string) (*models.ImageEntry, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	if !models.ValidID(coverID) || !models.ValidID(linkedID) {
		return nil, models.ErrNotFound
	}

	v.mu.Lock()

	staged := v.manifest.Clone()
	if _, err := staged.DetachLinked(coverID, linkedID); err != nil {
		v.mu.Unlock()
		return nil, err
	}

	if err := v.persist(dek, staged); err != nil {
		v.mu.Unlock()
		return nil, err
	}

	entry, getErr := v.manifest.Get(coverID)
	var snapshot *models.ImageEntry
	if getErr == nil {
		snapshot = entry.Clone()
	}
	v.mu.Unlock()

	if err := v.store.DeleteBlobs(linkedID); err != nil {
		v.logger.WithError(err).Error("Failed to delete detached blobs")
	}

	if getErr != nil {
		return nil, getErr
	}
	return snapshot, nil
}

// RetrieveLinked returns the decrypted bytes of one variant of a linked
// sub-entry.
func (v *Vault) RetrieveLinked(coverID, linkedID string, variant models.Variant) ([]byte, string, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, "", err
	}
	defer release()

	return v.retrieveLinked(dek, coverID, linkedID, variant)
}

// retrieveLinked is RetrieveLinked with the unlocked state already
// pinned.
func (v *Vault) retrieveLinked(dek []byte, coverID, linkedID string, variant models.Variant) ([]byte, string, error) {
	if !models.ValidID(coverID) || !models.ValidID(linkedID) {
		return nil, "", models.ErrNotFound
	}

	v.mu.RLock()
	entry, err := v.manifest.Get(coverID)
	if err != nil {
		v.mu.RUnlock()
		return nil, "", err
	}

	var mime string
	found := false
	for _, linked := range entry.LinkedImages {
		if linked.ID == linkedID {
			if !linked.HasVariant(variant) {
				v.mu.RUnlock()
				return nil, "", models.ErrNotFound
			}
			mime = linked.OriginalMime
			found = true
			break
		}
	}
	v.mu.RUnlock()

	if !found {
		return nil, "", models.ErrNotFound
	}

	data, err := v.store.ReadBlob(dek, linkedID, variant)
	if err != nil {
		return nil, "", err
	}

	return data, serveMime(variant, mime, data), nil
}

// DownloadArchive builds a ZIP-stored archive of the cover's original
// bytes and every linked sub-entry's, in order. Entries without a
// linked set return the bare original instead.
func (v *Vault) DownloadArchive(id string) (data []byte, contentType string, err error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, "", err
	}
	defer release()

	entry, err := v.snapshot(id)
	if err != nil {
		return nil, "", err
	}

	cover, _, err := v.retrieve(dek, id, models.VariantOriginal)
	if err != nil {
		return nil, "", err
	}

	if len(entry.LinkedImages) == 0 {
		return cover, entry.OriginalMime, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	addFile := func(name string, contents []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Store,
		})
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
		if _, err := w.Write(contents); err != nil {
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
		return nil
	}

	if err := addFile(fmt.Sprintf("1_cover.%s", models.MimeToExt(entry.OriginalMime)), cover); err != nil {
		return nil, "", err
	}

	for i, linked := range entry.LinkedImages {
		subData, _, err := v.retrieveLinked(dek, id, linked.ID, models.VariantOriginal)
		if err != nil {
			return nil, "", err
		}
		name := fmt.Sprintf("%d.%s", i+2, models.MimeToExt(linked.OriginalMime))
		if err := addFile(name, subData); err != nil {
			return nil, "", err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize zip: %w", err)
	}

	return buf.Bytes(), "application/zip", nil
}
