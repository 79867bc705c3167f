package vault_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantavault/vanta/internal/models"
)

func TestVault_AttachLinked(t *testing.T) {
	v, _ := unlockedVault(t)
	cover := uploadPNG(t, v)

	got, err := v.AttachLinked(context.Background(), cover.ID, makeJPEG(t, 20, 20), "image/jpeg")
	require.NoError(t, err)

	require.Len(t, got.LinkedImages, 1)
	linked := got.LinkedImages[0]
	assert.True(t, models.ValidID(linked.ID))
	assert.NotEqual(t, cover.ID, linked.ID)
	assert.Equal(t, "image/jpeg", linked.OriginalMime)
	assert.Equal(t, []models.Variant{models.VariantThumbnail, models.VariantHigh, models.VariantOriginal}, linked.Variants)

	_, err = v.AttachLinked(context.Background(), "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", makePNG(t, 4, 4), "image/png")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVault_RetrieveLinked(t *testing.T) {
	v, _ := unlockedVault(t)
	cover := uploadPNG(t, v)

	original := makeJPEG(t, 20, 20)
	got, err := v.AttachLinked(context.Background(), cover.ID, original, "image/jpeg")
	require.NoError(t, err)
	linkedID := got.LinkedImages[0].ID

	data, mime, err := v.RetrieveLinked(cover.ID, linkedID, models.VariantOriginal)
	require.NoError(t, err)
	assert.Equal(t, original, data)
	assert.Equal(t, "image/jpeg", mime)

	// A linked sub-entry is not addressable as a cover.
	_, _, err = v.Retrieve(linkedID, models.VariantOriginal)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, _, err = v.RetrieveLinked(cover.ID, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", models.VariantOriginal)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVault_DetachLinked(t *testing.T) {
	v, store := unlockedVaultWithStore(t)
	cover := uploadPNG(t, v)

	got, err := v.AttachLinked(context.Background(), cover.ID, makeJPEG(t, 20, 20), "image/jpeg")
	require.NoError(t, err)
	linkedID := got.LinkedImages[0].ID

	ids, err := store.ListBlobIDs()
	require.NoError(t, err)
	require.Len(t, ids, 2)

	got, err = v.DetachLinked(cover.ID, linkedID)
	require.NoError(t, err)
	assert.Empty(t, got.LinkedImages)

	ids, err = store.ListBlobIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{cover.ID}, ids)

	_, err = v.DetachLinked(cover.ID, linkedID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVault_DeleteCascadesToLinked(t *testing.T) {
	v, store := unlockedVaultWithStore(t)
	cover := uploadPNG(t, v)

	_, err := v.AttachLinked(context.Background(), cover.ID, makeJPEG(t, 20, 20), "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, v.Delete(cover.ID))

	ids, err := store.ListBlobIDs()
	require.NoError(t, err)
	assert.Empty(t, ids, "cover and linked blobs are gone")
}

func TestVault_DownloadArchiveWithoutLinked(t *testing.T) {
	v, _ := unlockedVault(t)

	original := makePNG(t, 40, 40)
	entry, err := v.Upload(context.Background(), original, "image/png")
	require.NoError(t, err)

	data, contentType, err := v.DownloadArchive(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType, "no linked set means the bare original")
	assert.Equal(t, original, data)
}

func TestVault_DownloadArchiveZip(t *testing.T) {
	v, _ := unlockedVault(t)

	coverBytes := makePNG(t, 40, 40)
	entry, err := v.Upload(context.Background(), coverBytes, "image/png")
	require.NoError(t, err)

	firstLinked := makeJPEG(t, 20, 20)
	_, err = v.AttachLinked(context.Background(), entry.ID, firstLinked, "image/jpeg")
	require.NoError(t, err)

	secondLinked := makePNG(t, 24, 24)
	_, err = v.AttachLinked(context.Background(), entry.ID, secondLinked, "image/png")
	require.NoError(t, err)

	data, contentType, err := v.DownloadArchive(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/zip", contentType)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)

	assert.Equal(t, "1_cover.png", zr.File[0].Name)
	assert.Equal(t, "2.jpg", zr.File[1].Name)
	assert.Equal(t, "3.png", zr.File[2].Name)

	for _, f := range zr.File {
		assert.Equal(t, zip.Store, f.Method, "archive entries are stored, not re-compressed")
	}

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, firstLinked, got, "archive carries the exact original bytes")
}
