package vault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantavault/vanta/internal/models"
	"github.com/vantavault/vanta/internal/tags"
	"github.com/vantavault/vanta/internal/vault"
)

func uploadPNG(t *testing.T, v *vault.Vault) *models.ImageEntry {
	t.Helper()
	entry, err := v.Upload(context.Background(), makePNG(t, 16, 16), "image/png")
	require.NoError(t, err)
	return entry
}

func TestVault_AddTag(t *testing.T) {
	v, _ := unlockedVault(t)
	entry := uploadPNG(t, v)

	got, err := v.AddTag(entry.ID, "  Sunset ")
	require.NoError(t, err)
	assert.Equal(t, []string{"sunset"}, got.Tags)

	// Adding again is a no-op.
	got, err = v.AddTag(entry.ID, "sunset")
	require.NoError(t, err)
	assert.Equal(t, []string{"sunset"}, got.Tags)

	got, err = v.AddTag(entry.ID, "beach")
	require.NoError(t, err)
	assert.Equal(t, []string{"sunset", "beach"}, got.Tags, "tag order is insertion order")

	_, err = v.AddTag(entry.ID, "bad tag!")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = v.AddTag("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "sunset")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVault_RemoveTag(t *testing.T) {
	v, _ := unlockedVault(t)
	entry := uploadPNG(t, v)

	_, err := v.AddTag(entry.ID, "sunset")
	require.NoError(t, err)
	_, err = v.AddTag(entry.ID, "beach")
	require.NoError(t, err)

	got, err := v.RemoveTag(entry.ID, "sunset")
	require.NoError(t, err)
	assert.Equal(t, []string{"beach"}, got.Tags)

	// Removing an absent tag succeeds without changes.
	got, err = v.RemoveTag(entry.ID, "sunset")
	require.NoError(t, err)
	assert.Equal(t, []string{"beach"}, got.Tags)
}

func TestVault_TagsList(t *testing.T) {
	v, _ := unlockedVault(t)
	a := uploadPNG(t, v)
	b := uploadPNG(t, v)

	for _, tag := range []string{"zebra", "alpha"} {
		_, err := v.AddTag(a.ID, tag)
		require.NoError(t, err)
	}
	_, err := v.AddTag(b.ID, "alpha")
	require.NoError(t, err)

	list, err := v.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zebra"}, list, "tags are unique and sorted")

	// Dropping the last carrier removes the tag from the global set.
	_, err = v.RemoveTag(a.ID, "zebra")
	require.NoError(t, err)

	list, err = v.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, list)
}

func TestVault_Search(t *testing.T) {
	v, _ := unlockedVault(t)
	a := uploadPNG(t, v)
	b := uploadPNG(t, v)
	c := uploadPNG(t, v)

	for id, tagList := range map[string][]string{
		a.ID: {"sunset", "beach"},
		b.ID: {"sunset"},
		c.ID: {"city"},
	} {
		for _, tag := range tagList {
			_, err := v.AddTag(id, tag)
			require.NoError(t, err)
		}
	}

	search := func(q string) []string {
		query, err := tags.ParseQuery(q)
		require.NoError(t, err)
		entries, err := v.Search(query)
		require.NoError(t, err)
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		return ids
	}

	assert.Equal(t, []string{a.ID, b.ID, c.ID}, search(""), "empty query lists all in upload order")
	assert.Equal(t, []string{a.ID, b.ID}, search("sunset"))
	assert.Equal(t, []string{a.ID}, search("sunset beach"))
	assert.Equal(t, []string{b.ID, c.ID}, search("-beach"))
	assert.Equal(t, []string{b.ID}, search("sunset -beach"))
	assert.Empty(t, search("nosuchtag"))
}

func TestVault_RenameTag(t *testing.T) {
	v, _ := unlockedVault(t)
	a := uploadPNG(t, v)
	b := uploadPNG(t, v)

	for _, tag := range []string{"holiday", "beach"} {
		_, err := v.AddTag(a.ID, tag)
		require.NoError(t, err)
	}
	_, err := v.AddTag(b.ID, "holiday")
	require.NoError(t, err)

	count, err := v.RenameTag("holiday", "vacation")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := v.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vacation", "beach"}, got.Tags, "rename keeps the tag position")

	list, err := v.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "vacation"}, list)
}

func TestVault_RenameTagMergesDuplicates(t *testing.T) {
	v, _ := unlockedVault(t)
	a := uploadPNG(t, v)

	for _, tag := range []string{"holiday", "vacation"} {
		_, err := v.AddTag(a.ID, tag)
		require.NoError(t, err)
	}

	count, err := v.RenameTag("holiday", "vacation")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := v.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vacation"}, got.Tags, "no duplicate tag after merge")
}

func TestVault_RenameTagEdgeCases(t *testing.T) {
	v, _ := unlockedVault(t)
	a := uploadPNG(t, v)
	_, err := v.AddTag(a.ID, "sunset")
	require.NoError(t, err)

	count, err := v.RenameTag("sunset", "Sunset")
	require.NoError(t, err)
	assert.Zero(t, count, "rename to the same normalized tag is a no-op")

	count, err = v.RenameTag("nosuchtag", "other")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = v.RenameTag("sunset", "bad tag!")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
