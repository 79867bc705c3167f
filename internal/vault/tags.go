package vault

import (
	"github.com/vantavault/vanta/internal/models"
	"github.com/vantavault/vanta/internal/tags"
)

// AddTag adds one normalized tag to an entry. Adding a tag the entry
// already carries is a no-op.
func (v *Vault) AddTag(id, tag string) (*models.ImageEntry, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	if !models.ValidID(id) {
		return nil, models.ErrNotFound
	}

	normalized, err := tags.Normalize(tag)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	entry, err := v.manifest.Get(id)
	if err != nil {
		return nil, err
	}

	for _, have := range entry.Tags {
		if have == normalized {
			return entry.Clone(), nil
		}
	}

	staged := v.manifest.Clone()
	stagedEntry, err := staged.Get(id)
	if err != nil {
		return nil, err
	}
	stagedEntry.Tags = append(stagedEntry.Tags, normalized)

	if err := v.persist(dek, staged); err != nil {
		return nil, err
	}
	return stagedEntry.Clone(), nil
}

// RemoveTag removes one tag from an entry. Removal is idempotent.
func (v *Vault) RemoveTag(id, tag string) (*models.ImageEntry, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	if !models.ValidID(id) {
		return nil, models.ErrNotFound
	}

	normalized, err := tags.Normalize(tag)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	entry, err := v.manifest.Get(id)
	if err != nil {
		return nil, err
	}

	pos := -1
	for i, have := range entry.Tags {
		if have == normalized {
			pos = i
			break
		}
	}
	if pos < 0 {
		return entry.Clone(), nil
	}

	staged := v.manifest.Clone()
	stagedEntry, err := staged.Get(id)
	if err != nil {
		return nil, err
	}
	stagedEntry.Tags = append(stagedEntry.Tags[:pos], stagedEntry.Tags[pos+1:]...)

	if err := v.persist(dek, staged); err != nil {
		return nil, err
	}
	return stagedEntry.Clone(), nil
}

// RenameTag replaces old with new in every entry carrying old,
// preserving the tag's position. When an entry already carries new, the
// duplicate is dropped instead. Returns the number of affected entries.
func (v *Vault) RenameTag(oldTag, newTag string) (int, error) {
	dek, release, err := v.acquireDEK()
	if err != nil {
		return 0, err
	}
	defer release()

	oldNorm, err := tags.Normalize(oldTag)
	if err != nil {
		return 0, err
	}
	newNorm, err := tags.Normalize(newTag)
	if err != nil {
		return 0, err
	}
	if oldNorm == newNorm {
		return 0, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	staged := v.manifest.Clone()
	count := 0

	for _, entry := range staged.Iter() {
		pos := -1
		hasNew := false
		for i, have := range entry.Tags {
			if have == oldNorm {
				pos = i
			}
			if have == newNorm {
				hasNew = true
			}
		}
		if pos < 0 {
			continue
		}

		if hasNew {
			entry.Tags = append(entry.Tags[:pos], entry.Tags[pos+1:]...)
		} else {
			entry.Tags[pos] = newNorm
		}
		count++
	}

	if count == 0 {
		return 0, nil
	}

	if err := v.persist(dek, staged); err != nil {
		return 0, err
	}

	v.logger.WithFields(map[string]interface{}{
		"old":     oldNorm,
		"new":     newNorm,
		"renamed": count,
	}).Info("Tag renamed")

	return count, nil
}

// Search returns snapshots of the entries matching a parsed tag query,
// in manifest insertion order. An empty query matches all.
func (v *Vault) Search(query *tags.Query) ([]*models.ImageEntry, error) {
	_, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	v.mu.RLock()
	defer v.mu.RUnlock()

	matched := query.Filter(v.manifest.Iter())
	out := make([]*models.ImageEntry, 0, len(matched))
	for _, entry := range matched {
		out = append(out, entry.Clone())
	}
	return out, nil
}

// Tags returns the global tag set as a sorted sequence of unique
// strings.
func (v *Vault) Tags() ([]string, error) {
	_, release, err := v.acquireDEK()
	if err != nil {
		return nil, err
	}
	defer release()

	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.index.List(), nil
}
