package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/vantavault/vanta/internal/models"
)

// formatVersion guards the serialized layout. Decoders ignore unknown
// fields so additive changes do not need a version bump.
const formatVersion = 1

// Manifest is the in-memory catalog of image entries and the sole source
// of truth for image identity, variants, tags, and linked-set membership.
// It is not goroutine-safe; the vault serializes access.
type Manifest struct {
	entries map[string]*models.ImageEntry
	order   []string // insertion order of cover ids
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{
		entries: make(map[string]*models.ImageEntry),
	}
}

// Len returns the number of cover entries.
func (m *Manifest) Len() int {
	return len(m.order)
}

// contains reports whether id is used anywhere, as a cover or a linked
// sub-entry. An id may appear in at most one place.
func (m *Manifest) contains(id string) bool {
	if _, ok := m.entries[id]; ok {
		return true
	}
	for _, e := range m.entries {
		for _, l := range e.LinkedImages {
			if l.ID == id {
				return true
			}
		}
	}
	return false
}

// Insert adds a new cover entry.
func (m *Manifest) Insert(entry *models.ImageEntry) error {
	if m.contains(entry.ID) {
		return fmt.Errorf("duplicate id %s: %w", entry.ID, models.ErrInvalidInput)
	}
	m.entries[entry.ID] = entry
	m.order = append(m.order, entry.ID)
	return nil
}

// Get returns the cover entry for id.
func (m *Manifest) Get(id string) (*models.ImageEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return entry, nil
}

// Remove deletes a cover entry and returns it so the caller can delete
// its blobs and those of its linked sub-entries.
func (m *Manifest) Remove(id string) (*models.ImageEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	delete(m.entries, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return entry, nil
}

// UpdateTags replaces the tag list of an entry, preserving the order
// given.
func (m *Manifest) UpdateTags(id string, tags []string) error {
	entry, ok := m.entries[id]
	if !ok {
		return models.ErrNotFound
	}
	entry.Tags = tags
	return nil
}

// AttachLinked appends a linked sub-entry to a cover.
func (m *Manifest) AttachLinked(coverID string, linked models.LinkedImage) error {
	entry, ok := m.entries[coverID]
	if !ok {
		return models.ErrNotFound
	}
	if m.contains(linked.ID) {
		return fmt.Errorf("duplicate id %s: %w", linked.ID, models.ErrInvalidInput)
	}
	entry.LinkedImages = append(entry.LinkedImages, linked)
	return nil
}

// DetachLinked removes a linked sub-entry from a cover and returns it.
func (m *Manifest) DetachLinked(coverID, linkedID string) (*models.LinkedImage, error) {
	entry, ok := m.entries[coverID]
	if !ok {
		return nil, models.ErrNotFound
	}

	for i, l := range entry.LinkedImages {
		if l.ID == linkedID {
			removed := l
			entry.LinkedImages = append(entry.LinkedImages[:i], entry.LinkedImages[i+1:]...)
			return &removed, nil
		}
	}
	return nil, models.ErrNotFound
}

// Iter returns the cover entries in insertion order.
func (m *Manifest) Iter() []*models.ImageEntry {
	out := make([]*models.ImageEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

// AllIDs returns every id that should have a blob directory on disk,
// covers and linked sub-entries alike.
func (m *Manifest) AllIDs() map[string]bool {
	ids := make(map[string]bool, len(m.entries))
	for _, id := range m.order {
		ids[id] = true
		for _, l := range m.entries[id].LinkedImages {
			ids[l.ID] = true
		}
	}
	return ids
}

// Clone returns a deep copy used to stage a mutation: the copy is
// mutated, serialized, and written; only then does it replace the live
// manifest. A failed write leaves the original untouched.
func (m *Manifest) Clone() *Manifest {
	out := New()
	for _, id := range m.order {
		clone := m.entries[id].Clone()
		out.entries[id] = clone
		out.order = append(out.order, id)
	}
	return out
}

// serialized is the on-disk shape before encryption.
type serialized struct {
	Version int                 `json:"version"`
	Entries []models.ImageEntry `json:"entries"`
}

// Encode serializes the manifest. The result is encrypted by the store
// before it touches disk.
func (m *Manifest) Encode() ([]byte, error) {
	doc := serialized{Version: formatVersion}
	doc.Entries = make([]models.ImageEntry, 0, len(m.order))
	for _, id := range m.order {
		doc.Entries = append(doc.Entries, *m.entries[id])
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// Decode parses serialized manifest bytes. Unknown fields are ignored;
// anything structurally wrong is ErrManifestCorrupt.
func Decode(data []byte) (*Manifest, error) {
	var doc serialized
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, models.ErrManifestCorrupt
	}
	if doc.Version != formatVersion {
		return nil, models.ErrManifestCorrupt
	}

	m := New()
	for i := range doc.Entries {
		entry := doc.Entries[i]
		if !models.ValidID(entry.ID) {
			return nil, models.ErrManifestCorrupt
		}
		for _, l := range entry.LinkedImages {
			if !models.ValidID(l.ID) {
				return nil, models.ErrManifestCorrupt
			}
		}
		if err := m.Insert(&entry); err != nil {
			return nil, models.ErrManifestCorrupt
		}
	}
	return m, nil
}
