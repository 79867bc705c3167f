package tags

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vantavault/vanta/internal/models"
)

// maxTagLength caps individual tag size.
const maxTagLength = 32

// Normalize lowercases and trims a tag and validates its character set.
// Valid tags match [a-z0-9_-]+ after normalization.
func Normalize(tag string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(tag))

	if normalized == "" {
		return "", fmt.Errorf("tag cannot be empty: %w", models.ErrInvalidInput)
	}
	if len(normalized) > maxTagLength {
		return "", fmt.Errorf("tag too long: %w", models.ErrInvalidInput)
	}
	for _, c := range normalized {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return "", fmt.Errorf("invalid tag characters: %w", models.ErrInvalidInput)
		}
	}

	return normalized, nil
}

// Index maps each tag to the set of cover entry ids carrying it. It is
// rebuilt on unlock and after every manifest rewrite; the vault
// serializes access.
type Index struct {
	byTag map[string]map[string]bool
}

// NewIndex creates an empty tag index.
func NewIndex() *Index {
	return &Index{byTag: make(map[string]map[string]bool)}
}

// Build constructs the index from manifest entries.
func Build(entries []*models.ImageEntry) *Index {
	idx := NewIndex()
	for _, e := range entries {
		for _, tag := range e.Tags {
			idx.Add(tag, e.ID)
		}
	}
	return idx
}

// Add records that id carries tag.
func (i *Index) Add(tag, id string) {
	set, ok := i.byTag[tag]
	if !ok {
		set = make(map[string]bool)
		i.byTag[tag] = set
	}
	set[id] = true
}

// IDs returns the set of ids carrying tag. Unknown tags yield nil.
func (i *Index) IDs(tag string) map[string]bool {
	return i.byTag[tag]
}

// List returns every known tag, sorted.
func (i *Index) List() []string {
	out := make([]string, 0, len(i.byTag))
	for tag := range i.byTag {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
