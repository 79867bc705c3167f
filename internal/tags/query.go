package tags

import (
	"strings"

	"github.com/vantavault/vanta/internal/models"
)

// Query is a parsed tag expression: an entry matches iff it carries all
// inclusion terms and none of the negation terms.
type Query struct {
	Include []string
	Exclude []string
}

// ParseQuery splits a whitespace-separated tag expression. Terms
// prefixed with '-' are negations. Bare '-' terms are skipped. Terms are
// normalized; a term that fails normalization is a syntactic error.
func ParseQuery(q string) (*Query, error) {
	query := &Query{}

	for _, term := range strings.Fields(q) {
		negate := false
		if strings.HasPrefix(term, "-") {
			negate = true
			term = term[1:]
			if term == "" {
				continue
			}
		}

		tag, err := Normalize(term)
		if err != nil {
			return nil, err
		}

		if negate {
			query.Exclude = append(query.Exclude, tag)
		} else {
			query.Include = append(query.Include, tag)
		}
	}

	return query, nil
}

// Empty reports whether the query matches everything.
func (q *Query) Empty() bool {
	return len(q.Include) == 0 && len(q.Exclude) == 0
}

// Matches evaluates the query against one entry's tag set. Unknown tags
// in the query simply match nothing and negate nothing.
func (q *Query) Matches(entry *models.ImageEntry) bool {
	have := make(map[string]bool, len(entry.Tags))
	for _, tag := range entry.Tags {
		have[tag] = true
	}

	for _, tag := range q.Include {
		if !have[tag] {
			return false
		}
	}
	for _, tag := range q.Exclude {
		if have[tag] {
			return false
		}
	}
	return true
}

// Filter returns the entries matching the query, in the order given.
func (q *Query) Filter(entries []*models.ImageEntry) []*models.ImageEntry {
	if q.Empty() {
		return entries
	}

	var out []*models.ImageEntry
	for _, e := range entries {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
