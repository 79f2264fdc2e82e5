// Package anchor assigns bookmark names to bibliography entries and builds
// the lookup index that maps citation identities onto those names.
package anchor

import (
	"fmt"
	"strings"

	"github.com/citekit/citelink/core/cite"
	"github.com/citekit/citelink/core/scan"
	"github.com/citekit/citelink/internal/logging"
)

// Name returns the deterministic anchor name for a bibliography ordinal.
// Names derive from position, never from entry text, so they stay unique
// and valid no matter what characters the entry contains.
func Name(ordinal int) string {
	return fmt.Sprintf("ref%d", ordinal)
}

// Index is the identity-to-anchor lookup built from the bibliography.
// It is immutable once Build returns.
type Index struct {
	byToken   map[string]string
	byBase    map[string][]string
	byOrdinal map[int]string
	byKey     map[string]string
}

// Build assigns an anchor to every entry, disambiguates same author+year
// groups with letter suffixes, and registers every identity a citation may
// carry. Entries are mutated in place: Anchor is set on all of them, Suffix
// is filled for colliding entries that do not render one, and Item gains
// metadata from citations whose payload matched the entry.
func Build(entries []*scan.Entry, citations []*scan.Citation) *Index {
	idx := &Index{
		byToken:   make(map[string]string, len(entries)),
		byBase:    make(map[string][]string, len(entries)),
		byOrdinal: make(map[int]string, len(entries)),
		byKey:     make(map[string]string),
	}

	assignSuffixes(entries)

	baseEntries := make(map[string][]*scan.Entry)
	for _, e := range entries {
		e.Anchor = Name(e.Ordinal)
		idx.byOrdinal[e.Ordinal] = e.Anchor

		if e.Surname == "" || e.Year == "" {
			logging.Debug("bibliography entry has no author-year identity",
				"ordinal", e.Ordinal, "text", e.Text)
			continue
		}
		token := cite.AuthorYearToken(e.Surname, e.Year, e.Suffix)
		if prev, dup := idx.byToken[token]; dup {
			logging.Warn("duplicate bibliography identity, keeping first",
				"token", token, "anchor", prev, "dropped", e.Anchor)
		} else {
			idx.byToken[token] = e.Anchor
		}
		base := cite.AuthorYearToken(e.Surname, e.Year, "")
		idx.byBase[base] = append(idx.byBase[base], e.Anchor)
		baseEntries[base] = append(baseEntries[base], e)
	}

	idx.matchItems(entries, citations, baseEntries)
	return idx
}

// assignSuffixes letters entries that share a (surname, year) pair. Suffixes
// already rendered in the entry text are kept; the rest fill gaps in ordinal
// order. Lone entries never receive a suffix.
func assignSuffixes(entries []*scan.Entry) {
	groups := make(map[string][]*scan.Entry)
	for _, e := range entries {
		if e.Surname == "" || e.Year == "" {
			continue
		}
		base := cite.AuthorYearToken(e.Surname, e.Year, "")
		groups[base] = append(groups[base], e)
	}

	for base, group := range groups {
		if len(group) < 2 {
			continue
		}
		used := make(map[string]bool, len(group))
		for _, e := range group {
			if e.Suffix != "" {
				used[e.Suffix] = true
			}
		}
		next := 'a'
		for _, e := range group {
			if e.Suffix != "" {
				continue
			}
			for next <= 'z' && used[string(next)] {
				next++
			}
			if next > 'z' {
				logging.Warn("suffix alphabet exhausted", "base", base)
				break
			}
			e.Suffix = string(next)
			used[e.Suffix] = true
			next++
		}
	}
}

// matchItems pairs citation item metadata with bibliography entries and
// registers key identities. A unique (surname, year) hit wins; otherwise the
// item's title, container title and lead author must all appear in the entry
// text, with the title not followed by further words. Each entry is claimed
// by the text match at most once.
func (x *Index) matchItems(entries []*scan.Entry, citations []*scan.Citation, baseEntries map[string][]*scan.Entry) {
	claimed := make(map[int]bool)
	for _, c := range citations {
		for _, ref := range c.Refs {
			if ref.Key == "" || ref.Item == nil {
				continue
			}
			if _, done := x.byKey[ref.Key]; done {
				continue
			}
			e := matchEntry(ref.Item, entries, baseEntries, claimed)
			if e == nil {
				logging.Debug("citation item has no matching bibliography entry",
					"item_key", ref.Key, "title", ref.Item.Title)
				continue
			}
			x.byKey[ref.Key] = e.Anchor
			if e.Item == nil {
				e.Item = ref.Item
			}
		}
	}
}

func matchEntry(item *cite.Item, entries []*scan.Entry, baseEntries map[string][]*scan.Entry, claimed map[int]bool) *scan.Entry {
	surname := item.FirstAuthorSurname()
	year := item.IssuedYear()
	if surname != "" && year != "" {
		base := cite.AuthorYearToken(surname, year, "")
		if group := baseEntries[base]; len(group) == 1 {
			return group[0]
		}
	}

	title := item.Title
	if title == "" {
		return nil
	}
	for _, e := range entries {
		if claimed[e.Ordinal] {
			continue
		}
		if strings.Contains(e.Text, title) &&
			strings.Contains(e.Text, item.ContainerTitle) &&
			strings.Contains(e.Text, surname) &&
			!strings.Contains(e.Text, title+" ") {
			claimed[e.Ordinal] = true
			return e
		}
	}
	return nil
}

// AnchorForToken resolves a full identity token, suffix included.
func (x *Index) AnchorForToken(token string) (string, bool) {
	a, ok := x.byToken[token]
	return a, ok
}

// AnchorsForBase returns the anchors sharing a suffix-less (surname, year)
// token, in bibliography order. Empty when the pair is unknown.
func (x *Index) AnchorsForBase(base string) []string {
	return x.byBase[base]
}

// AnchorForOrdinal resolves a numbered-style position.
func (x *Index) AnchorForOrdinal(ordinal int) (string, bool) {
	a, ok := x.byOrdinal[ordinal]
	return a, ok
}

// AnchorForKey resolves a reference-manager item key.
func (x *Index) AnchorForKey(key string) (string, bool) {
	a, ok := x.byKey[key]
	return a, ok
}
