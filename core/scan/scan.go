// Package scan walks a document once and extracts its linkable structure:
// bibliography entries, citation fields and cross-reference fields. The
// result is the immutable snapshot the indexer, resolver and hooks operate
// on; the scan is never repeated mid-run.
package scan

import (
	"context"
	"strings"

	"github.com/citekit/citelink/core/cite"
	"github.com/citekit/citelink/core/document"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/internal/logging"
)

// StyleKind is the citation style the document was rendered with.
type StyleKind int

const (
	// StyleAuthorYear marks parenthetical author-year citations.
	StyleAuthorYear StyleKind = iota
	// StyleNumbered marks bracketed ordinal citations.
	StyleNumbered
)

// String returns a human-readable name for the style.
func (s StyleKind) String() string {
	if s == StyleNumbered {
		return "numbered"
	}
	return "author-year"
}

// Entry is one bibliography entry: a single rendered paragraph of the
// bibliography field. Anchor is assigned by the indexer; Item is attached
// when the entry is matched to citation metadata.
type Entry struct {
	Ordinal int
	Span    document.Span
	Text    string
	Surname string
	Year    string
	Suffix  string
	Anchor  string
	Item    *cite.Item
}

// Ref is the identity material extracted for one cited work.
type Ref struct {
	Key     string
	Surname string
	Year    string
	Item    *cite.Item
}

// Citation is one citation field and everything parsed out of it.
type Citation struct {
	// Ordinal is the 1-based position among citation fields.
	Ordinal int
	// FieldOrdinal is the 1-based position among all fields, used in
	// diagnostics.
	FieldOrdinal int
	Field        document.Field
	Span         document.Span
	Text         string
	Style        StyleKind
	// Refs holds identity material per cited work, in payload order.
	Refs []Ref
	// Ordinals is the expanded ordinal list of a numbered citation.
	Ordinals []int
	// Subs are the rendered sub-citations of an author-year citation.
	Subs []cite.RenderedSub
	// NumTokens are the rendered integer tokens of a numbered citation.
	NumTokens []cite.NumericToken
}

// CrossRef is one cross-reference field.
type CrossRef struct {
	Ordinal      int
	FieldOrdinal int
	Field        document.Field
	Span         document.Span
}

// Result is the structure snapshot of one scan.
type Result struct {
	Entries   []*Entry
	Citations []*Citation
	CrossRefs []*CrossRef
	// Skipped collects the malformed fields the scan recovered from.
	Skipped []*cerrors.MalformedFieldError
}

// Options configures a scan.
type Options struct {
	// Numbered selects the numbered citation style. The default is
	// author-year.
	Numbered bool
	// Metadata resolves item keys for citations whose embedded payload
	// lacks author or year data. Nil disables remote lookups.
	Metadata cite.MetadataResolver
}

// Scan walks the document and extracts its linkable structure. Malformed
// fields are skipped and recorded; only accessor failures abort the scan.
func Scan(ctx context.Context, acc document.Accessor, opts Options) (*Result, error) {
	res := &Result{}
	fieldOrdinal := 0
	err := acc.ForEachParagraph(func(p document.Paragraph) error {
		fields, err := acc.FieldsIn(p)
		if err != nil {
			return err
		}
		for _, f := range fields {
			fieldOrdinal++
			switch f.Kind() {
			case document.KindBibliography:
				if err := res.addBibliography(fieldOrdinal, f); err != nil {
					return err
				}
			case document.KindCitation:
				res.addCitation(ctx, fieldOrdinal, f, opts)
			case document.KindCrossRef:
				res.CrossRefs = append(res.CrossRefs, &CrossRef{
					Ordinal:      len(res.CrossRefs) + 1,
					FieldOrdinal: fieldOrdinal,
					Field:        f,
					Span:         f.Result(),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Debug("scan complete",
		"entries", len(res.Entries),
		"citations", len(res.Citations),
		"crossrefs", len(res.CrossRefs),
		"skipped", len(res.Skipped))
	return res, nil
}

// addBibliography appends one entry per rendered paragraph of the
// bibliography field. Ordinals continue across fields in the unusual case
// of a document with more than one bibliography.
func (r *Result) addBibliography(fieldOrdinal int, f document.Field) error {
	paras, err := f.Result().Paragraphs()
	if err != nil {
		return cerrors.NewAccessor("split bibliography", "", err)
	}
	for _, span := range paras {
		text := span.Text()
		year, suffix := cite.EntryYear(text)
		e := &Entry{
			Ordinal: len(r.Entries) + 1,
			Span:    span,
			Text:    text,
			Surname: cite.EntrySurname(text),
			Year:    year,
			Suffix:  suffix,
		}
		r.Entries = append(r.Entries, e)
	}
	if len(r.Entries) == 0 {
		logging.FieldSkipped(fieldOrdinal, "bibliography field has no entries")
	}
	return nil
}

// addCitation parses one citation field. Identity extraction tries the
// embedded payload first, then the metadata resolver, then the rendered
// text; the field is skipped as malformed only when every source fails.
func (r *Result) addCitation(ctx context.Context, fieldOrdinal int, f document.Field, opts Options) {
	span := f.Result()
	text := span.Text()
	c := &Citation{
		Ordinal:      len(r.Citations) + 1,
		FieldOrdinal: fieldOrdinal,
		Field:        f,
		Span:         span,
		Text:         text,
	}

	if opts.Numbered {
		c.Style = StyleNumbered
		ordinals, err := cite.ParseNumericList(text)
		if err != nil {
			r.skip(fieldOrdinal, "numbered citation text is unparsable", err)
			return
		}
		c.Ordinals = ordinals
		c.NumTokens = cite.NumericTokens(text)
		r.Citations = append(r.Citations, c)
		return
	}

	c.Style = StyleAuthorYear
	c.Subs = cite.ParseRenderedCluster(text)

	data, err := cite.ParseCitationField(f.Instruction())
	if err != nil {
		if len(c.Subs) == 0 {
			r.skip(fieldOrdinal, "citation payload and rendered text are both unparsable", err)
			return
		}
		logging.Warn("citation payload unreadable, using rendered text",
			"field", fieldOrdinal, "error", err)
		for _, sub := range c.Subs {
			c.Refs = append(c.Refs, Ref{
				Surname: leadSurname(sub.AuthorsText),
				Year:    sub.Year,
			})
		}
		r.Citations = append(r.Citations, c)
		return
	}

	for i, item := range data.CitationItems {
		ref := Ref{Key: item.Key()}
		if item.ItemData != nil {
			ref.Item = item.ItemData
			ref.Surname = item.ItemData.FirstAuthorSurname()
			ref.Year = item.ItemData.IssuedYear()
		}
		if (ref.Surname == "" || ref.Year == "") && ref.Key != "" && opts.Metadata != nil {
			if it, lerr := opts.Metadata.ResolveItem(ctx, ref.Key); lerr != nil {
				logging.Warn("metadata lookup failed",
					"field", fieldOrdinal, "item_key", ref.Key, "error", lerr)
			} else if it != nil {
				if ref.Item == nil {
					ref.Item = it
				}
				if ref.Surname == "" {
					ref.Surname = it.FirstAuthorSurname()
				}
				if ref.Year == "" {
					ref.Year = it.IssuedYear()
				}
			}
		}
		if (ref.Surname == "" || ref.Year == "") && i < len(c.Subs) {
			if ref.Surname == "" {
				ref.Surname = leadSurname(c.Subs[i].AuthorsText)
			}
			if ref.Year == "" {
				ref.Year = c.Subs[i].Year
			}
		}
		c.Refs = append(c.Refs, ref)
	}

	if len(c.Refs) == 0 && len(c.Subs) == 0 {
		r.skip(fieldOrdinal, "citation carries no resolvable identities", nil)
		return
	}
	r.Citations = append(r.Citations, c)
}

func (r *Result) skip(fieldOrdinal int, detail string, err error) {
	mf := cerrors.NewMalformedField(fieldOrdinal, detail, err)
	r.Skipped = append(r.Skipped, mf)
	logging.FieldSkipped(fieldOrdinal, detail)
}

// leadSurname extracts the surname from rendered author text: everything
// up to the first connective or separator.
func leadSurname(authors string) string {
	authors = strings.TrimSpace(authors)
	for _, sep := range []string{",", " & ", " and ", " et al", "；", ";"} {
		if i := strings.Index(authors, sep); i >= 0 {
			authors = authors[:i]
		}
	}
	return strings.TrimSpace(authors)
}
