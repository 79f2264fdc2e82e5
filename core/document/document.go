// Package document defines the contract between the linking pipeline and
// concrete document backends. The pipeline never touches a file format
// directly: it walks paragraphs, inspects fields, and mutates text spans
// through the Accessor interface, so the same scan/resolve/rewrite logic
// runs against OOXML files and in-memory fixtures alike.
package document

import "strings"

// FieldKind classifies a dynamic field by its instruction text.
type FieldKind int

const (
	// KindUnknown marks fields the pipeline does not process.
	KindUnknown FieldKind = iota
	// KindCitation is an inline citation field carrying embedded CSL data.
	KindCitation
	// KindBibliography is the generated bibliography field.
	KindBibliography
	// KindCrossRef is an internal cross-reference field.
	KindCrossRef
)

// String returns a human-readable name for the field kind.
func (k FieldKind) String() string {
	switch k {
	case KindCitation:
		return "citation"
	case KindBibliography:
		return "bibliography"
	case KindCrossRef:
		return "crossref"
	default:
		return "unknown"
	}
}

// fieldMarkers maps instruction substrings to field kinds. Detection is
// substring-based because reference managers pad instructions with flags
// and whitespace that vary between versions. First match wins.
var fieldMarkers = []struct {
	kind   FieldKind
	marker string
}{
	{KindCitation, "ADDIN ZOTERO_ITEM CSL_CITATION"},
	{KindBibliography, "ADDIN ZOTERO_BIBL"},
	{KindCrossRef, "REF _Ref"},
}

// DetectFieldKind classifies a field instruction. Instructions that match
// none of the known markers return KindUnknown and are left untouched.
func DetectFieldKind(instruction string) FieldKind {
	for _, m := range fieldMarkers {
		if strings.Contains(instruction, m.marker) {
			return m.kind
		}
	}
	return KindUnknown
}

// StyleFlags describes character formatting to apply to a span. Nil fields
// are left unchanged, so a zero StyleFlags is a no-op.
type StyleFlags struct {
	Italic    *bool
	Bold      *bool
	Underline *bool
	// Color is a platform color value (the decimal RGB encoding used by
	// word processors, e.g. 16711680).
	Color *int
}

// IsZero reports whether the flags request no formatting change.
func (s StyleFlags) IsZero() bool {
	return s.Italic == nil && s.Bold == nil && s.Underline == nil && s.Color == nil
}

// Flag returns a pointer to v, for building StyleFlags literals inline.
func Flag[T any](v T) *T { return &v }

// Span is a contiguous run of document text. Offsets are rune-based and
// relative to the span itself. A span that covers several paragraphs joins
// their text with a single "\n" in Text, and Slice offsets count those
// separators.
//
// Mutating methods change the live document; they never change the visible
// text except ReplaceWith, which substitutes it wholesale.
type Span interface {
	// Text returns the current visible text of the span.
	Text() string
	// Slice returns the sub-span covering the rune range [lo, hi).
	Slice(lo, hi int) (Span, error)
	// Paragraphs splits the span at paragraph boundaries and returns one
	// sub-span per non-empty paragraph.
	Paragraphs() ([]Span, error)
	// Italic reports whether every styled run in the span is italic.
	Italic() bool
	// Anchors lists the names of anchors attached to the span, in
	// document order.
	Anchors() []string
	// AddAnchor attaches a named anchor covering the span.
	AddAnchor(name string) error
	// RemoveAnchor detaches the named anchor from the span. Removing an
	// anchor that is not present is not an error.
	RemoveAnchor(name string) error
	// AddNavigationReferenceTo wraps the span in an internal link that
	// jumps to the named anchor. The visible text is preserved exactly.
	AddNavigationReferenceTo(anchorName string) error
	// ReplaceWith substitutes the span's text and applies style.
	ReplaceWith(text string, style StyleFlags) error
	// ApplyStyle applies character formatting to the span.
	ApplyStyle(style StyleFlags) error
}

// Field is a dynamic region with an instruction and a rendered result.
type Field interface {
	// Kind classifies the field by its instruction.
	Kind() FieldKind
	// Instruction returns the raw field instruction text.
	Instruction() string
	// Result returns the span covering the field's rendered result. The
	// result of a bibliography field spans many paragraphs.
	Result() Span
}

// Paragraph is one block of the document body.
type Paragraph interface {
	// Text returns the paragraph's visible text.
	Text() string
	// Span returns a span covering the whole paragraph.
	Span() Span
}

// Accessor is the backend surface the pipeline runs against. Accessor
// failures are not recoverable: implementations return errors only for
// conditions that must abort the run.
type Accessor interface {
	// ForEachParagraph walks body paragraphs in document order. Returning
	// a non-nil error from fn stops the walk and propagates the error.
	ForEachParagraph(fn func(p Paragraph) error) error
	// FieldsIn returns the fields whose instruction starts in p, in
	// document order.
	FieldsIn(p Paragraph) ([]Field, error)
	// Save writes the document to path.
	Save(path string) error
}
