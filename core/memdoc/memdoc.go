// Package memdoc provides an in-memory document accessor. It renders the
// same paragraph/field/span surface as the OOXML backend without touching
// disk, which makes it the fixture of choice for pipeline and hook tests
// and for callers that assemble documents programmatically.
package memdoc

import (
	"fmt"
	"os"
	"strings"

	"github.com/citekit/citelink/core/document"
	cerrors "github.com/citekit/citelink/core/errors"
)

// run is a stretch of uniformly styled text.
type run struct {
	text      []rune
	italic    bool
	bold      bool
	underline bool
	color     int    // platform color value, -1 when unset
	link      string // anchor target when inside a navigation reference
}

func newRun(text string) *run {
	return &run{text: []rune(text), color: -1}
}

func (r *run) clone() *run {
	c := *r
	c.text = append([]rune(nil), r.text...)
	return &c
}

// anchorMark is a named anchor attached to a paragraph. A hi of -1 marks
// an anchor covering the whole paragraph regardless of later edits.
type anchorMark struct {
	name   string
	lo, hi int
}

// paragraph is one block of document text.
type paragraph struct {
	runs    []*run
	anchors []anchorMark
}

func (p *paragraph) text() string {
	var b strings.Builder
	for _, r := range p.runs {
		b.WriteString(string(r.text))
	}
	return b.String()
}

func (p *paragraph) length() int {
	n := 0
	for _, r := range p.runs {
		n += len(r.text)
	}
	return n
}

// splitAt ensures a run boundary exists at rune offset off.
func (p *paragraph) splitAt(off int) {
	pos := 0
	for i, r := range p.runs {
		end := pos + len(r.text)
		if off == pos || off == end {
			return
		}
		if off > pos && off < end {
			left := r.clone()
			left.text = left.text[:off-pos]
			right := r.clone()
			right.text = right.text[off-pos:]
			runs := make([]*run, 0, len(p.runs)+1)
			runs = append(runs, p.runs[:i]...)
			runs = append(runs, left, right)
			runs = append(runs, p.runs[i+1:]...)
			p.runs = runs
			return
		}
		pos = end
	}
}

// runRange returns the run indexes covering [lo, hi), splitting boundary
// runs first so the range is run-aligned.
func (p *paragraph) runRange(lo, hi int) (int, int) {
	p.splitAt(lo)
	p.splitAt(hi)
	first, last := -1, -1
	pos := 0
	for i, r := range p.runs {
		end := pos + len(r.text)
		if first == -1 && pos >= lo && end <= hi && end > pos {
			first = i
		}
		if pos >= lo && end <= hi && end > pos {
			last = i
		}
		pos = end
	}
	return first, last
}

// field is a dynamic region: an instruction plus its rendered result.
type field struct {
	instruction string
	kind        document.FieldKind
	result      *span
	para        *paragraph
}

func (f *field) Kind() document.FieldKind { return f.kind }
func (f *field) Instruction() string      { return f.instruction }
func (f *field) Result() document.Span    { return f.result }

// Document is an in-memory document. The zero value is not usable; call
// New.
type Document struct {
	paras  []*paragraph
	fields []*field
}

// New creates an empty in-memory document.
func New() *Document {
	return &Document{}
}

// Segment is one piece of a paragraph under construction: plain text, or
// a field when Instruction is set (Text is then the rendered result).
type Segment struct {
	Text        string
	Instruction string
}

// Text returns a plain text segment.
func Text(s string) Segment {
	return Segment{Text: s}
}

// Field returns a field segment with the given instruction and rendered
// result text.
func Field(instruction, result string) Segment {
	return Segment{Text: result, Instruction: instruction}
}

// AddParagraph appends a body paragraph assembled from segments.
func (d *Document) AddParagraph(segs ...Segment) {
	p := &paragraph{}
	pos := 0
	var pending []*field
	for _, seg := range segs {
		if seg.Text != "" || seg.Instruction != "" {
			r := newRun(seg.Text)
			p.runs = append(p.runs, r)
		}
		n := len([]rune(seg.Text))
		if seg.Instruction != "" {
			f := &field{
				instruction: seg.Instruction,
				kind:        document.DetectFieldKind(seg.Instruction),
				para:        p,
			}
			f.result = &span{doc: d, ranged: true, para: p, lo: pos, hi: pos + n}
			pending = append(pending, f)
		}
		pos += n
	}
	d.paras = append(d.paras, p)
	d.fields = append(d.fields, pending...)
}

// AddBibliography appends a bibliography field whose result covers one
// paragraph per entry.
func (d *Document) AddBibliography(instruction string, entries ...string) {
	var paras []*paragraph
	for _, e := range entries {
		p := &paragraph{runs: []*run{newRun(e)}}
		paras = append(paras, p)
		d.paras = append(d.paras, p)
	}
	f := &field{
		instruction: instruction,
		kind:        document.DetectFieldKind(instruction),
		result:      &span{doc: d, paras: paras},
	}
	if len(paras) > 0 {
		f.para = paras[0]
	}
	d.fields = append(d.fields, f)
}

// ForEachParagraph walks paragraphs in document order.
func (d *Document) ForEachParagraph(fn func(p document.Paragraph) error) error {
	for _, p := range d.paras {
		if err := fn(&paragraphHandle{doc: d, p: p}); err != nil {
			return err
		}
	}
	return nil
}

// FieldsIn returns the fields whose instruction starts in p.
func (d *Document) FieldsIn(p document.Paragraph) ([]document.Field, error) {
	h, ok := p.(*paragraphHandle)
	if !ok || h.doc != d {
		return nil, fmt.Errorf("memdoc: foreign paragraph handle: %w", cerrors.ErrInvalidInput)
	}
	var out []document.Field
	for _, f := range d.fields {
		if f.para == h.p {
			out = append(out, f)
		}
	}
	return out, nil
}

// Save writes the document as plain text, one line per paragraph.
func (d *Document) Save(path string) error {
	var b strings.Builder
	for _, p := range d.paras {
		b.WriteString(p.text())
		b.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return cerrors.NewAccessor("save", path, err)
	}
	return nil
}

// ParagraphCount returns the number of body paragraphs.
func (d *Document) ParagraphCount() int { return len(d.paras) }

// ParagraphText returns the text of the i-th paragraph.
func (d *Document) ParagraphText(i int) string {
	if i < 0 || i >= len(d.paras) {
		return ""
	}
	return d.paras[i].text()
}

// RunInfo is a snapshot of one run, for assertions on formatting.
type RunInfo struct {
	Text      string
	Italic    bool
	Bold      bool
	Underline bool
	Color     int
	Link      string
}

// Runs returns snapshots of the runs in the i-th paragraph.
func (d *Document) Runs(i int) []RunInfo {
	if i < 0 || i >= len(d.paras) {
		return nil
	}
	out := make([]RunInfo, 0, len(d.paras[i].runs))
	for _, r := range d.paras[i].runs {
		out = append(out, RunInfo{
			Text:      string(r.text),
			Italic:    r.italic,
			Bold:      r.bold,
			Underline: r.underline,
			Color:     r.color,
			Link:      r.link,
		})
	}
	return out
}

// AnchorsAt returns the anchor names attached to the i-th paragraph.
func (d *Document) AnchorsAt(i int) []string {
	if i < 0 || i >= len(d.paras) {
		return nil
	}
	var names []string
	for _, m := range d.paras[i].anchors {
		names = append(names, m.name)
	}
	return names
}

// paragraphHandle adapts a paragraph to document.Paragraph.
type paragraphHandle struct {
	doc *Document
	p   *paragraph
}

func (h *paragraphHandle) Text() string { return h.p.text() }

func (h *paragraphHandle) Span() document.Span {
	return &span{doc: h.doc, paras: []*paragraph{h.p}}
}

// span covers either whole paragraphs (paras set) or a rune range within
// one paragraph (ranged set). Whole-paragraph extents are dynamic: they
// follow the paragraph through later edits.
type span struct {
	doc    *Document
	paras  []*paragraph
	ranged bool
	para   *paragraph
	lo, hi int
}

func (s *span) Text() string {
	if s.ranged {
		runes := []rune(s.para.text())
		lo, hi := clamp(s.lo, 0, len(runes)), clamp(s.hi, 0, len(runes))
		if lo > hi {
			return ""
		}
		return string(runes[lo:hi])
	}
	texts := make([]string, 0, len(s.paras))
	for _, p := range s.paras {
		texts = append(texts, p.text())
	}
	return strings.Join(texts, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// extent returns the span's paragraph and rune range, which for
// whole-paragraph spans is the paragraph's current full extent. Errors
// when the span covers more than one paragraph.
func (s *span) extent() (*paragraph, int, int, error) {
	if s.ranged {
		return s.para, s.lo, s.hi, nil
	}
	if len(s.paras) != 1 {
		return nil, 0, 0, fmt.Errorf("memdoc: operation needs a single-paragraph span: %w", cerrors.ErrUnsupported)
	}
	return s.paras[0], 0, s.paras[0].length(), nil
}

func (s *span) Slice(lo, hi int) (document.Span, error) {
	if lo < 0 || hi < lo {
		return nil, fmt.Errorf("memdoc: invalid slice range [%d, %d): %w", lo, hi, cerrors.ErrInvalidInput)
	}
	if s.ranged {
		if hi > s.hi-s.lo {
			return nil, fmt.Errorf("memdoc: slice range [%d, %d) exceeds span length %d: %w", lo, hi, s.hi-s.lo, cerrors.ErrInvalidInput)
		}
		return &span{doc: s.doc, ranged: true, para: s.para, lo: s.lo + lo, hi: s.lo + hi}, nil
	}
	// Resolve the offset against per-paragraph extents, counting the
	// "\n" separators Text inserts between paragraphs.
	pos := 0
	for _, p := range s.paras {
		n := p.length()
		if lo >= pos && hi <= pos+n {
			return &span{doc: s.doc, ranged: true, para: p, lo: lo - pos, hi: hi - pos}, nil
		}
		pos += n + 1
	}
	return nil, fmt.Errorf("memdoc: slice range [%d, %d) crosses a paragraph boundary: %w", lo, hi, cerrors.ErrUnsupported)
}

func (s *span) Paragraphs() ([]document.Span, error) {
	if s.ranged {
		if strings.TrimSpace(s.Text()) == "" {
			return nil, nil
		}
		return []document.Span{s}, nil
	}
	var out []document.Span
	for _, p := range s.paras {
		if strings.TrimSpace(p.text()) == "" {
			continue
		}
		out = append(out, &span{doc: s.doc, paras: []*paragraph{p}})
	}
	return out, nil
}

func (s *span) Italic() bool {
	p, lo, hi, err := s.extent()
	if err != nil || hi <= lo {
		return false
	}
	pos := 0
	seen := false
	for _, r := range p.runs {
		end := pos + len(r.text)
		if end > lo && pos < hi && len(r.text) > 0 {
			seen = true
			if !r.italic {
				return false
			}
		}
		pos = end
	}
	return seen
}

func (s *span) Anchors() []string {
	var names []string
	collect := func(p *paragraph, lo, hi int) {
		for _, m := range p.anchors {
			mhi := m.hi
			if mhi == -1 {
				mhi = p.length()
			}
			if m.lo < hi && mhi > lo {
				names = append(names, m.name)
			}
		}
	}
	if s.ranged {
		collect(s.para, s.lo, s.hi)
		return names
	}
	for _, p := range s.paras {
		collect(p, 0, p.length())
	}
	return names
}

func (s *span) AddAnchor(name string) error {
	if name == "" {
		return fmt.Errorf("memdoc: empty anchor name: %w", cerrors.ErrInvalidInput)
	}
	if s.ranged {
		s.para.anchors = append(s.para.anchors, anchorMark{name: name, lo: s.lo, hi: s.hi})
		return nil
	}
	if len(s.paras) == 0 {
		return fmt.Errorf("memdoc: anchor on empty span: %w", cerrors.ErrInvalidInput)
	}
	s.paras[0].anchors = append(s.paras[0].anchors, anchorMark{name: name, lo: 0, hi: -1})
	return nil
}

func (s *span) RemoveAnchor(name string) error {
	remove := func(p *paragraph) {
		kept := p.anchors[:0]
		for _, m := range p.anchors {
			if m.name != name {
				kept = append(kept, m)
			}
		}
		p.anchors = kept
	}
	if s.ranged {
		remove(s.para)
		return nil
	}
	for _, p := range s.paras {
		remove(p)
	}
	return nil
}

func (s *span) AddNavigationReferenceTo(anchorName string) error {
	if anchorName == "" {
		return fmt.Errorf("memdoc: empty anchor target: %w", cerrors.ErrInvalidInput)
	}
	p, lo, hi, err := s.extent()
	if err != nil {
		return err
	}
	first, last := p.runRange(lo, hi)
	if first == -1 {
		return nil
	}
	for i := first; i <= last; i++ {
		p.runs[i].link = anchorName
	}
	return nil
}

func (s *span) ReplaceWith(text string, style document.StyleFlags) error {
	p, lo, hi, err := s.extent()
	if err != nil {
		return err
	}
	first, last := p.runRange(lo, hi)
	if first == -1 {
		return fmt.Errorf("memdoc: replace target [%d, %d) is empty: %w", lo, hi, cerrors.ErrInvalidInput)
	}
	repl := p.runs[first].clone()
	repl.text = []rune(text)
	applyFlags(repl, style)
	runs := make([]*run, 0, len(p.runs))
	runs = append(runs, p.runs[:first]...)
	runs = append(runs, repl)
	runs = append(runs, p.runs[last+1:]...)
	p.runs = runs
	return nil
}

func (s *span) ApplyStyle(style document.StyleFlags) error {
	if style.IsZero() {
		return nil
	}
	p, lo, hi, err := s.extent()
	if err != nil {
		return err
	}
	first, last := p.runRange(lo, hi)
	if first == -1 {
		return nil
	}
	for i := first; i <= last; i++ {
		applyFlags(p.runs[i], style)
	}
	return nil
}

func applyFlags(r *run, f document.StyleFlags) {
	if f.Italic != nil {
		r.italic = *f.Italic
	}
	if f.Bold != nil {
		r.bold = *f.Bold
	}
	if f.Underline != nil {
		r.underline = *f.Underline
	}
	if f.Color != nil {
		r.color = *f.Color
	}
}
