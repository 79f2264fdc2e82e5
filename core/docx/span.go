package docx

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/citekit/citelink/core/document"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/core/ooxml"
	"github.com/citekit/citelink/internal/validation"
)

// span covers either whole paragraphs (paras set) or a rune range within
// one paragraph (ranged set). Extents are in visible-text space: offsets
// count only what a reader sees, never instruction runs.
type span struct {
	doc    *Document
	paras  []*paragraph
	ranged bool
	para   *paragraph
	lo, hi int
}

func (s *span) Text() string {
	if s.ranged {
		runes := []rune(s.para.visibleText())
		lo, hi := clamp(s.lo, 0, len(runes)), clamp(s.hi, 0, len(runes))
		if lo > hi {
			return ""
		}
		return string(runes[lo:hi])
	}
	texts := make([]string, 0, len(s.paras))
	for _, p := range s.paras {
		texts = append(texts, p.visibleText())
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
		return nil, 0, 0, fmt.Errorf("docx: operation needs a single-paragraph span: %w", cerrors.ErrUnsupported)
	}
	return s.paras[0], 0, s.paras[0].length(), nil
}

func (s *span) Slice(lo, hi int) (document.Span, error) {
	if lo < 0 || hi < lo {
		return nil, fmt.Errorf("docx: invalid slice range [%d, %d): %w", lo, hi, cerrors.ErrInvalidInput)
	}
	if s.ranged {
		if hi > s.hi-s.lo {
			return nil, fmt.Errorf("docx: slice range [%d, %d) exceeds span length %d: %w", lo, hi, s.hi-s.lo, cerrors.ErrInvalidInput)
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
	return nil, fmt.Errorf("docx: slice range [%d, %d) crosses a paragraph boundary: %w", lo, hi, cerrors.ErrUnsupported)
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
		if strings.TrimSpace(p.visibleText()) == "" {
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
	lay := p.layout()
	seen := false
	for _, a := range lay.atoms {
		if a.hi > lo && a.lo < hi {
			seen = true
			if !runItalic(a.run) {
				return false
			}
		}
	}
	return seen
}

func runItalic(r *ooxml.Node) bool {
	rpr := r.Child("rPr")
	if rpr == nil {
		return false
	}
	i := rpr.Child("i")
	if i == nil {
		return false
	}
	switch i.Attr("w:val") {
	case "0", "false", "none":
		return false
	}
	return true
}

func (s *span) Anchors() []string {
	var names []string
	collect := func(p *paragraph, lo, hi int) {
		lay := p.layout()
		for _, m := range lay.marks {
			if m.end || m.name == "" {
				continue
			}
			mhi := lay.size
			for _, e := range lay.marks {
				if e.end && e.id == m.id {
					mhi = e.off
					break
				}
			}
			if m.off < hi && mhi > lo {
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
	if err := validation.ValidateAnchorName(name); err != nil {
		return fmt.Errorf("docx: anchor %q: %w", name, err)
	}

	id := s.doc.nextBookmarkID()
	start := ooxml.NewElement("w:bookmarkStart")
	start.SetAttr("w:id", id)
	start.SetAttr("w:name", name)
	end := ooxml.NewElement("w:bookmarkEnd")
	end.SetAttr("w:id", id)

	if s.ranged {
		p := s.para
		p.splitAt(s.lo)
		p.splitAt(s.hi)
		runs := p.coveredRuns(s.lo, s.hi)
		if len(runs) == 0 {
			p.node.AppendChild(start)
			p.node.AppendChild(end)
			return nil
		}
		topLevel(p, runs[0]).InsertBefore(start)
		topLevel(p, runs[len(runs)-1]).InsertAfter(end)
		return nil
	}

	if len(s.paras) == 0 {
		return fmt.Errorf("docx: anchor on empty span: %w", cerrors.ErrInvalidInput)
	}
	insertAtParagraphStart(s.paras[0].node, start)
	s.paras[len(s.paras)-1].node.AppendChild(end)
	return nil
}

// insertAtParagraphStart places n as the paragraph's first content child,
// keeping paragraph properties in front.
func insertAtParagraphStart(p *ooxml.Node, n *ooxml.Node) {
	children := p.Children()
	if len(children) == 0 {
		p.AppendChild(n)
		return
	}
	if children[0].Name() == "pPr" {
		children[0].InsertAfter(n)
		return
	}
	children[0].InsertBefore(n)
}

func (s *span) RemoveAnchor(name string) error {
	remove := func(p *paragraph) {
		lay := p.layout()
		for _, m := range lay.marks {
			if m.end || m.name != name {
				continue
			}
			// Bookmark ends are matched by id and may sit in a later
			// paragraph; ids we did not mint are only removed when
			// they are well formed.
			if _, err := fmt.Sscanf(m.id, "%d", new(int)); err == nil {
				ends, qerr := s.doc.part.XPath(fmt.Sprintf("//w:bookmarkEnd[@w:id='%s']", m.id))
				if qerr == nil {
					for _, e := range ends {
						e.Remove()
					}
				}
			}
			m.node.Remove()
		}
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
		return fmt.Errorf("docx: empty anchor target: %w", cerrors.ErrInvalidInput)
	}
	p, lo, hi, err := s.extent()
	if err != nil {
		return err
	}
	p.splitAt(lo)
	p.splitAt(hi)
	runs := p.coveredRuns(lo, hi)
	if len(runs) == 0 {
		return nil
	}

	// Reprocessed documents already carry a hyperlink around these runs;
	// retarget it instead of nesting another one.
	if parent := runs[0].Parent(); parent != nil && parent.Name() == "hyperlink" {
		parent.SetAttr("w:anchor", anchorName)
		return nil
	}

	link := ooxml.NewElement("w:hyperlink")
	link.SetAttr("w:anchor", anchorName)
	link.SetAttr("w:history", "1")
	runs[0].InsertBefore(link)
	for _, r := range runs {
		r.Remove()
		link.AppendChild(r)
	}
	return nil
}

func (s *span) ReplaceWith(text string, style document.StyleFlags) error {
	p, lo, hi, err := s.extent()
	if err != nil {
		return err
	}
	p.splitAt(lo)
	p.splitAt(hi)
	runs := p.coveredRuns(lo, hi)
	if len(runs) == 0 {
		return fmt.Errorf("docx: replace target [%d, %d) is empty: %w", lo, hi, cerrors.ErrInvalidInput)
	}

	repl := runs[0].Clone()
	for _, c := range repl.Children() {
		if c.Name() != "rPr" {
			c.Remove()
		}
	}
	t := ooxml.NewElement("w:t")
	setText(t, text)
	repl.AppendChild(t)
	applyRunStyle(repl, style)

	runs[0].InsertBefore(repl)
	for _, r := range runs {
		r.Remove()
	}
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
	p.splitAt(lo)
	p.splitAt(hi)
	for _, r := range p.coveredRuns(lo, hi) {
		applyRunStyle(r, style)
	}
	return nil
}

// splitAt ensures a run boundary exists at visible offset off.
func (p *paragraph) splitAt(off int) {
	lay := p.layout()
	for _, a := range lay.atoms {
		if off <= a.lo || off >= a.hi {
			continue
		}
		if a.t == nil {
			return // tab atom, one rune, no interior
		}
		p.splitRun(a, off-a.lo)
		return
	}
}

// splitRun splits atom a's run so a boundary exists k runes into its
// text node. Both halves keep a copy of the run properties.
func (p *paragraph) splitRun(a atom, k int) {
	runes := []rune(a.text)
	left, right := string(runes[:k]), string(runes[k:])

	children := a.run.Children()
	idx := -1
	for i, c := range children {
		if c.Same(a.t) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	clone := a.run.Clone()
	cloneChildren := clone.Children()

	setText(a.t, left)
	for _, c := range children[idx+1:] {
		c.Remove()
	}

	for i, c := range cloneChildren {
		if i < idx && c.Name() != "rPr" {
			c.Remove()
			continue
		}
		if i == idx {
			setText(c, right)
		}
	}
	a.run.InsertAfter(clone)
}

// coveredRuns returns the distinct runs whose atoms lie fully inside
// [lo, hi), in document order. Call splitAt on both bounds first.
func (p *paragraph) coveredRuns(lo, hi int) []*ooxml.Node {
	lay := p.layout()
	var runs []*ooxml.Node
	for _, a := range lay.atoms {
		if a.lo >= lo && a.hi <= hi && a.hi > a.lo {
			if len(runs) == 0 || !runs[len(runs)-1].Same(a.run) {
				runs = append(runs, a.run)
			}
		}
	}
	return runs
}

// topLevel climbs from n to its ancestor that is a direct child of the
// paragraph, so bookmark marks land between paragraph children even when
// runs sit inside a hyperlink.
func topLevel(p *paragraph, n *ooxml.Node) *ooxml.Node {
	cur := n
	for {
		parent := cur.Parent()
		if parent == nil || parent.Same(p.node) {
			return cur
		}
		cur = parent
	}
}

// setText rewrites a w:t node. Every text we write is space-preserved so
// boundary whitespace from run splits survives a host round trip.
func setText(t *ooxml.Node, text string) {
	t.SetText(text)
	t.SetAttr("xml:space", "preserve")
}

func applyRunStyle(r *ooxml.Node, style document.StyleFlags) {
	if style.IsZero() {
		return
	}
	rpr := ensureRunProps(r)
	if style.Italic != nil {
		setToggleProp(rpr, "w:i", *style.Italic)
	}
	if style.Bold != nil {
		setToggleProp(rpr, "w:b", *style.Bold)
	}
	if style.Underline != nil {
		val := "single"
		if !*style.Underline {
			val = "none"
		}
		setValProp(rpr, "w:u", val)
	}
	if style.Color != nil {
		setValProp(rpr, "w:color", colorHex(*style.Color))
	}
}

func ensureRunProps(r *ooxml.Node) *ooxml.Node {
	if rpr := r.Child("rPr"); rpr != nil {
		return rpr
	}
	rpr := ooxml.NewElement("w:rPr")
	children := r.Children()
	if len(children) > 0 {
		children[0].InsertBefore(rpr)
	} else {
		r.AppendChild(rpr)
	}
	return rpr
}

// setToggleProp sets an on/off run property such as w:i or w:b. An "on"
// toggle is the bare element; "off" is written explicitly so it beats
// any inherited style.
func setToggleProp(rpr *ooxml.Node, name string, on bool) {
	_, local := splitPropName(name)
	el := rpr.Child(local)
	if el == nil {
		el = ooxml.NewElement(name)
		rpr.AppendChild(el)
	}
	if on {
		el.RemoveAttr("w:val")
	} else {
		el.SetAttr("w:val", "0")
	}
}

func setValProp(rpr *ooxml.Node, name, val string) {
	_, local := splitPropName(name)
	el := rpr.Child(local)
	if el == nil {
		el = ooxml.NewElement(name)
		rpr.AppendChild(el)
	}
	el.SetAttr("w:val", val)
}

func splitPropName(name string) (prefix, local string) {
	if i := strings.Index(name, ":"); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// colorHex converts a platform color value (BGR byte order, the encoding
// word-processor automation uses) to the RRGGBB hex form run properties
// expect.
func colorHex(v int) string {
	r := v & 0xFF
	g := (v >> 8) & 0xFF
	b := (v >> 16) & 0xFF
	return fmt.Sprintf("%02X%02X%02X", r, g, b)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
