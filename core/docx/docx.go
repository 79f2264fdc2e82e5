// Package docx implements the document accessor over Office Open XML
// word-processing packages: a ZIP container whose main story lives in
// word/document.xml.
//
// Citation and bibliography fields arrive as complex fields (a w:fldChar
// begin run, instruction runs, a separate run, result runs, and an end
// run, possibly spread over many paragraphs) or as w:fldSimple elements.
// The package tracks which runs belong to instruction parts so that span
// text and offsets cover only what a reader sees, and performs all
// mutation by run surgery: splitting runs at rune offsets, wrapping runs
// in w:hyperlink elements, placing w:bookmarkStart/w:bookmarkEnd pairs,
// and editing run properties.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/citekit/citelink/core/document"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/core/ooxml"
	"github.com/citekit/citelink/internal/logging"
	"github.com/citekit/citelink/internal/validation"
)

// documentPart is the ZIP entry holding the main story.
const documentPart = "word/document.xml"

// entry is one ZIP member, kept in archive order so Save can rebuild the
// package without disturbing parts we do not touch.
type entry struct {
	name string
	data []byte
}

// Document is an open .docx package. It implements document.Accessor.
// A Document is a single exclusive handle: all mutation goes through it
// and nothing else may edit the package while it is open.
type Document struct {
	path       string
	entries    []entry
	part       *ooxml.Document
	paras      []*paragraph
	fields     []*fieldInfo
	bookmarkID int
}

// Open reads a .docx package from disk.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.NewAccessor("open", path, err)
	}
	if _, err := validation.ValidateFileType(bytes.NewReader(data), path); err != nil {
		return nil, cerrors.NewAccessor("open", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, cerrors.NewAccessor("open", path, err)
	}
	d.path = path
	return d, nil
}

// Parse opens a .docx package from memory.
func Parse(data []byte) (*Document, error) {
	if len(data) > validation.MaxDocumentSize {
		return nil, fmt.Errorf("package is %d bytes, limit %d: %w",
			len(data), validation.MaxDocumentSize, cerrors.ErrInvalidInput)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a word-processing package: %w", err)
	}

	d := &Document{}
	var partData []byte
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		d.entries = append(d.entries, entry{name: f.Name, data: content})
		if f.Name == documentPart {
			partData = content
		}
	}
	if partData == nil {
		return nil, fmt.Errorf("package has no %s: %w", documentPart, cerrors.ErrInvalidInput)
	}

	part, err := ooxml.Parse(partData)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", documentPart, err)
	}
	d.part = part

	if err := d.index(); err != nil {
		return nil, err
	}
	logging.Debug("docx package opened",
		"paragraphs", len(d.paras), "fields", len(d.fields))
	return d, nil
}

// Save writes the package to path, replacing the main story with the
// current tree and copying every other part through unchanged.
func (d *Document) Save(path string) error {
	part := d.part.Serialize()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range d.entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return cerrors.NewAccessor("save", path, err)
		}
		data := e.data
		if e.name == documentPart {
			data = part
		}
		if _, err := w.Write(data); err != nil {
			return cerrors.NewAccessor("save", path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cerrors.NewAccessor("save", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return cerrors.NewAccessor("save", path, err)
	}
	return nil
}

// Path returns the file the document was opened from, if any.
func (d *Document) Path() string { return d.path }

// PartXML returns the current serialized main story, for inspection.
func (d *Document) PartXML() []byte { return d.part.Serialize() }

// ForEachParagraph walks body paragraphs in document order.
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
		return nil, fmt.Errorf("docx: foreign paragraph handle: %w", cerrors.ErrInvalidInput)
	}
	var out []document.Field
	for _, f := range d.fields {
		if f.beginPara == h.p {
			out = append(out, f)
		}
	}
	return out, nil
}

// nextBookmarkID mints a w:id unused anywhere in the package.
func (d *Document) nextBookmarkID() string {
	d.bookmarkID++
	return strconv.Itoa(d.bookmarkID)
}

// paragraph wraps one w:p element. startStack snapshots the phase (true
// while between begin and separate) of every complex field still open
// when the paragraph starts; field structure never changes after load,
// so the snapshot stays valid across run surgery.
type paragraph struct {
	doc        *Document
	node       *ooxml.Node
	pos        int
	startStack []bool
}

// paragraphHandle adapts a paragraph to document.Paragraph.
type paragraphHandle struct {
	doc *Document
	p   *paragraph
}

func (h *paragraphHandle) Text() string { return h.p.visibleText() }

func (h *paragraphHandle) Span() document.Span {
	return &span{doc: h.doc, paras: []*paragraph{h.p}}
}

// fieldInfo is one discovered field. The result extent is stored as
// visible-text offsets captured at load; run surgery preserves visible
// text, and the only length-changing edits (entry rewrites) are issued
// at most once per paragraph, so the offsets stay coherent for the
// lifetime of a run.
type fieldInfo struct {
	doc         *Document
	kind        document.FieldKind
	instruction string
	beginPara   *paragraph
	startPara   *paragraph
	endPara     *paragraph
	startOff    int
	endOff      int
}

func (f *fieldInfo) Kind() document.FieldKind { return f.kind }
func (f *fieldInfo) Instruction() string      { return f.instruction }

func (f *fieldInfo) Result() document.Span {
	if f.startPara == nil {
		return &span{doc: f.doc}
	}
	if f.startPara == f.endPara || f.endPara == nil {
		hi := f.endOff
		if f.endPara == nil {
			hi = f.startPara.length()
		}
		return &span{doc: f.doc, ranged: true, para: f.startPara, lo: f.startOff, hi: hi}
	}
	var paras []*paragraph
	for i := f.startPara.pos; i <= f.endPara.pos; i++ {
		paras = append(paras, f.doc.paras[i])
	}
	return &span{doc: f.doc, paras: paras}
}

// pendingField tracks a complex field between its begin and end marks
// during indexing.
type pendingField struct {
	fi    *fieldInfo
	instr strings.Builder
	phase bool // true until the separate mark
}

// index walks the main story once, collecting paragraphs, fields, and
// the highest bookmark id in use.
func (d *Document) index() error {
	nodes, err := d.part.XPath("//w:p")
	if err != nil {
		return fmt.Errorf("locating paragraphs: %w", err)
	}

	var stack []*pendingField
	for i, n := range nodes {
		p := &paragraph{doc: d, node: n, pos: i}
		p.startStack = make([]bool, len(stack))
		for j, pf := range stack {
			p.startStack[j] = pf.phase
		}
		d.paras = append(d.paras, p)

		off := 0
		var walk func(children []*ooxml.Node)
		handleRun := func(r *ooxml.Node) {
			if fc := r.Child("fldChar"); fc != nil {
				switch fc.Attr("w:fldCharType") {
				case "begin":
					pf := &pendingField{phase: true}
					pf.fi = &fieldInfo{doc: d, beginPara: p}
					d.fields = append(d.fields, pf.fi)
					stack = append(stack, pf)
				case "separate":
					if len(stack) > 0 {
						pf := stack[len(stack)-1]
						if pf.phase {
							pf.phase = false
							pf.fi.startPara = p
							pf.fi.startOff = off
						}
					}
				case "end":
					if len(stack) > 0 {
						pf := stack[len(stack)-1]
						stack = stack[:len(stack)-1]
						pf.fi.instruction = pf.instr.String()
						pf.fi.kind = document.DetectFieldKind(pf.fi.instruction)
						if pf.phase {
							// No separate mark: the field has no result.
							pf.fi.startPara = nil
						} else {
							pf.fi.endPara = p
							pf.fi.endOff = off
						}
					}
				}
				return
			}
			if it := r.Child("instrText"); it != nil {
				if len(stack) > 0 && stack[len(stack)-1].phase {
					stack[len(stack)-1].instr.WriteString(it.Text())
				}
				return
			}
			if instructionDepth(stack) > 0 {
				return
			}
			off += runeLen(runText(r))
		}
		walk = func(children []*ooxml.Node) {
			for _, child := range children {
				switch child.Name() {
				case "r":
					handleRun(child)
				case "fldSimple":
					fi := &fieldInfo{
						doc:         d,
						instruction: child.Attr("w:instr"),
						beginPara:   p,
						startPara:   p,
						startOff:    off,
					}
					fi.kind = document.DetectFieldKind(fi.instruction)
					d.fields = append(d.fields, fi)
					walk(child.Children())
					fi.endPara = p
					fi.endOff = off
				case "hyperlink", "smartTag", "ins":
					walk(child.Children())
				case "bookmarkStart":
					if id, err := strconv.Atoi(child.Attr("w:id")); err == nil && id > d.bookmarkID {
						d.bookmarkID = id
					}
				}
			}
		}
		walk(n.Children())
	}

	// A begin without its end is a truncated story; close what remains
	// at the document's end so the field list stays usable.
	for _, pf := range stack {
		pf.fi.instruction = pf.instr.String()
		pf.fi.kind = document.DetectFieldKind(pf.fi.instruction)
		if pf.phase {
			pf.fi.startPara = nil
		} else if len(d.paras) > 0 {
			last := d.paras[len(d.paras)-1]
			pf.fi.endPara = last
			pf.fi.endOff = last.length()
		}
	}
	return nil
}

func instructionDepth(stack []*pendingField) int {
	n := 0
	for _, pf := range stack {
		if pf.phase {
			n++
		}
	}
	return n
}

// atom is one visible stretch of run text: a single w:t (or w:tab) with
// its rune extent in paragraph space.
type atom struct {
	run  *ooxml.Node // enclosing w:r
	t    *ooxml.Node // the w:t node, nil for tabs
	text string
	lo   int
	hi   int
}

// mark is a bookmark boundary with its visible offset.
type mark struct {
	node *ooxml.Node
	id   string
	name string
	off  int
	end  bool
}

// layout is the current visible structure of one paragraph.
type layout struct {
	atoms []atom
	marks []mark
	size  int
}

// layout recomputes the paragraph's visible atoms from the tree. Run
// surgery invalidates nothing: callers re-derive the layout after every
// structural edit.
func (p *paragraph) layout() layout {
	phases := append([]bool(nil), p.startStack...)
	instr := 0
	for _, inInstr := range phases {
		if inInstr {
			instr++
		}
	}

	var lay layout
	off := 0
	var walk func(children []*ooxml.Node)
	handleRun := func(r *ooxml.Node) {
		if fc := r.Child("fldChar"); fc != nil {
			switch fc.Attr("w:fldCharType") {
			case "begin":
				phases = append(phases, true)
				instr++
			case "separate":
				if n := len(phases); n > 0 && phases[n-1] {
					phases[n-1] = false
					instr--
				}
			case "end":
				if n := len(phases); n > 0 {
					if phases[n-1] {
						instr--
					}
					phases = phases[:n-1]
				}
			}
			return
		}
		if r.Child("instrText") != nil || instr > 0 {
			return
		}
		for _, c := range r.Children() {
			switch c.Name() {
			case "t":
				text := c.Text()
				if text == "" {
					continue
				}
				n := runeLen(text)
				lay.atoms = append(lay.atoms, atom{run: r, t: c, text: text, lo: off, hi: off + n})
				off += n
			case "tab":
				lay.atoms = append(lay.atoms, atom{run: r, text: "\t", lo: off, hi: off + 1})
				off++
			}
		}
	}
	walk = func(children []*ooxml.Node) {
		for _, child := range children {
			switch child.Name() {
			case "r":
				handleRun(child)
			case "hyperlink", "fldSimple", "smartTag", "ins":
				walk(child.Children())
			case "bookmarkStart":
				lay.marks = append(lay.marks, mark{
					node: child,
					id:   child.Attr("w:id"),
					name: child.Attr("w:name"),
					off:  off,
				})
			case "bookmarkEnd":
				lay.marks = append(lay.marks, mark{
					node: child,
					id:   child.Attr("w:id"),
					off:  off,
					end:  true,
				})
			}
		}
	}
	walk(p.node.Children())
	lay.size = off
	return lay
}

func (p *paragraph) visibleText() string {
	lay := p.layout()
	var b strings.Builder
	for _, a := range lay.atoms {
		b.WriteString(a.text)
	}
	return b.String()
}

func (p *paragraph) length() int {
	return p.layout().size
}

// runText returns the visible text of a run's own children.
func runText(r *ooxml.Node) string {
	var b strings.Builder
	for _, c := range r.Children() {
		switch c.Name() {
		case "t":
			b.WriteString(c.Text())
		case "tab":
			b.WriteString("\t")
		}
	}
	return b.String()
}
