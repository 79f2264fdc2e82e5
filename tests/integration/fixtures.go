// Package integration exercises the full linking pipeline end to end,
// against both the in-memory accessor and the OOXML package backend.
package integration

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/citekit/citelink/core/docx"
	"github.com/citekit/citelink/core/encoding"
	"github.com/citekit/citelink/core/memdoc"
)

const biblInstruction = ` ADDIN ZOTERO_BIBL {"uncited":[]} CSL_BIBLIOGRAPHY `

// Citation field instructions carrying the CSL payload Zotero embeds.

const smithInstruction = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"uris":["http://zotero.org/users/1/items/KEY00001"],"itemData":{"title":"A unet model","container-title":"Journal of Climate","language":"en","author":[{"family":"Smith","given":"J."}],"issued":{"date-parts":[[2020]]}}}]} `

const leeInstruction = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"uris":["http://zotero.org/users/1/items/KEY00002"],"itemData":{"title":"Refining convergence bounds","container-title":"Annals of Computing","language":"en","author":[{"family":"Lee","given":"K."},{"family":"Wu","given":"M."}],"issued":{"date-parts":[[2021]]}}}]} `

// keyOnlyInstruction has no embedded itemData; identity needs the metadata
// resolver or the rendered text.
const keyOnlyInstruction = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"uris":["http://zotero.org/users/12345/items/KEY00003"]}]} `

const crossRefInstruction = ` REF _Ref123456789 \h `

const smithEntry = "Smith, J. (2020). A unet model. Journal of Climate, 12(3), 45-67."
const leeEntry = "Lee, K., & Wu, M. (2021). Refining convergence bounds. Annals of Computing, 8(2), 11-19."
const chenEntry = "Chen, L. (2019). Deep spatial priors. Pattern Recognition, 52, 77-89."

// newManuscript builds the shared two-citation fixture: the bibliography
// lists Lee first, so citation order and entry order disagree on purpose.
func newManuscript() *memdoc.Document {
	d := memdoc.New()
	d.AddParagraph(
		memdoc.Text("As shown in "),
		memdoc.Field(smithInstruction, "(Smith, 2020)"),
		memdoc.Text(" the model converges."),
	)
	d.AddParagraph(
		memdoc.Text("Later work "),
		memdoc.Field(leeInstruction, "(Lee & Wu, 2021)"),
		memdoc.Text(" refined the bounds."),
	)
	d.AddBibliography(biblInstruction, leeEntry, smithEntry)
	return d
}

// OOXML plumbing for the package-backend fixtures.

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

func ooxmlRun(text string) string {
	return `<w:r><w:t xml:space="preserve">` + encoding.EscapeXMLText(text) + `</w:t></w:r>`
}

// ooxmlField renders a complex field: begin, instruction, separate, result,
// end, all within one paragraph.
func ooxmlField(instr, result string) string {
	return `<w:r><w:fldChar w:fldCharType="begin"/></w:r>` +
		`<w:r><w:instrText xml:space="preserve">` + encoding.EscapeXMLText(instr) + `</w:instrText></w:r>` +
		`<w:r><w:fldChar w:fldCharType="separate"/></w:r>` +
		ooxmlRun(result) +
		`<w:r><w:fldChar w:fldCharType="end"/></w:r>`
}

// ooxmlBibliography renders a bibliography field spanning one paragraph per
// entry.
func ooxmlBibliography(entries ...string) string {
	var b bytes.Buffer
	for i, e := range entries {
		b.WriteString("<w:p>")
		if i == 0 {
			b.WriteString(`<w:r><w:fldChar w:fldCharType="begin"/></w:r>`)
			b.WriteString(`<w:r><w:instrText xml:space="preserve">` + encoding.EscapeXMLText(biblInstruction) + `</w:instrText></w:r>`)
			b.WriteString(`<w:r><w:fldChar w:fldCharType="separate"/></w:r>`)
		}
		b.WriteString(ooxmlRun(e))
		if i == len(entries)-1 {
			b.WriteString(`<w:r><w:fldChar w:fldCharType="end"/></w:r>`)
		}
		b.WriteString("</w:p>")
	}
	return b.String()
}

// buildPackage zips a word-processing package around the given body markup.
func buildPackage(t *testing.T, body string) []byte {
	t.Helper()
	documentXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, data string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", p.name, err)
		}
		if _, err := w.Write([]byte(p.data)); err != nil {
			t.Fatalf("zip write %s: %v", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// newPackageManuscript is the OOXML twin of newManuscript.
func newPackageManuscript(t *testing.T) *docx.Document {
	t.Helper()
	body := `<w:p>` + ooxmlRun("As shown in ") + ooxmlField(smithInstruction, "(Smith, 2020)") + ooxmlRun(" the model converges.") + `</w:p>` +
		`<w:p>` + ooxmlRun("Later work ") + ooxmlField(leeInstruction, "(Lee & Wu, 2021)") + ooxmlRun(" refined the bounds.") + `</w:p>` +
		ooxmlBibliography(leeEntry, smithEntry)
	d, err := docx.Parse(buildPackage(t, body))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return d
}

// findRun returns the first run in paragraph i whose text equals want.
func findRun(t *testing.T, d *memdoc.Document, i int, want string) (memdoc.RunInfo, bool) {
	t.Helper()
	for _, r := range d.Runs(i) {
		if r.Text == want {
			return r, true
		}
	}
	return memdoc.RunInfo{}, false
}
