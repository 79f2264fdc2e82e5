package integration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/citekit/citelink/core/document"
	"github.com/citekit/citelink/core/docx"
	"github.com/citekit/citelink/core/ooxml"
	"github.com/citekit/citelink/core/pipeline"
	"github.com/citekit/citelink/core/report"
	"github.com/citekit/citelink/core/scan"
)

func runPackagePipeline(t *testing.T, cfg *pipeline.Config, doc *docx.Document) *report.Report {
	t.Helper()
	rep := report.New("fixture.docx")
	if err := pipeline.New(cfg).Run(context.Background(), doc, rep); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return rep
}

func paragraphTexts(t *testing.T, doc *docx.Document) []string {
	t.Helper()
	var texts []string
	err := doc.ForEachParagraph(func(p document.Paragraph) error {
		texts = append(texts, p.Text())
		return nil
	})
	if err != nil {
		t.Fatalf("paragraph walk failed: %v", err)
	}
	return texts
}

func TestPackageLinking(t *testing.T) {
	doc := newPackageManuscript(t)

	cfg := pipeline.DefaultConfig()
	cfg.Color = 255
	cfg.DashCorrection = true
	rep := runPackagePipeline(t, cfg, doc)

	if rep.Entries != 2 || rep.Citations != 2 || rep.Linked != 2 {
		t.Fatalf("counters = %d entries, %d citations, %d linked; want 2, 2, 2",
			rep.Entries, rep.Citations, rep.Linked)
	}
	if rep.Status != report.StatusClean {
		t.Errorf("Status = %q, want %q", rep.Status, report.StatusClean)
	}

	part := string(doc.PartXML())
	for _, want := range []string{
		`<w:bookmarkStart`, `w:name="ref1"`, `w:name="ref2"`,
		`<w:hyperlink`, `w:anchor="ref1"`, `w:anchor="ref2"`,
		`<w:color w:val="FF0000"`,
		`<w:u w:val="none"`,
		`<w:i>`,
		"45–67", "11–19",
	} {
		if !strings.Contains(part, want) {
			t.Errorf("document part missing %q", want)
		}
	}

	if res := ooxml.Validate(doc.PartXML()); !res.Valid {
		t.Errorf("document part no longer well-formed: %+v", res.Errors)
	}
}

func TestPackageVisibleTextPreserved(t *testing.T) {
	doc := newPackageManuscript(t)
	before := paragraphTexts(t, doc)

	// Without dash correction no hook may touch visible characters.
	runPackagePipeline(t, pipeline.DefaultConfig(), doc)

	after := paragraphTexts(t, doc)
	if len(after) != len(before) {
		t.Fatalf("paragraph count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Errorf("paragraph %d changed:\nbefore = %q\nafter  = %q", i, before[i], after[i])
		}
	}
}

func TestPackageSaveRoundTrip(t *testing.T) {
	doc := newPackageManuscript(t)
	runPackagePipeline(t, pipeline.DefaultConfig(), doc)

	path := filepath.Join(t.TempDir(), "linked.docx")
	if err := doc.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reopened, err := docx.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sc, err := scan.Scan(context.Background(), reopened, scan.Options{})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(sc.Entries) != 2 || len(sc.Citations) != 2 {
		t.Errorf("reopened scan = %d entries, %d citations; want 2, 2",
			len(sc.Entries), len(sc.Citations))
	}

	part := string(reopened.PartXML())
	if !strings.Contains(part, `w:anchor="ref2"`) || !strings.Contains(part, `w:name="ref2"`) {
		t.Error("links or anchors lost in the round trip")
	}

	texts := paragraphTexts(t, reopened)
	if len(texts) == 0 || texts[0] != "As shown in (Smith, 2020) the model converges." {
		t.Errorf("paragraph 0 = %q, visible text changed", texts[0])
	}

	// Relinking the saved document must not nest hyperlinks or stack
	// bookmarks.
	rep := runPackagePipeline(t, pipeline.DefaultConfig(), reopened)
	if rep.Linked != 2 {
		t.Errorf("relink Linked = %d, want 2", rep.Linked)
	}
	relinked := string(reopened.PartXML())
	if got := strings.Count(relinked, `<w:hyperlink`); got != 2 {
		t.Errorf("hyperlink count after relink = %d, want 2", got)
	}
	if got := strings.Count(relinked, `w:name="ref1"`); got != 1 {
		t.Errorf("ref1 bookmark count after relink = %d, want 1", got)
	}
}
