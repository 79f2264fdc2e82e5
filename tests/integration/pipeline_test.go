package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/citekit/citelink/core/memdoc"
	"github.com/citekit/citelink/core/pipeline"
	"github.com/citekit/citelink/core/report"
	"github.com/citekit/citelink/core/resolve"
	"github.com/citekit/citelink/internal/zotero"

	// Import hooks so every pipeline stage registers itself.
	_ "github.com/citekit/citelink/core/hooks"
)

func runPipeline(t *testing.T, cfg *pipeline.Config, doc *memdoc.Document) *report.Report {
	t.Helper()
	rep := report.New("fixture.docx")
	if err := pipeline.New(cfg).Run(context.Background(), doc, rep); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return rep
}

// hookMutations returns the mutation count recorded for a hook, or -1 when
// the hook did not run.
func hookMutations(rep *report.Report, hook string) int {
	for _, hr := range rep.HookRuns {
		if hr.Hook == hook {
			return hr.Mutations
		}
	}
	return -1
}

func TestAuthorYearLinking(t *testing.T) {
	doc := newManuscript()
	rep := runPipeline(t, pipeline.DefaultConfig(), doc)

	// Paragraphs: 0 Smith citation, 1 Lee citation, 2 Lee entry, 3 Smith
	// entry. Anchor names follow bibliography order, not citation order.
	if got := doc.AnchorsAt(2); len(got) != 1 || got[0] != "ref1" {
		t.Errorf("Lee entry anchors = %v, want [ref1]", got)
	}
	if got := doc.AnchorsAt(3); len(got) != 1 || got[0] != "ref2" {
		t.Errorf("Smith entry anchors = %v, want [ref2]", got)
	}

	smithYear, ok := findRun(t, doc, 0, "2020")
	if !ok {
		t.Fatalf("no run for the Smith year token; runs = %+v", doc.Runs(0))
	}
	if smithYear.Link != "ref2" {
		t.Errorf("Smith year link = %q, want %q", smithYear.Link, "ref2")
	}
	leeYear, ok := findRun(t, doc, 1, "2021")
	if !ok {
		t.Fatalf("no run for the Lee year token; runs = %+v", doc.Runs(1))
	}
	if leeYear.Link != "ref1" {
		t.Errorf("Lee year link = %q, want %q", leeYear.Link, "ref1")
	}

	// Container titles picked up from citation metadata render italic.
	for i, title := range map[int]string{2: "Annals of Computing", 3: "Journal of Climate"} {
		r, ok := findRun(t, doc, i, title)
		if !ok {
			t.Fatalf("paragraph %d has no %q run; runs = %+v", i, title, doc.Runs(i))
		}
		if !r.Italic {
			t.Errorf("container title %q not italicized", title)
		}
	}

	if rep.Entries != 2 || rep.Citations != 2 || rep.Linked != 2 {
		t.Errorf("counters = %d entries, %d citations, %d linked; want 2, 2, 2",
			rep.Entries, rep.Citations, rep.Linked)
	}
	if rep.Status != report.StatusClean {
		t.Errorf("Status = %q, want %q", rep.Status, report.StatusClean)
	}
	if got := hookMutations(rep, "anchors"); got != 2 {
		t.Errorf("anchors mutations = %d, want 2", got)
	}
	if got := hookMutations(rep, "links"); got != 2 {
		t.Errorf("links mutations = %d, want 2", got)
	}
}

func TestNumberedLinking(t *testing.T) {
	doc := memdoc.New()
	doc.AddParagraph(
		memdoc.Text("First shown in "),
		memdoc.Field(smithInstruction, "[1]"),
		memdoc.Text("."),
	)
	doc.AddParagraph(
		memdoc.Text("Confirmed twice "),
		memdoc.Field(leeInstruction, "[2-3]"),
		memdoc.Text("."),
	)
	doc.AddBibliography(biblInstruction, smithEntry, leeEntry, chenEntry)

	cfg := pipeline.DefaultConfig()
	cfg.Numbered = true
	rep := runPipeline(t, cfg, doc)

	one, ok := findRun(t, doc, 0, "1")
	if !ok || one.Link != "ref1" {
		t.Errorf("token 1 link = %q (found %t), want ref1", one.Link, ok)
	}
	// A collapsed range renders only its end points; both carry links.
	two, ok := findRun(t, doc, 1, "2")
	if !ok || two.Link != "ref2" {
		t.Errorf("token 2 link = %q (found %t), want ref2", two.Link, ok)
	}
	three, ok := findRun(t, doc, 1, "3")
	if !ok || three.Link != "ref3" {
		t.Errorf("token 3 link = %q (found %t), want ref3", three.Link, ok)
	}

	if rep.Linked != 3 {
		t.Errorf("Linked = %d, want 3", rep.Linked)
	}
	if rep.Status != report.StatusClean {
		t.Errorf("Status = %q, want %q", rep.Status, report.StatusClean)
	}
}

func TestStyleCorrections(t *testing.T) {
	doc := memdoc.New()
	doc.AddParagraph(
		memdoc.Text("As shown in "),
		memdoc.Field(smithInstruction, "(Smith, 2020)"),
		memdoc.Text("."),
	)
	doc.AddParagraph(
		memdoc.Text("See "),
		memdoc.Field(crossRefInstruction, "Figure 3"),
		memdoc.Text(" for details."),
	)
	doc.AddBibliography(biblInstruction, smithEntry)

	cfg := pipeline.DefaultConfig()
	cfg.Color = 255
	cfg.Bold = true
	cfg.KeyWords = []string{"Figure", "Table"}
	cfg.DashCorrection = true
	cfg.TitleCaseMode = pipeline.TitleCaseAllUpper
	cfg.ProperNouns = []string{"unet"}
	rep := runPipeline(t, cfg, doc)

	// Citation text inside the parentheses is colored and bolded; the
	// parentheses themselves keep their styling.
	authors, ok := findRun(t, doc, 0, "Smith, ")
	if !ok {
		t.Fatalf("citation runs not split as expected: %+v", doc.Runs(0))
	}
	if authors.Color != 255 || !authors.Bold {
		t.Errorf("authors run = %+v, want color 255 and bold", authors)
	}
	if paren, ok := findRun(t, doc, 0, "("); !ok || paren.Color != -1 || paren.Bold {
		t.Errorf("opening parenthesis run = %+v, want unstyled", paren)
	}
	year, ok := findRun(t, doc, 0, "2020")
	if !ok || year.Link != "ref1" {
		t.Errorf("year run = %+v, want link ref1", year)
	}

	// Cross-reference fields matching a key word get the same styling.
	figure, ok := findRun(t, doc, 1, "Figure 3")
	if !ok {
		t.Fatalf("cross-reference run missing: %+v", doc.Runs(1))
	}
	if figure.Color != 255 || !figure.Bold {
		t.Errorf("cross-reference run = %+v, want color 255 and bold", figure)
	}

	// Page range hyphen becomes an en dash, the title is re-cased with the
	// allow-listed word kept verbatim.
	entry := doc.ParagraphText(2)
	if !strings.Contains(entry, "45–67") {
		t.Errorf("entry = %q, want en dash in page range", entry)
	}
	if !strings.Contains(entry, "A unet MODEL") {
		t.Errorf("entry = %q, want re-cased title with proper noun kept", entry)
	}

	if rep.CrossRefs != 1 {
		t.Errorf("CrossRefs = %d, want 1", rep.CrossRefs)
	}
	if got := hookMutations(rep, "dash"); got != 1 {
		t.Errorf("dash mutations = %d, want 1", got)
	}
	if got := hookMutations(rep, "titlecase"); got != 1 {
		t.Errorf("titlecase mutations = %d, want 1", got)
	}
}

const chenCSL = `{"items":[{"id":"KEY00003","type":"article-journal","title":"Deep spatial priors","container-title":"Pattern Recognition","language":"en","author":[{"family":"Chen","given":"L."}],"issued":{"date-parts":[[2019]]}}]}`

func newChenResolver(t *testing.T, hits *int) *zotero.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/12345/items/KEY00003" {
			http.NotFound(w, r)
			return
		}
		*hits++
		w.Header().Set("Content-Type", "application/vnd.citationstyles.csl+json")
		fmt.Fprint(w, chenCSL)
	}))
	t.Cleanup(server.Close)

	client, err := zotero.NewClient(zotero.Config{UserID: "12345", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newChenManuscript() *memdoc.Document {
	doc := memdoc.New()
	doc.AddParagraph(
		memdoc.Text("Spatial priors help "),
		memdoc.Field(keyOnlyInstruction, "(Chen, 2019)"),
		memdoc.Text("."),
	)
	doc.AddBibliography(biblInstruction, chenEntry)
	return doc
}

func TestMetadataFallback(t *testing.T) {
	hits := 0
	client := newChenResolver(t, &hits)

	doc := newChenManuscript()
	cfg := pipeline.DefaultConfig()
	cfg.Metadata = client
	rep := runPipeline(t, cfg, doc)

	if rep.Linked != 1 || rep.Status != report.StatusClean {
		t.Fatalf("Linked = %d, Status = %q; want 1 linked, clean", rep.Linked, rep.Status)
	}
	year, ok := findRun(t, doc, 0, "2019")
	if !ok || year.Link != "ref1" {
		t.Errorf("year run = %+v, want link ref1", year)
	}

	// The fetched item flows into the entry, so the container title is
	// recognized even though it never appeared in the document payload.
	title, ok := findRun(t, doc, 1, "Pattern Recognition")
	if !ok || !title.Italic {
		t.Errorf("container title run = %+v, want italic", title)
	}

	if hits != 1 {
		t.Errorf("API requests = %d, want 1", hits)
	}

	// A second manuscript with the same citation is served from cache.
	rep2 := runPipeline(t, cfg, newChenManuscript())
	if rep2.Linked != 1 {
		t.Errorf("second run Linked = %d, want 1", rep2.Linked)
	}
	if hits != 1 {
		t.Errorf("API requests after second run = %d, want 1", hits)
	}
}

const smithAInstruction = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"itemData":{"title":"Alpha method","author":[{"family":"Smith"}],"issued":{"date-parts":[[2020]]}}}]} `
const smithBInstruction = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"itemData":{"title":"Beta method","author":[{"family":"Smith"}],"issued":{"date-parts":[[2020]]}}}]} `

func newAmbiguousManuscript() *memdoc.Document {
	doc := memdoc.New()
	doc.AddParagraph(
		memdoc.Text("The refinement "),
		memdoc.Field(smithBInstruction, "(Smith, 2020b)"),
		memdoc.Text(" improved on earlier results."),
	)
	doc.AddBibliography(biblInstruction,
		"Smith, J. (2020a). Alpha method. Journal of Methods, 1(1), 3-9.",
		"Smith, J. (2020b). Beta method. Journal of Methods, 2(1), 10-19.",
	)
	return doc
}

func TestAmbiguousEntries_SuffixFromText(t *testing.T) {
	doc := newAmbiguousManuscript()
	rep := runPipeline(t, pipeline.DefaultConfig(), doc)

	year, ok := findRun(t, doc, 0, "2020b")
	if !ok {
		t.Fatalf("no run for the suffixed year token; runs = %+v", doc.Runs(0))
	}
	if year.Link != "ref2" {
		t.Errorf("link = %q, want ref2 (suffix recovered from text)", year.Link)
	}
	if rep.Status != report.StatusClean {
		t.Errorf("Status = %q, want %q", rep.Status, report.StatusClean)
	}
}

func TestAmbiguousEntries_FirstMatch(t *testing.T) {
	doc := newAmbiguousManuscript()
	cfg := pipeline.DefaultConfig()
	cfg.Policy = resolve.PolicyFirstMatch
	rep := runPipeline(t, cfg, doc)

	year, ok := findRun(t, doc, 0, "2020b")
	if !ok {
		t.Fatalf("no run for the suffixed year token; runs = %+v", doc.Runs(0))
	}
	if year.Link != "ref1" {
		t.Errorf("link = %q, want ref1 (first match)", year.Link)
	}
	if rep.Status != report.StatusWarnings {
		t.Errorf("Status = %q, want %q", rep.Status, report.StatusWarnings)
	}
	found := false
	for _, c := range rep.Conditions {
		if c.Kind == report.CondAmbiguous {
			found = true
		}
	}
	if !found {
		t.Errorf("Conditions = %+v, want an ambiguous-reference condition", rep.Conditions)
	}
}

func TestReprocessingIsStable(t *testing.T) {
	doc := newManuscript()
	cfg := pipeline.DefaultConfig()
	cfg.DashCorrection = true

	runPipeline(t, cfg, doc)
	textAfterFirst := doc.ParagraphText(3)

	rep2 := runPipeline(t, cfg, doc)

	// Anchors are replaced, not accumulated.
	if got := doc.AnchorsAt(2); len(got) != 1 || got[0] != "ref1" {
		t.Errorf("Lee entry anchors after rerun = %v, want [ref1]", got)
	}
	// Corrected text contains nothing left to correct.
	if got := hookMutations(rep2, "dash"); got != 0 {
		t.Errorf("dash mutations on rerun = %d, want 0", got)
	}
	if got := hookMutations(rep2, "italic"); got != 0 {
		t.Errorf("italic mutations on rerun = %d, want 0", got)
	}
	if got := doc.ParagraphText(3); got != textAfterFirst {
		t.Errorf("entry text changed on rerun:\nfirst  = %q\nsecond = %q", textAfterFirst, got)
	}
	// Links still point at the right entries.
	if year, ok := findRun(t, doc, 0, "2020"); !ok || year.Link != "ref2" {
		t.Errorf("Smith year run after rerun = %+v, want link ref2", year)
	}
}
