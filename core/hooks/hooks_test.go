package hooks

import (
	"context"
	"testing"

	"github.com/citekit/citelink/core/anchor"
	"github.com/citekit/citelink/core/cite"
	"github.com/citekit/citelink/core/memdoc"
	"github.com/citekit/citelink/core/pipeline"
	"github.com/citekit/citelink/core/report"
	"github.com/citekit/citelink/core/resolve"
	"github.com/citekit/citelink/core/scan"
)

const biblInstr = ` ADDIN ZOTERO_BIBL {"uncited":[]} CSL_BIBLIOGRAPHY `

const smithInstr = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"uris":["http://zotero.org/users/1/items/KEY00001"],"itemData":{"title":"A unet model","container-title":"Journal of Climate","language":"en","author":[{"family":"Smith","given":"Jane"}],"issued":{"date-parts":[[2020]]}}}]} `

const clusterInstr = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[` +
	`{"uris":["http://zotero.org/users/1/items/KEY00001"],"itemData":{"title":"A unet model","author":[{"family":"Smith"}],"issued":{"date-parts":[[2020]]}}},` +
	`{"uris":["http://zotero.org/users/1/items/KEY00002"],"itemData":{"title":"Rainfall nowcasting","author":[{"family":"Lee"}],"issued":{"date-parts":[[2021]]}}}]} `

// newState scans d and builds the shared snapshot the hooks observe.
func newState(t *testing.T, d *memdoc.Document, cfg *pipeline.Config) *pipeline.RunState {
	t.Helper()
	sc, err := scan.Scan(context.Background(), d, scan.Options{Numbered: cfg.Numbered, Metadata: cfg.Metadata})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	idx := anchor.Build(sc.Entries, sc.Citations)
	resolver := &resolve.Resolver{Index: idx, Policy: cfg.Policy}
	return &pipeline.RunState{
		Scan:     sc,
		Index:    idx,
		Resolved: resolver.ResolveAll(sc.Citations),
		Config:   cfg,
		Report:   report.New(""),
	}
}

// runHook collects and applies one hook, returning the mutation count.
func runHook(t *testing.T, h pipeline.Hook, rs *pipeline.RunState) int {
	t.Helper()
	muts, err := h.Collect(rs)
	if err != nil {
		t.Fatalf("%s Collect() error = %v", h.Name(), err)
	}
	for _, m := range muts {
		if err := m.Apply(); err != nil {
			t.Fatalf("%s apply (%s %s) error = %v", h.Name(), m.Kind, m.Target, err)
		}
	}
	return len(muts)
}

func standardDoc() *memdoc.Document {
	d := memdoc.New()
	d.AddParagraph(
		memdoc.Text("Forecasting improved "),
		memdoc.Field(smithInstr, "(Smith, 2020)"),
		memdoc.Text("."),
	)
	d.AddBibliography(biblInstr,
		"Lee, K. (2021). Rainfall nowcasting. Journal of Hydrology, 9(2), 55-70.",
		"Smith, J. (2020). A unet model. Journal of Climate, 12(3), 123-145.",
	)
	return d
}

func TestAnchorsHook(t *testing.T) {
	d := standardDoc()
	cfg := pipeline.DefaultConfig()
	rs := newState(t, d, cfg)

	if n := runHook(t, anchorsHook{}, rs); n != 2 {
		t.Fatalf("mutations = %d, want 2", n)
	}
	// Bibliography paragraphs are 1 and 2 (paragraph 0 is body text).
	if got := d.AnchorsAt(1); len(got) != 1 || got[0] != "ref1" {
		t.Errorf("AnchorsAt(1) = %v, want [ref1]", got)
	}
	if got := d.AnchorsAt(2); len(got) != 1 || got[0] != "ref2" {
		t.Errorf("AnchorsAt(2) = %v, want [ref2]", got)
	}

	// A second pass replaces rather than stacks anchors.
	if n := runHook(t, anchorsHook{}, rs); n != 2 {
		t.Fatalf("second pass mutations = %d, want 2", n)
	}
	if got := d.AnchorsAt(2); len(got) != 1 || got[0] != "ref2" {
		t.Errorf("AnchorsAt(2) after rerun = %v, want [ref2]", got)
	}
}

func TestLinksHook(t *testing.T) {
	d := standardDoc()
	cfg := pipeline.DefaultConfig()
	rs := newState(t, d, cfg)

	before := d.ParagraphText(0)
	if n := runHook(t, linksHook{cfg: cfg}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1", n)
	}
	if got := d.ParagraphText(0); got != before {
		t.Errorf("visible text changed: %q -> %q", before, got)
	}

	var linked *memdoc.RunInfo
	for _, r := range d.Runs(0) {
		if r.Link != "" {
			r := r
			linked = &r
		}
	}
	if linked == nil {
		t.Fatal("no linked run found")
	}
	if linked.Text != "2020" || linked.Link != "ref2" {
		t.Errorf("linked run = %q -> %q, want 2020 -> ref2", linked.Text, linked.Link)
	}
}

func TestLinksHookCluster(t *testing.T) {
	d := memdoc.New()
	d.AddParagraph(memdoc.Field(clusterInstr, "(Smith, 2020; Lee, 2021)"))
	d.AddBibliography(biblInstr,
		"Smith, J. (2020). A unet model. Journal of Climate.",
		"Lee, K. (2021). Rainfall nowcasting. Journal of Hydrology.",
	)
	cfg := pipeline.DefaultConfig()
	rs := newState(t, d, cfg)

	if n := runHook(t, linksHook{cfg: cfg}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1", n)
	}

	links := map[string]string{}
	for _, r := range d.Runs(0) {
		if r.Link != "" {
			links[r.Text] = r.Link
		}
	}
	if links["2020"] != "ref1" || links["2021"] != "ref2" {
		t.Errorf("links = %v, want 2020->ref1, 2021->ref2", links)
	}
}

func TestLinksHookStyling(t *testing.T) {
	d := standardDoc()
	cfg := pipeline.DefaultConfig()
	cfg.Color = 255
	cfg.Bold = true
	rs := newState(t, d, cfg)

	runHook(t, linksHook{cfg: cfg}, rs)

	for _, r := range d.Runs(0) {
		switch r.Text {
		case "Smith, ", "2020":
			if r.Color != 255 || !r.Bold {
				t.Errorf("run %q = color %d bold %v, want 255 true", r.Text, r.Color, r.Bold)
			}
		case "(", ")":
			if r.Color != -1 {
				t.Errorf("parenthesis %q recolored to %d", r.Text, r.Color)
			}
		}
	}
}

func TestLinksHookWholeSpanFallback(t *testing.T) {
	// No year in the rendered text: the identity still resolves from the
	// payload and the whole span carries the link.
	d := memdoc.New()
	d.AddParagraph(memdoc.Field(smithInstr, "(Smith, in press)"))
	d.AddBibliography(biblInstr, "Smith, J. (2020). A unet model. Journal of Climate.")
	cfg := pipeline.DefaultConfig()
	rs := newState(t, d, cfg)

	if n := runHook(t, linksHook{cfg: cfg}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1", n)
	}
	runs := d.Runs(0)
	if len(runs) == 0 || runs[0].Link != "ref1" {
		t.Fatalf("runs = %+v, want whole span linked to ref1", runs)
	}
}

func TestCrossrefHook(t *testing.T) {
	d := memdoc.New()
	d.AddParagraph(
		memdoc.Text("See "),
		memdoc.Field(` REF _Ref12345678 \h `, "Figure 3"),
		memdoc.Text(" and "),
		memdoc.Field(` REF _Ref87654321 \h `, "Section 2"),
		memdoc.Text("."),
	)
	cfg := pipeline.DefaultConfig()
	cfg.KeyWords = []string{"Figure", "Table"}
	cfg.Color = 255
	rs := newState(t, d, cfg)

	if n := runHook(t, crossrefHook{cfg: cfg}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1 (Section does not match)", n)
	}
	for _, r := range d.Runs(0) {
		switch r.Text {
		case "Figure 3":
			if r.Color != 255 {
				t.Errorf("Figure 3 color = %d, want 255", r.Color)
			}
		case "Section 2":
			if r.Color != -1 {
				t.Errorf("Section 2 color = %d, want untouched", r.Color)
			}
		}
	}
}

func TestItalicHookMetadata(t *testing.T) {
	d := standardDoc()
	cfg := pipeline.DefaultConfig()
	rs := newState(t, d, cfg)

	// The citation payload reaches the Smith entry during indexing, so its
	// container title is known. The Lee entry has no metadata and is skipped.
	if n := runHook(t, italicHook{cfg: cfg}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1", n)
	}
	var italicized string
	for _, r := range d.Runs(2) {
		if r.Italic {
			italicized = r.Text
		}
	}
	if italicized != "Journal of Climate" {
		t.Errorf("italic run = %q, want %q", italicized, "Journal of Climate")
	}

	// Idempotence: everything found is already italic.
	if n := runHook(t, italicHook{cfg: cfg}, rs); n != 0 {
		t.Errorf("second pass mutations = %d, want 0", n)
	}
}

func TestItalicHookCJKPublisher(t *testing.T) {
	d := memdoc.New()
	d.AddBibliography(biblInstr, "王小明. (2020). 气象研究. 大气科学, 北京大学出版社.")
	cfg := pipeline.DefaultConfig()
	rs := newState(t, d, cfg)
	rs.Scan.Entries[0].Item = &cite.Item{
		Language:       "zh-CN",
		ContainerTitle: "大气科学",
		Publisher:      "北京大学出版社",
	}

	if n := runHook(t, italicHook{cfg: cfg}, rs); n != 2 {
		t.Errorf("mutations = %d, want container title and publisher", n)
	}
}

func TestItalicHookCJKBrackets(t *testing.T) {
	d := memdoc.New()
	d.AddBibliography(biblInstr, "王小明. (2020). 气象研究.《大气科学》12(3).")
	cfg := pipeline.DefaultConfig()
	cfg.ItalicStyle = "cjk-brackets"
	rs := newState(t, d, cfg)

	if n := runHook(t, italicHook{cfg: cfg}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1", n)
	}
	var italicized string
	for _, r := range d.Runs(0) {
		if r.Italic {
			italicized = r.Text
		}
	}
	if italicized != "大气科学" {
		t.Errorf("italic run = %q, want %q", italicized, "大气科学")
	}
}

func TestItalicHookUnknownStrategy(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.ItalicStyle = "nope"
	rs := newState(t, memdoc.New(), cfg)

	if _, err := (italicHook{cfg: cfg}).Collect(rs); err == nil {
		t.Error("Collect() error = nil, want unknown strategy error")
	}
}

func TestDashHook(t *testing.T) {
	d := memdoc.New()
	d.AddBibliography(biblInstr,
		"Smith, J. (2020). A well-known model. Journal, 12(3), 123-145.",
	)
	cfg := pipeline.DefaultConfig()
	cfg.DashCorrection = true
	rs := newState(t, d, cfg)

	if n := runHook(t, dashHook{}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1", n)
	}
	got := d.ParagraphText(0)
	want := "Smith, J. (2020). A well-known model. Journal, 12(3), 123–145."
	if got != want {
		t.Errorf("text = %q, want %q", got, want)
	}

	// Idempotence: the en dash no longer qualifies.
	if n := runHook(t, dashHook{}, rs); n != 0 {
		t.Errorf("second pass mutations = %d, want 0", n)
	}
}

func TestTitlecaseHook(t *testing.T) {
	d := memdoc.New()
	d.AddBibliography(biblInstr,
		"Smith, J. (2020). a unet model using wrf data. Journal of Climate.",
		"王小明. (2020). 气象研究. 大气科学.",
	)
	cfg := pipeline.DefaultConfig()
	cfg.TitleCaseMode = pipeline.TitleCaseEveryWordUpper
	cfg.ProperNouns = []string{"UNet", "WRF"}
	rs := newState(t, d, cfg)
	rs.Scan.Entries[0].Item = &cite.Item{Language: "en", Title: "a unet model using wrf data"}
	rs.Scan.Entries[1].Item = &cite.Item{Language: "zh-CN", Title: "气象研究"}

	if n := runHook(t, titlecaseHook{cfg: cfg}, rs); n != 1 {
		t.Fatalf("mutations = %d, want 1 (CJK entry skipped)", n)
	}
	got := d.ParagraphText(0)
	want := "Smith, J. (2020). A UNet Model Using WRF Data. Journal of Climate."
	if got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

func TestRecase(t *testing.T) {
	tests := []struct {
		title string
		mode  string
		nouns []string
		want  string
	}{
		{"a unet model using wrf data", pipeline.TitleCaseEveryWordUpper,
			[]string{"UNet", "WRF"}, "A UNet Model Using WRF Data"},
		{"a short title", pipeline.TitleCaseAllUpper, nil, "A SHORT TITLE"},
		{"deep learning: a review. new methods", pipeline.TitleCaseSentence, nil,
			"Deep learning: A review. New methods"},
		{"KEEP wrf AS IS", pipeline.TitleCaseSentence, []string{"WRF"},
			"Keep WRF as is"},
		{"already Correct", pipeline.TitleCaseEveryWordUpper, nil, "Already Correct"},
	}

	for _, tt := range tests {
		if got := Recase(tt.title, tt.mode, tt.nouns); got != tt.want {
			t.Errorf("Recase(%q, %s) = %q, want %q", tt.title, tt.mode, got, tt.want)
		}
	}
}
