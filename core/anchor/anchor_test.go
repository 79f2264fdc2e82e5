package anchor

import (
	"testing"

	"github.com/citekit/citelink/core/cite"
	"github.com/citekit/citelink/core/scan"
)

func entry(ord int, text, surname, year, suffix string) *scan.Entry {
	return &scan.Entry{Ordinal: ord, Text: text, Surname: surname, Year: year, Suffix: suffix}
}

func item(title, container, family, year string) *cite.Item {
	it := &cite.Item{Title: title, ContainerTitle: container}
	if family != "" {
		it.Author = []cite.Name{{Family: family}}
	}
	if year != "" {
		it.Issued = cite.Date{Raw: year}
	}
	return it
}

func TestName(t *testing.T) {
	if got := Name(7); got != "ref7" {
		t.Errorf("Name(7) = %q, want %q", got, "ref7")
	}
}

func TestBuildAssignsAnchors(t *testing.T) {
	entries := []*scan.Entry{
		entry(1, "Lee, K. (2021). Rainfall nowcasting. Journal of Hydrology.", "Lee", "2021", ""),
		entry(2, "Smith, J. (2020). A unet model. Journal of Climate.", "Smith", "2020", ""),
	}
	idx := Build(entries, nil)

	if entries[0].Anchor != "ref1" || entries[1].Anchor != "ref2" {
		t.Errorf("anchors = %q, %q, want ref1, ref2", entries[0].Anchor, entries[1].Anchor)
	}
	if a, ok := idx.AnchorForToken("smith-2020"); !ok || a != "ref2" {
		t.Errorf("AnchorForToken(smith-2020) = %q, %v, want ref2, true", a, ok)
	}
	if a, ok := idx.AnchorForToken("lee-2021"); !ok || a != "ref1" {
		t.Errorf("AnchorForToken(lee-2021) = %q, %v, want ref1, true", a, ok)
	}
	if _, ok := idx.AnchorForToken("smith-2021"); ok {
		t.Error("AnchorForToken(smith-2021) resolved, want miss")
	}
	if got := idx.AnchorsForBase("smith-2020"); len(got) != 1 || got[0] != "ref2" {
		t.Errorf("AnchorsForBase(smith-2020) = %v, want [ref2]", got)
	}
	// Lone entries keep an unsuffixed identity.
	if entries[1].Suffix != "" {
		t.Errorf("lone entry suffix = %q, want empty", entries[1].Suffix)
	}
}

func TestBuildFillsSuffixGaps(t *testing.T) {
	// The middle entry renders an explicit "b"; the others fill a and c.
	entries := []*scan.Entry{
		entry(1, "Smith, J. (2020). Alpha. Journal A.", "Smith", "2020", ""),
		entry(2, "Smith, J. (2020b). Beta. Journal B.", "Smith", "2020", "b"),
		entry(3, "Smith, J. (2020). Gamma. Journal C.", "Smith", "2020", ""),
	}
	idx := Build(entries, nil)

	if entries[0].Suffix != "a" || entries[1].Suffix != "b" || entries[2].Suffix != "c" {
		t.Errorf("suffixes = %q, %q, %q, want a, b, c",
			entries[0].Suffix, entries[1].Suffix, entries[2].Suffix)
	}
	for i, token := range []string{"smith-2020a", "smith-2020b", "smith-2020c"} {
		want := Name(i + 1)
		if a, ok := idx.AnchorForToken(token); !ok || a != want {
			t.Errorf("AnchorForToken(%s) = %q, %v, want %q, true", token, a, ok, want)
		}
	}
	if _, ok := idx.AnchorForToken("smith-2020"); ok {
		t.Error("bare smith-2020 resolved, want suffixed tokens only")
	}
	if got := idx.AnchorsForBase("smith-2020"); len(got) != 3 {
		t.Errorf("AnchorsForBase(smith-2020) = %v, want three anchors", got)
	}
}

func TestBuildOrdinalIndex(t *testing.T) {
	entries := []*scan.Entry{
		entry(1, "[1] First entry.", "", "", ""),
		entry(2, "[2] Second entry.", "", "", ""),
	}
	idx := Build(entries, nil)

	if a, ok := idx.AnchorForOrdinal(2); !ok || a != "ref2" {
		t.Errorf("AnchorForOrdinal(2) = %q, %v, want ref2, true", a, ok)
	}
	if _, ok := idx.AnchorForOrdinal(3); ok {
		t.Error("AnchorForOrdinal(3) resolved, want miss")
	}
}

func TestBuildMatchesItemKeys(t *testing.T) {
	entries := []*scan.Entry{
		entry(1, "Lee, K. (2021). Rainfall nowcasting. Journal of Hydrology.", "Lee", "2021", ""),
		entry(2, "Smith, J. (2020). A unet model. Journal of Climate.", "Smith", "2020", ""),
	}
	citations := []*scan.Citation{{
		Refs: []scan.Ref{{
			Key:     "KEY00001",
			Surname: "Smith",
			Year:    "2020",
			Item:    item("A unet model", "Journal of Climate", "Smith", "2020"),
		}},
	}}
	idx := Build(entries, citations)

	if a, ok := idx.AnchorForKey("KEY00001"); !ok || a != "ref2" {
		t.Errorf("AnchorForKey(KEY00001) = %q, %v, want ref2, true", a, ok)
	}
	if entries[1].Item == nil || entries[1].Item.Title != "A unet model" {
		t.Errorf("entry metadata = %+v, want the citation item attached", entries[1].Item)
	}
}

func TestBuildMatchesAmbiguousKeysByTitle(t *testing.T) {
	entries := []*scan.Entry{
		entry(1, "Smith, J. (2020a). Alpha study. Journal A.", "Smith", "2020", "a"),
		entry(2, "Smith, J. (2020b). Beta study. Journal B.", "Smith", "2020", "b"),
	}
	citations := []*scan.Citation{{
		Refs: []scan.Ref{
			{Key: "KBETA", Item: item("Beta study", "Journal B", "Smith", "2020")},
			{Key: "KALPHA", Item: item("Alpha study", "Journal A", "Smith", "2020")},
		},
	}}
	idx := Build(entries, citations)

	if a, ok := idx.AnchorForKey("KBETA"); !ok || a != "ref2" {
		t.Errorf("AnchorForKey(KBETA) = %q, %v, want ref2, true", a, ok)
	}
	if a, ok := idx.AnchorForKey("KALPHA"); !ok || a != "ref1" {
		t.Errorf("AnchorForKey(KALPHA) = %q, %v, want ref1, true", a, ok)
	}
}

func TestBuildRejectsTitlePrefixMatch(t *testing.T) {
	// "Deep learning" appears followed by more title words, so containment
	// alone must not claim the entry.
	entries := []*scan.Entry{
		entry(1, "Smith, J. (2020a). Deep learning methods for rainfall. Journal A.", "Smith", "2020", "a"),
		entry(2, "Smith, J. (2020b). Other work. Journal B.", "Smith", "2020", "b"),
	}
	citations := []*scan.Citation{{
		Refs: []scan.Ref{
			{Key: "KDEEP", Item: item("Deep learning", "Journal A", "Smith", "2020")},
		},
	}}
	idx := Build(entries, citations)

	if _, ok := idx.AnchorForKey("KDEEP"); ok {
		t.Error("AnchorForKey(KDEEP) resolved, want miss for prefix title")
	}
}
