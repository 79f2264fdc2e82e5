package cite

import (
	"strings"
	"testing"
)

const sampleInstruction = ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationID":"a1b2c3d4","properties":{"formattedCitation":"(Smith, 2020)","plainCitation":"(Smith, 2020)","noteIndex":0},"citationItems":[{"id":123,"uris":["http://zotero.org/users/8675309/items/ABCD2345"],"itemData":{"id":123,"type":"article-journal","title":"Deep learning for weather prediction","container-title":"Journal of Climate Informatics","page":"123-145","volume":"12","issue":"3","language":"en","author":[{"family":"Smith","given":"Jane"}],"issued":{"date-parts":[["2020",5,12]]}}}],"schema":"https://github.com/citation-style-language/schema/raw/master/csl-citation.json"} `

func TestParseCitationField(t *testing.T) {
	c, err := ParseCitationField(sampleInstruction)
	if err != nil {
		t.Fatalf("ParseCitationField() error = %v", err)
	}
	if c.CitationID != "a1b2c3d4" {
		t.Errorf("CitationID = %q, want %q", c.CitationID, "a1b2c3d4")
	}
	if len(c.CitationItems) != 1 {
		t.Fatalf("len(CitationItems) = %d, want 1", len(c.CitationItems))
	}

	item := c.CitationItems[0]
	if got := item.Key(); got != "ABCD2345" {
		t.Errorf("Key() = %q, want %q", got, "ABCD2345")
	}
	if item.ItemData == nil {
		t.Fatal("ItemData = nil, want data")
	}
	if got := item.ItemData.Title; got != "Deep learning for weather prediction" {
		t.Errorf("Title = %q", got)
	}
	if got := item.ItemData.ContainerTitle; got != "Journal of Climate Informatics" {
		t.Errorf("ContainerTitle = %q", got)
	}
	if got := item.ItemData.FirstAuthorSurname(); got != "Smith" {
		t.Errorf("FirstAuthorSurname() = %q, want %q", got, "Smith")
	}
	if got := item.ItemData.IssuedYear(); got != "2020" {
		t.Errorf("IssuedYear() = %q, want %q", got, "2020")
	}
	if got := c.Properties.PlainCitation; got != "(Smith, 2020)" {
		t.Errorf("PlainCitation = %q", got)
	}
}

func TestParseCitationFieldErrors(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
	}{
		{"no marker", ` PAGE \* MERGEFORMAT `},
		{"no payload", ` ADDIN ZOTERO_ITEM CSL_CITATION `},
		{"truncated json", ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"id":`},
		{"no items", ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationID":"x","citationItems":[]} `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCitationField(tt.instruction); err == nil {
				t.Errorf("ParseCitationField(%q) error = nil, want error", tt.instruction)
			}
		})
	}
}

func TestParseCitationFieldTrailingFlags(t *testing.T) {
	// Word sometimes appends switches after the JSON payload.
	instruction := sampleInstruction + `\* MERGEFORMAT `
	c, err := ParseCitationField(instruction)
	if err != nil {
		t.Fatalf("ParseCitationField() error = %v", err)
	}
	if len(c.CitationItems) != 1 {
		t.Errorf("len(CitationItems) = %d, want 1", len(c.CitationItems))
	}
}

func TestItemIDTolerantDecoding(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		want        ItemID
	}{
		{
			name:        "numeric id",
			instruction: ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"id":456}]} `,
			want:        "456",
		},
		{
			name:        "string id",
			instruction: ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[{"id":"abc/xyz"}]} `,
			want:        "abc/xyz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCitationField(tt.instruction)
			if err != nil {
				t.Fatalf("ParseCitationField() error = %v", err)
			}
			if got := c.CitationItems[0].ID; got != tt.want {
				t.Errorf("ID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDateYear(t *testing.T) {
	tests := []struct {
		name string
		date Date
		want string
	}{
		{"numeric parts", Date{DateParts: [][]DatePart{{2020, 5, 12}}}, "2020"},
		{"year only", Date{DateParts: [][]DatePart{{1999}}}, "1999"},
		{"raw fallback", Date{Raw: "May 2021"}, "2021"},
		{"literal fallback", Date{Literal: "spring 2019"}, "2019"},
		{"empty", Date{}, ""},
		{"zero part", Date{DateParts: [][]DatePart{{0}}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.date.Year(); got != tt.want {
				t.Errorf("Year() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"http://zotero.org/users/8675309/items/ABCD2345", "ABCD2345"},
		{"http://zotero.org/groups/55/items/XYZ999/", "XYZ999"},
		{"ABCD2345", "ABCD2345"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := KeyFromURI(tt.uri); got != tt.want {
			t.Errorf("KeyFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestItemIsCJK(t *testing.T) {
	tests := []struct {
		language string
		want     bool
	}{
		{"zh-CN", true},
		{"cn", true},
		{"ja-JP", true},
		{"ko", true},
		{"en-US", false},
		{"", false},
	}

	for _, tt := range tests {
		item := Item{Language: tt.language}
		if got := item.IsCJK(); got != tt.want {
			t.Errorf("IsCJK() with language %q = %v, want %v", tt.language, got, tt.want)
		}
	}
}

func TestFirstAuthorSurnameFallbacks(t *testing.T) {
	institutional := Item{Author: []Name{{Literal: "World Meteorological Organization"}}}
	if got := institutional.FirstAuthorSurname(); got != "World Meteorological Organization" {
		t.Errorf("FirstAuthorSurname() = %q, want literal name", got)
	}

	editorOnly := Item{Editor: []Name{{Family: "Kim", Given: "Min"}}}
	if got := editorOnly.FirstAuthorSurname(); got != "Kim" {
		t.Errorf("FirstAuthorSurname() = %q, want %q", got, "Kim")
	}

	empty := Item{}
	if got := empty.FirstAuthorSurname(); got != "" {
		t.Errorf("FirstAuthorSurname() = %q, want empty", got)
	}
}

func TestParseCitationFieldMultipleItems(t *testing.T) {
	instruction := ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationItems":[` +
		`{"uris":["http://zotero.org/users/1/items/KEY00001"],"itemData":{"title":"First","author":[{"family":"Smith"}],"issued":{"date-parts":[[2020]]}}},` +
		`{"uris":["http://zotero.org/users/1/items/KEY00002"],"itemData":{"title":"Second","author":[{"family":"Lee"}],"issued":{"date-parts":[[2021]]}}}]} `
	c, err := ParseCitationField(instruction)
	if err != nil {
		t.Fatalf("ParseCitationField() error = %v", err)
	}
	if len(c.CitationItems) != 2 {
		t.Fatalf("len(CitationItems) = %d, want 2", len(c.CitationItems))
	}
	keys := []string{c.CitationItems[0].Key(), c.CitationItems[1].Key()}
	if keys[0] != "KEY00001" || keys[1] != "KEY00002" {
		t.Errorf("keys = %v, want [KEY00001 KEY00002]", keys)
	}
	if !strings.Contains(c.CitationItems[1].ItemData.Title, "Second") {
		t.Errorf("second item title = %q", c.CitationItems[1].ItemData.Title)
	}
}
