// Package cite models CSL (Citation Style Language) data embedded in
// citation fields and parses the rendered text of citations. It covers the
// subset of the CSL input schema that reference managers embed in word
// processor fields, with tolerant decoding for the type looseness seen in
// the wild (numeric ids, string date parts).
package cite

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MetadataResolver resolves an item key to its CSL metadata, typically
// through a reference manager's web API backed by a local cache.
type MetadataResolver interface {
	ResolveItem(ctx context.Context, key string) (*Item, error)
}

// CitationFieldMarker prefixes the instruction of an inline citation field.
const CitationFieldMarker = "ADDIN ZOTERO_ITEM CSL_CITATION"

// BibliographyFieldMarker prefixes the instruction of the bibliography field.
const BibliographyFieldMarker = "ADDIN ZOTERO_BIBL"

// ItemID is a CSL item identifier. Reference managers emit both JSON
// strings and numbers here, so it unmarshals from either.
type ItemID string

// UnmarshalJSON accepts a string or numeric id.
func (id *ItemID) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*id = ItemID(t)
	case float64:
		*id = ItemID(strconv.FormatFloat(t, 'f', -1, 64))
	case nil:
		*id = ""
	default:
		return fmt.Errorf("csl: unsupported id type %T", v)
	}
	return nil
}

// DatePart is one component of a date-parts group. CSL allows numbers and
// numeric strings; non-numeric values decode as zero rather than failing
// the whole item.
type DatePart int

// UnmarshalJSON accepts a number or a numeric string.
func (p *DatePart) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*p = 0
		return nil
	}
	*p = DatePart(n)
	return nil
}

// Date is a CSL date variable.
type Date struct {
	DateParts [][]DatePart `json:"date-parts,omitempty"`
	Season    string       `json:"season,omitempty"`
	Circa     bool         `json:"circa,omitempty"`
	Literal   string       `json:"literal,omitempty"`
	Raw       string       `json:"raw,omitempty"`
}

// Year returns the four-digit year of the first date-parts group, or ""
// when the date carries no usable year.
func (d Date) Year() string {
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 && d.DateParts[0][0] > 0 {
		return fmt.Sprintf("%04d", int(d.DateParts[0][0]))
	}
	if m := yearPattern.FindString(d.Raw); m != "" {
		return m[:4]
	}
	if m := yearPattern.FindString(d.Literal); m != "" {
		return m[:4]
	}
	return ""
}

// Name is a CSL name variable.
type Name struct {
	Family              string `json:"family,omitempty"`
	Given               string `json:"given,omitempty"`
	DroppingParticle    string `json:"dropping-particle,omitempty"`
	NonDroppingParticle string `json:"non-dropping-particle,omitempty"`
	Suffix              string `json:"suffix,omitempty"`
	CommaSuffix         bool   `json:"comma-suffix,omitempty"`
	StaticOrdering      bool   `json:"static-ordering,omitempty"`
	Literal             string `json:"literal,omitempty"`
	ParseNames          bool   `json:"parse-names,omitempty"`
}

// Surname returns the family name, falling back to the literal form used
// for institutional authors.
func (n Name) Surname() string {
	if n.Family != "" {
		return n.Family
	}
	return n.Literal
}

// Item represents one item of CSL data. Field names and JSON tags follow
// the CSL input schema; only the variables the linking engine and its
// metadata cache exercise are modeled.
type Item struct {
	ID                  ItemID   `json:"id,omitempty"`
	Type                string   `json:"type,omitempty"`
	CitationKey         string   `json:"citation-key,omitempty"`
	Language            string   `json:"language,omitempty"`
	JournalAbbreviation string   `json:"journalAbbreviation,omitempty"`
	ShortTitle          string   `json:"shortTitle,omitempty"`
	Author              []Name   `json:"author,omitempty"`
	Editor              []Name   `json:"editor,omitempty"`
	Translator          []Name   `json:"translator,omitempty"`
	Issued              Date     `json:"issued,omitempty"`
	Accessed            Date     `json:"accessed,omitempty"`
	Abstract            string   `json:"abstract,omitempty"`
	CollectionTitle     string   `json:"collection-title,omitempty"`
	ContainerTitle      string   `json:"container-title,omitempty"`
	ContainerTitleShort string   `json:"container-title-short,omitempty"`
	DOI                 string   `json:"DOI,omitempty"`
	Edition             string   `json:"edition,omitempty"`
	Event               string   `json:"event,omitempty"`
	EventPlace          string   `json:"event-place,omitempty"`
	Genre               string   `json:"genre,omitempty"`
	ISBN                string   `json:"ISBN,omitempty"`
	ISSN                string   `json:"ISSN,omitempty"`
	Issue               string   `json:"issue,omitempty"`
	Medium              string   `json:"medium,omitempty"`
	Note                string   `json:"note,omitempty"`
	Number              string   `json:"number,omitempty"`
	NumberOfPages       string   `json:"number-of-pages,omitempty"`
	NumberOfVolumes     string   `json:"number-of-volumes,omitempty"`
	Page                string   `json:"page,omitempty"`
	PageFirst           string   `json:"page-first,omitempty"`
	Publisher           string   `json:"publisher,omitempty"`
	PublisherPlace      string   `json:"publisher-place,omitempty"`
	Source              string   `json:"source,omitempty"`
	Status              string   `json:"status,omitempty"`
	Title               string   `json:"title,omitempty"`
	TitleShort          string   `json:"title-short,omitempty"`
	URL                 string   `json:"URL,omitempty"`
	Version             string   `json:"version,omitempty"`
	Volume              string   `json:"volume,omitempty"`
	YearSuffix          string   `json:"year-suffix,omitempty"`
	Categories          []string `json:"categories,omitempty"`
}

// FirstAuthorSurname returns the surname of the first author, falling back
// to the first editor when the item has no authors. Returns "" when
// neither is present.
func (it *Item) FirstAuthorSurname() string {
	if len(it.Author) > 0 {
		return it.Author[0].Surname()
	}
	if len(it.Editor) > 0 {
		return it.Editor[0].Surname()
	}
	return ""
}

// IssuedYear returns the item's publication year as a four-digit string.
func (it *Item) IssuedYear() string {
	return it.Issued.Year()
}

// IsCJK reports whether the item's language marks it as Chinese, Japanese
// or Korean. Bibliography styles for these languages italicize the
// publisher in addition to the container title.
func (it *Item) IsCJK() bool {
	lang := strings.ToLower(it.Language)
	for _, p := range []string{"zh", "cn", "ja", "jp", "ko", "kr"} {
		if strings.HasPrefix(lang, p) {
			return true
		}
	}
	return false
}

// CitationProperties carries the rendered form stored alongside the
// citation data.
type CitationProperties struct {
	FormattedCitation string `json:"formattedCitation,omitempty"`
	PlainCitation     string `json:"plainCitation,omitempty"`
	NoteIndex         int    `json:"noteIndex,omitempty"`
	DontUpdate        bool   `json:"dontUpdate,omitempty"`
}

// CitationItem is one cited work within a citation field.
type CitationItem struct {
	ID             ItemID   `json:"id,omitempty"`
	URIs           []string `json:"uris,omitempty"`
	ItemData       *Item    `json:"itemData,omitempty"`
	Locator        string   `json:"locator,omitempty"`
	Label          string   `json:"label,omitempty"`
	Prefix         string   `json:"prefix,omitempty"`
	Suffix         string   `json:"suffix,omitempty"`
	SuppressAuthor bool     `json:"suppress-author,omitempty"`
}

// Key returns the item key identifying this work in the reference
// manager's library: the last path segment of the item's first URI.
// Returns "" when the citation carries no URIs.
func (ci *CitationItem) Key() string {
	if len(ci.URIs) == 0 {
		return ""
	}
	return KeyFromURI(ci.URIs[0])
}

// KeyFromURI extracts the item key from a library URI such as
// "http://zotero.org/users/12345/items/ABCD2345".
func KeyFromURI(uri string) string {
	uri = strings.TrimRight(strings.TrimSpace(uri), "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// Citation is the payload a reference manager embeds in a citation field
// instruction.
type Citation struct {
	CitationID    string             `json:"citationID,omitempty"`
	CitationItems []CitationItem     `json:"citationItems"`
	Properties    CitationProperties `json:"properties,omitempty"`
	Schema        string             `json:"schema,omitempty"`
}

// ParseCitationField extracts and decodes the CSL payload from a citation
// field instruction. The instruction carries the marker, a JSON object and
// sometimes trailing flags; everything after the first complete JSON value
// is ignored.
func ParseCitationField(instruction string) (*Citation, error) {
	i := strings.Index(instruction, CitationFieldMarker)
	if i < 0 {
		return nil, fmt.Errorf("csl: instruction has no %s marker", CitationFieldMarker)
	}
	rest := instruction[i+len(CitationFieldMarker):]
	j := strings.Index(rest, "{")
	if j < 0 {
		return nil, fmt.Errorf("csl: citation instruction has no JSON payload")
	}
	var c Citation
	dec := json.NewDecoder(strings.NewReader(rest[j:]))
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("csl: decode citation payload: %w", err)
	}
	if len(c.CitationItems) == 0 {
		return nil, fmt.Errorf("csl: citation payload has no citation items")
	}
	return &c, nil
}
