package cite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// yearPattern matches year-like tokens (1900-2099) in rendered citation
// text, optionally carrying a disambiguation suffix: "2020", "2020a".
var yearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})([a-z])?\b`)

// entryYearPattern matches the publication year of a bibliography entry.
// Entry years are followed by punctuation ("(2020)." / "2020；"), which
// keeps volume and page numbers from being mistaken for years.
var entryYearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})([a-z])?[;；。，：:.,)）]`)

// intPattern matches integer tokens in numbered citation text.
var intPattern = regexp.MustCompile(`[0-9]+`)

// YearToken is a year-like token located in rendered citation text.
// Offsets are rune-based, relative to the scanned text.
type YearToken struct {
	Year   string
	Suffix string
	Lo, Hi int
}

// YearTokens scans text for year-like tokens in order of appearance.
func YearTokens(text string) []YearToken {
	matches := yearPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	toks := make([]YearToken, 0, len(matches))
	for _, m := range matches {
		tok := YearToken{
			Year: text[m[2]:m[3]],
			Lo:   utf8.RuneCountInString(text[:m[0]]),
			Hi:   utf8.RuneCountInString(text[:m[1]]),
		}
		if m[4] >= 0 {
			tok.Suffix = text[m[4]:m[5]]
		}
		toks = append(toks, tok)
	}
	return toks
}

// NumericToken is an integer token located in rendered citation text.
// Offsets are rune-based, relative to the scanned text.
type NumericToken struct {
	Value  int
	Lo, Hi int
}

// NumericTokens scans text for integer tokens in order of appearance.
// Tokens too large for an int are skipped.
func NumericTokens(text string) []NumericToken {
	matches := intPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	toks := make([]NumericToken, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(text[m[0]:m[1]])
		if err != nil {
			continue
		}
		toks = append(toks, NumericToken{
			Value: n,
			Lo:    utf8.RuneCountInString(text[:m[0]]),
			Hi:    utf8.RuneCountInString(text[:m[1]]),
		})
	}
	return toks
}

// EntryYear extracts the publication year and rendered disambiguation
// suffix from a bibliography entry's text. The first punctuation-anchored
// year wins; entries whose year is not followed by punctuation fall back
// to the first bare year-like token.
func EntryYear(text string) (year, suffix string) {
	if m := entryYearPattern.FindStringSubmatch(text); m != nil {
		return m[1], m[2]
	}
	if m := yearPattern.FindStringSubmatch(text); m != nil {
		return m[1], m[2]
	}
	return "", ""
}

// entrySurnameDelims end the leading surname of a bibliography entry.
const entrySurnameDelims = ",.(（;；。，"

// EntrySurname extracts the first author's surname from a bibliography
// entry: the text before the first delimiter. Particles survive because
// spaces do not delimit ("van der Berg, J." yields "van der Berg").
func EntrySurname(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, entrySurnameDelims); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// numericLexer tokenizes numbered citation text such as "[1, 4, 7–9]".
var numericLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Dash", Pattern: `[-–—]`}, // hyphen-minus, en dash, em dash
	{Name: "Sep", Pattern: `[,;]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// numericRangeGrammar is one element of a numbered citation: a single
// ordinal or an inclusive range.
//
//nolint:govet // participle grammar tags are not standard struct tags
type numericRangeGrammar struct {
	Start int  `@Int`
	End   *int `( Dash @Int )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type numericListGrammar struct {
	Items []*numericRangeGrammar `@@ ( Sep @@ )*`
}

// numericParser parses numbered citation text.
var numericParser = participle.MustBuild[numericListGrammar](
	participle.Lexer(numericLexer),
	participle.Elide("Whitespace"),
)

// maxNumericRange caps how many ordinals a single range may expand to,
// guarding against runaway expansion from corrupted field text.
const maxNumericRange = 512

// ParseNumericList parses the rendered text of a numbered citation into
// its ordinal list, expanding ranges: "[3-5]" yields [3 4 5]. Enclosing
// brackets or parentheses are ignored.
func ParseNumericList(text string) ([]int, error) {
	trimmed := strings.Trim(strings.TrimSpace(text), "[]()（）")
	if trimmed == "" {
		return nil, fmt.Errorf("cite: no ordinals in %q", text)
	}
	parsed, err := numericParser.ParseString("", trimmed)
	if err != nil {
		return nil, fmt.Errorf("cite: invalid numbered citation %q: %w", text, err)
	}
	var ordinals []int
	for _, item := range parsed.Items {
		if item.End == nil {
			ordinals = append(ordinals, item.Start)
			continue
		}
		if *item.End < item.Start {
			return nil, fmt.Errorf("cite: reversed range %d-%d in %q", item.Start, *item.End, text)
		}
		if *item.End-item.Start > maxNumericRange {
			return nil, fmt.Errorf("cite: range %d-%d in %q is too wide", item.Start, *item.End, text)
		}
		for n := item.Start; n <= *item.End; n++ {
			ordinals = append(ordinals, n)
		}
	}
	return ordinals, nil
}

// clusterLexer tokenizes rendered author-year citation text. Year tokens
// are tried before general words so "2020a" lexes as a year, not a word.
// Full-width separators appear in CJK renderings.
var clusterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Year", Pattern: `(?:19|20)\d{2}[a-z]?`},
	{Name: "Word", Pattern: `[^\s,;，；()（）]+`},
	{Name: "Comma", Pattern: `[,，]`},
	{Name: "Semi", Pattern: `[;；]`},
	{Name: "Open", Pattern: `[(（]`},
	{Name: "Close", Pattern: `[)）]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// clusterSubGrammar is one cited work inside a rendered citation cluster:
// leading author text, the year token, and an optional locator.
//
//nolint:govet // participle grammar tags are not standard struct tags
type clusterSubGrammar struct {
	Lead    []string `( @Word | @Comma | @Open )*`
	Year    string   `@Year`
	Locator []string `( @Comma ( @Word | @Comma )+ )?`
	Close   []string `@Close*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type clusterGrammar struct {
	Subs []*clusterSubGrammar `@@ ( ( Semi | Comma ) @@ )*`
	Tail []string             `( @Word | @Comma | @Open | @Close )*`
}

// clusterParser parses rendered author-year citation clusters such as
// "(Smith, 2020a; Lee & Wu, 2021, p. 3)". Two tokens of lookahead
// separate a locator comma from the comma before a follow-up year.
var clusterParser = participle.MustBuild[clusterGrammar](
	participle.Lexer(clusterLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// RenderedSub is one cited work as it appears in rendered citation text.
// Lo and Hi are the rune offsets of the year token (suffix included)
// within the text the cluster was parsed from.
type RenderedSub struct {
	AuthorsText string
	Year        string
	Suffix      string
	Locator     string
	Lo, Hi      int
}

// ParseRenderedCluster parses the rendered text of an author-year citation
// into its sub-citations. The cluster grammar recovers author and locator
// text; when it cannot parse the cluster, the split falls back to the text
// between year tokens. A sub-citation rendered without author text ("Smith
// (2020, 2021)") inherits the authors of the preceding one. Returns nil
// when the text contains no year tokens.
func ParseRenderedCluster(text string) []RenderedSub {
	toks := YearTokens(text)
	if len(toks) == 0 {
		return nil
	}
	subs := clusterSubs(text, toks)
	if subs == nil {
		subs = splitSubs(text, toks)
	}
	for i := range subs {
		if subs[i].AuthorsText == "" && i > 0 {
			subs[i].AuthorsText = subs[i-1].AuthorsText
		}
	}
	return subs
}

// clusterSubs extracts sub-citations via the cluster grammar. Returns nil
// when the grammar cannot account for every year token the scan found.
func clusterSubs(text string, toks []YearToken) []RenderedSub {
	parsed, err := clusterParser.ParseString("", text)
	if err != nil || len(parsed.Subs) != len(toks) {
		return nil
	}
	subs := make([]RenderedSub, len(toks))
	for i, sub := range parsed.Subs {
		if !strings.HasPrefix(sub.Year, toks[i].Year) {
			return nil
		}
		subs[i] = RenderedSub{
			AuthorsText: cleanAuthors(strings.Join(sub.Lead, " ")),
			Year:        toks[i].Year,
			Suffix:      toks[i].Suffix,
			Locator:     cleanLocator(strings.Join(sub.Locator, " ")),
			Lo:          toks[i].Lo,
			Hi:          toks[i].Hi,
		}
	}
	return subs
}

// splitSubs extracts sub-citations by splitting on year tokens: the author
// text of a sub-citation is whatever was rendered since the previous year.
func splitSubs(text string, toks []YearToken) []RenderedSub {
	runes := []rune(text)
	subs := make([]RenderedSub, len(toks))
	prev := 0
	for i, tok := range toks {
		subs[i] = RenderedSub{
			AuthorsText: cleanAuthors(string(runes[prev:tok.Lo])),
			Year:        tok.Year,
			Suffix:      tok.Suffix,
			Lo:          tok.Lo,
			Hi:          tok.Hi,
		}
		prev = tok.Hi
	}
	return subs
}

// cleanAuthors trims separators and brackets from the edges of rendered
// author text, keeping connectives ("&", "and") intact.
func cleanAuthors(s string) string {
	return strings.Trim(s, " \t,;:.&，；：()（）[]")
}

// cleanLocator trims separator noise from a captured locator.
func cleanLocator(s string) string {
	return strings.Trim(s, " \t,;，；()（）")
}
