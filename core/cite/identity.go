package cite

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Identity is the parsed identity of one cited work. It is a closed
// variant: AuthorYear for author-year styles, Numeric for numbered styles
// and Key when the citation carries a resolvable item key.
type Identity interface {
	// Token returns the normalized lookup token for the identity.
	Token() string
	isIdentity()
}

// AuthorYear identifies a work by first-author surname and publication
// year, with an optional disambiguation suffix ("a", "b", ...).
type AuthorYear struct {
	Surname string
	Year    string
	Suffix  string
}

func (AuthorYear) isIdentity() {}

// Token returns the normalized author-year token including the suffix.
func (a AuthorYear) Token() string {
	return AuthorYearToken(a.Surname, a.Year, a.Suffix)
}

// BaseToken returns the normalized token without the disambiguation
// suffix, used to detect collisions.
func (a AuthorYear) BaseToken() string {
	return AuthorYearToken(a.Surname, a.Year, "")
}

// Numeric identifies a work by its bibliography ordinal.
type Numeric struct {
	Ordinal int
}

func (Numeric) isIdentity() {}

// Token returns the ordinal in decimal form.
func (n Numeric) Token() string { return strconv.Itoa(n.Ordinal) }

// Key identifies a work by its reference-manager item key.
type Key struct {
	ItemKey string
}

func (Key) isIdentity() {}

// Token returns the item key unchanged.
func (k Key) Token() string { return k.ItemKey }

// AuthorYearToken builds the normalized lookup token for an author-year
// identity: the surname case-folded with whitespace collapsed, the
// four-digit year, and the suffix when present.
func AuthorYearToken(surname, year, suffix string) string {
	return FoldName(surname) + "-" + year + suffix
}

// FoldName normalizes a name for matching: Unicode case folding with
// runs of whitespace collapsed to single spaces.
func FoldName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// NameMatches reports whether the normalized needle occurs in the
// normalized haystack. Matching is by containment because rendered
// citations join authors with connectives ("Lee & Wu", "柯琳 and Marcus")
// that the bibliography renders differently.
func NameMatches(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(FoldName(haystack), FoldName(needle))
}
