// Package resolve maps scanned citations onto bibliography anchors.
package resolve

import (
	"github.com/citekit/citelink/core/anchor"
	"github.com/citekit/citelink/core/cite"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/core/scan"
	"github.com/citekit/citelink/internal/logging"
)

// AmbiguityPolicy selects how a citation is resolved when several
// bibliography entries share its (surname, year) pair.
type AmbiguityPolicy int

const (
	// PolicySuffixFromText recovers the disambiguation suffix from the
	// citation's rendered text and falls back to the first match with a
	// warning when none is rendered.
	PolicySuffixFromText AmbiguityPolicy = iota
	// PolicyFirstMatch never consults the rendered text and always takes
	// the first match, with a warning.
	PolicyFirstMatch
)

// Pair binds one resolved identity to its anchor. Lo and Hi mark the
// rendered token (year or ordinal) the rewriter should wrap, as rune
// offsets into the citation text; Lo == Hi means the citation renders no
// token for this identity and the pair stays unlinked.
type Pair struct {
	Identity cite.Identity
	Anchor   string
	Lo, Hi   int
}

// HasToken reports whether the pair owns a rendered sub-span.
func (p Pair) HasToken() bool { return p.Hi > p.Lo }

// Resolved is the outcome of resolving one citation. Unresolved holds the
// identity tokens with no matching anchor; Warnings carries the soft
// conditions recorded along the way. Neither aborts the pipeline.
type Resolved struct {
	Citation   *scan.Citation
	Pairs      []Pair
	Unresolved []string
	Warnings   []error
}

// Resolver resolves citations against a built anchor index.
type Resolver struct {
	Index  *anchor.Index
	Policy AmbiguityPolicy
}

// ResolveAll resolves every citation in scan order.
func (r *Resolver) ResolveAll(citations []*scan.Citation) []*Resolved {
	out := make([]*Resolved, 0, len(citations))
	for _, c := range citations {
		out = append(out, r.Resolve(c))
	}
	return out
}

// Resolve maps one citation's identities onto anchors. Precedence per
// identity: item key, author-year token, numeric ordinal.
func (r *Resolver) Resolve(c *scan.Citation) *Resolved {
	res := &Resolved{Citation: c}
	if c.Style == scan.StyleNumbered {
		r.resolveNumbered(c, res)
	} else {
		r.resolveAuthorYear(c, res)
	}
	return res
}

func (r *Resolver) resolveNumbered(c *scan.Citation, res *Resolved) {
	consumed := make([]bool, len(c.NumTokens))
	for _, ord := range c.Ordinals {
		id := cite.Numeric{Ordinal: ord}
		lo, hi := takeNumToken(c.NumTokens, consumed, ord)
		a, ok := r.Index.AnchorForOrdinal(ord)
		if !ok {
			res.miss(id.Token(), c.Ordinal)
			continue
		}
		res.Pairs = append(res.Pairs, Pair{Identity: id, Anchor: a, Lo: lo, Hi: hi})
	}
}

func (r *Resolver) resolveAuthorYear(c *scan.Citation, res *Resolved) {
	consumed := make([]bool, len(c.Subs))
	for _, ref := range c.Refs {
		sub := takeSub(c.Subs, consumed, ref)

		if ref.Key != "" {
			if a, ok := r.Index.AnchorForKey(ref.Key); ok {
				res.add(cite.Key{ItemKey: ref.Key}, a, sub)
				continue
			}
		}

		if ref.Surname == "" || ref.Year == "" {
			token := ref.Key
			if token == "" && sub != nil {
				token = cite.AuthorYearToken(sub.AuthorsText, sub.Year, sub.Suffix)
			}
			res.miss(token, c.Ordinal)
			continue
		}

		suffix := ""
		if r.Policy == PolicySuffixFromText && sub != nil {
			suffix = sub.Suffix
		}
		if suffix != "" {
			token := cite.AuthorYearToken(ref.Surname, ref.Year, suffix)
			if a, ok := r.Index.AnchorForToken(token); ok {
				res.add(cite.AuthorYear{Surname: ref.Surname, Year: ref.Year, Suffix: suffix}, a, sub)
				continue
			}
		}

		id := cite.AuthorYear{Surname: ref.Surname, Year: ref.Year}
		group := r.Index.AnchorsForBase(id.Token())
		switch len(group) {
		case 0:
			res.miss(id.Token(), c.Ordinal)
		case 1:
			res.add(id, group[0], sub)
		default:
			res.Warnings = append(res.Warnings,
				cerrors.NewAmbiguousReference(id.Token(), c.Ordinal, group[0]))
			logging.CitationAmbiguous(c.Ordinal, id.Token(), group[0])
			res.add(id, group[0], sub)
		}
	}
}

func (res *Resolved) add(id cite.Identity, a string, sub *cite.RenderedSub) {
	p := Pair{Identity: id, Anchor: a}
	if sub != nil {
		p.Lo, p.Hi = sub.Lo, sub.Hi
	}
	res.Pairs = append(res.Pairs, p)
}

func (res *Resolved) miss(token string, citationOrdinal int) {
	res.Unresolved = append(res.Unresolved, token)
	res.Warnings = append(res.Warnings,
		cerrors.NewUnresolvedReference(token, citationOrdinal))
	logging.CitationUnresolved(citationOrdinal, token)
}

// takeSub claims the rendered sub-citation belonging to ref. Matching is by
// year plus author containment first, then by year alone, left to right over
// unconsumed subs. Claimed subs stay claimed even when resolution later
// fails, keeping positional alignment for the rest of the cluster.
func takeSub(subs []cite.RenderedSub, consumed []bool, ref scan.Ref) *cite.RenderedSub {
	if ref.Year != "" {
		for i := range subs {
			if consumed[i] || subs[i].Year != ref.Year {
				continue
			}
			if subs[i].AuthorsText == "" || ref.Surname == "" ||
				cite.NameMatches(subs[i].AuthorsText, ref.Surname) {
				consumed[i] = true
				return &subs[i]
			}
		}
		for i := range subs {
			if !consumed[i] && subs[i].Year == ref.Year {
				consumed[i] = true
				return &subs[i]
			}
		}
	}
	return nil
}

// takeNumToken claims the first unconsumed rendered integer equal to ord.
// Ordinals inside a collapsed range render no token of their own.
func takeNumToken(toks []cite.NumericToken, consumed []bool, ord int) (lo, hi int) {
	for i := range toks {
		if !consumed[i] && toks[i].Value == ord {
			consumed[i] = true
			return toks[i].Lo, toks[i].Hi
		}
	}
	return 0, 0
}
