package hooks

import (
	"strings"
	"unicode/utf8"

	"github.com/citekit/citelink/core/document"
	"github.com/citekit/citelink/core/pipeline"
	"github.com/citekit/citelink/core/resolve"
)

func init() {
	pipeline.RegisterHook("links", func(cfg *pipeline.Config) (pipeline.Hook, bool) {
		return linksHook{cfg: cfg}, true
	})
}

// linksHook wraps each resolved sub-citation's rendered token in a
// navigation reference to its bibliography anchor and applies the configured
// character styling to the citation text. Visible text never changes.
type linksHook struct {
	cfg *pipeline.Config
}

func (linksHook) Name() string { return "links" }

func (h linksHook) Collect(rs *pipeline.RunState) ([]pipeline.Mutation, error) {
	var muts []pipeline.Mutation
	for _, res := range rs.Resolved {
		if len(res.Pairs) == 0 {
			continue
		}
		res := res
		muts = append(muts, pipeline.Mutation{
			Kind:   "link",
			Target: res.Pairs[0].Anchor,
			Apply:  func() error { return h.apply(res) },
		})
	}
	return muts, nil
}

func (h linksHook) apply(res *resolve.Resolved) error {
	span := res.Citation.Span
	text := res.Citation.Text

	if flags := h.textFlags(); !flags.IsZero() {
		target := span
		if lo, hi, ok := insideParens(text); ok {
			s, err := span.Slice(lo, hi)
			if err != nil {
				return err
			}
			target = s
		}
		if err := target.ApplyStyle(flags); err != nil {
			return err
		}
	}

	for _, p := range res.Pairs {
		target := span
		if p.HasToken() {
			s, err := span.Slice(p.Lo, p.Hi)
			if err != nil {
				return err
			}
			target = s
		} else if len(res.Pairs) > 1 {
			// In a cluster, a pair without a rendered token has nothing
			// of its own to wrap.
			continue
		}
		if err := target.AddNavigationReferenceTo(p.Anchor); err != nil {
			return err
		}
		if h.cfg.NoUnderline {
			err := target.ApplyStyle(document.StyleFlags{Underline: document.Flag(false)})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// textFlags builds the styling for the citation text as a whole.
func (h linksHook) textFlags() document.StyleFlags {
	var flags document.StyleFlags
	if h.cfg.Color >= 0 {
		flags.Color = document.Flag(h.cfg.Color)
	}
	if h.cfg.Bold {
		flags.Bold = document.Flag(true)
	}
	return flags
}

// insideParens returns the rune extent of text with one enclosing
// parenthesis pair stripped, so the parentheses keep their styling.
func insideParens(text string) (lo, hi int, ok bool) {
	if !strings.HasPrefix(text, "(") || !strings.HasSuffix(text, ")") {
		return 0, 0, false
	}
	n := utf8.RuneCountInString(text)
	if n < 2 {
		return 0, 0, false
	}
	return 1, n - 1, true
}
