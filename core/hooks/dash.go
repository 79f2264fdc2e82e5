package hooks

import (
	"unicode"

	"github.com/citekit/citelink/core/document"
	"github.com/citekit/citelink/core/pipeline"
)

func init() {
	pipeline.RegisterHook("dash", func(cfg *pipeline.Config) (pipeline.Hook, bool) {
		return dashHook{}, cfg.DashCorrection
	})
}

// dashHook replaces the hyphen-minus in page ranges with an en dash. Only
// hyphens flanked by a digit on both sides qualify; hyphenated words stay
// untouched. Replaced text contains no qualifying hyphen, so a second run
// collects nothing.
type dashHook struct{}

func (dashHook) Name() string { return "dash" }

func (dashHook) Collect(rs *pipeline.RunState) ([]pipeline.Mutation, error) {
	var muts []pipeline.Mutation
	for _, e := range rs.Scan.Entries {
		runes := []rune(e.Span.Text())
		for i := 1; i < len(runes)-1; i++ {
			if runes[i] != '-' || !unicode.IsDigit(runes[i-1]) || !unicode.IsDigit(runes[i+1]) {
				continue
			}
			i := i
			span := e.Span
			muts = append(muts, pipeline.Mutation{
				Kind:   "dash",
				Target: e.Anchor,
				Apply: func() error {
					sub, err := span.Slice(i, i+1)
					if err != nil {
						return err
					}
					return sub.ReplaceWith("–", document.StyleFlags{})
				},
			})
		}
	}
	return muts, nil
}
