package hooks

import (
	"strings"

	"github.com/citekit/citelink/core/document"
	"github.com/citekit/citelink/core/pipeline"
)

func init() {
	pipeline.RegisterHook("crossref", func(cfg *pipeline.Config) (pipeline.Hook, bool) {
		return crossrefHook{cfg: cfg}, len(cfg.KeyWords) > 0
	})
}

// crossrefHook styles cross-reference fields whose rendered text starts with
// one of the configured key words. No link is added; the host already
// navigates these fields.
type crossrefHook struct {
	cfg *pipeline.Config
}

func (crossrefHook) Name() string { return "crossref" }

func (h crossrefHook) Collect(rs *pipeline.RunState) ([]pipeline.Mutation, error) {
	flags := h.flags()
	if flags.IsZero() {
		return nil, nil
	}
	var muts []pipeline.Mutation
	for _, cr := range rs.Scan.CrossRefs {
		text := cr.Span.Text()
		if !h.matches(text) {
			continue
		}
		span := cr.Span
		muts = append(muts, pipeline.Mutation{
			Kind:   "crossref-style",
			Target: text,
			Apply:  func() error { return span.ApplyStyle(flags) },
		})
	}
	return muts, nil
}

func (h crossrefHook) matches(text string) bool {
	for _, kw := range h.cfg.KeyWords {
		if kw != "" && strings.HasPrefix(text, kw) {
			return true
		}
	}
	return false
}

func (h crossrefHook) flags() document.StyleFlags {
	var flags document.StyleFlags
	if h.cfg.Color >= 0 {
		flags.Color = document.Flag(h.cfg.Color)
	}
	if h.cfg.Bold {
		flags.Bold = document.Flag(true)
	}
	return flags
}
