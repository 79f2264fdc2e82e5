package hooks

import (
	"fmt"

	"github.com/citekit/citelink/core/document"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/core/pipeline"
	"github.com/citekit/citelink/core/scan"
)

func init() {
	pipeline.RegisterHook("italic", func(cfg *pipeline.Config) (pipeline.Hook, bool) {
		return italicHook{cfg: cfg}, cfg.SetContainerTitleItalic
	})
	RegisterItalicStrategy("metadata", metadataStrategy)
	RegisterItalicStrategy("cjk-brackets", cjkBracketsStrategy)
}

// Extent is a rune range within an entry's rendered text.
type Extent struct {
	Lo, Hi int
}

// ItalicStrategy locates the extents of a bibliography entry that should
// render italic. text is the entry's live text.
type ItalicStrategy func(text string, e *scan.Entry) []Extent

var italicStrategies = make(map[string]ItalicStrategy)

// RegisterItalicStrategy registers a container-title recognizer under a
// style identifier.
func RegisterItalicStrategy(name string, s ItalicStrategy) {
	italicStrategies[name] = s
}

// ItalicStrategies returns the registered style identifiers.
func ItalicStrategies() []string {
	names := make([]string, 0, len(italicStrategies))
	for name := range italicStrategies {
		names = append(names, name)
	}
	return names
}

// metadataStrategy italicizes the container title known from citation
// metadata, plus the publisher for CJK-language entries.
func metadataStrategy(text string, e *scan.Entry) []Extent {
	if e.Item == nil {
		return nil
	}
	var out []Extent
	if lo, hi, ok := findRuneRange(text, e.Item.ContainerTitle); ok {
		out = append(out, Extent{lo, hi})
	}
	if e.Item.IsCJK() {
		if lo, hi, ok := findRuneRange(text, e.Item.Publisher); ok {
			out = append(out, Extent{lo, hi})
		}
	}
	return out
}

// cjkBracketsStrategy italicizes titles enclosed in 《…》 marks.
func cjkBracketsStrategy(text string, e *scan.Entry) []Extent {
	var out []Extent
	start := -1
	i := 0
	for _, r := range text {
		switch r {
		case '《':
			start = i + 1
		case '》':
			if start >= 0 && i > start {
				out = append(out, Extent{start, i})
			}
			start = -1
		}
		i++
	}
	return out
}

// italicHook italicizes recognized container-title spans in bibliography
// entries. Spans that already render italic are left alone, so a second run
// collects nothing.
type italicHook struct {
	cfg *pipeline.Config
}

func (italicHook) Name() string { return "italic" }

func (h italicHook) Collect(rs *pipeline.RunState) ([]pipeline.Mutation, error) {
	name := h.cfg.ItalicStyle
	if name == "" {
		name = "metadata"
	}
	strategy, ok := italicStrategies[name]
	if !ok {
		return nil, cerrors.NewValidation("italic-style", fmt.Sprintf("unknown strategy %q", name))
	}

	var muts []pipeline.Mutation
	for _, e := range rs.Scan.Entries {
		text := e.Span.Text()
		for _, ext := range strategy(text, e) {
			sub, err := e.Span.Slice(ext.Lo, ext.Hi)
			if err != nil {
				return nil, err
			}
			if sub.Italic() {
				continue
			}
			muts = append(muts, pipeline.Mutation{
				Kind:   "italic",
				Target: sub.Text(),
				Apply: func() error {
					return sub.ApplyStyle(document.StyleFlags{Italic: document.Flag(true)})
				},
			})
		}
	}
	return muts, nil
}
