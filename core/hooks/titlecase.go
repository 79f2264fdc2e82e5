package hooks

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/citekit/citelink/core/document"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/core/pipeline"
)

func init() {
	pipeline.RegisterHook("titlecase", func(cfg *pipeline.Config) (pipeline.Hook, bool) {
		return titlecaseHook{cfg: cfg}, cfg.TitleCaseMode != ""
	})
}

// titlecaseHook re-cases the title span of English bibliography entries.
// The span is located through the title known from citation metadata;
// entries without metadata, without a locatable title, or in another
// language are skipped.
type titlecaseHook struct {
	cfg *pipeline.Config
}

func (titlecaseHook) Name() string { return "titlecase" }

func (h titlecaseHook) Collect(rs *pipeline.RunState) ([]pipeline.Mutation, error) {
	mode := h.cfg.TitleCaseMode
	switch mode {
	case pipeline.TitleCaseAllUpper, pipeline.TitleCaseEveryWordUpper, pipeline.TitleCaseSentence:
	default:
		return nil, cerrors.NewValidation("title-case-mode", fmt.Sprintf("unknown mode %q", mode))
	}

	var muts []pipeline.Mutation
	for _, e := range rs.Scan.Entries {
		if e.Item == nil || e.Item.Title == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(e.Item.Language), "en") {
			continue
		}
		text := e.Span.Text()
		lo, hi, ok := findRuneRange(text, e.Item.Title)
		if !ok {
			continue
		}
		recased := Recase(e.Item.Title, mode, h.cfg.ProperNouns)
		if recased == e.Item.Title {
			continue
		}
		span := e.Span
		muts = append(muts, pipeline.Mutation{
			Kind:   "titlecase",
			Target: recased,
			Apply: func() error {
				sub, err := span.Slice(lo, hi)
				if err != nil {
					return err
				}
				return sub.ReplaceWith(recased, document.StyleFlags{})
			},
		})
	}
	return muts, nil
}

// Recase rewrites a title according to the given mode. Words matching an
// allow-list entry case-insensitively are substituted with the entry
// verbatim, whatever the mode says.
func Recase(title, mode string, properNouns []string) string {
	words := strings.Split(title, " ")
	out := make([]string, len(words))

	upper := cases.Upper(language.English)
	lower := cases.Lower(language.English)

	prev := ""
	for i, w := range words {
		switch {
		case w == "":
			out[i] = w
			continue
		case matchNoun(w, properNouns) != "":
			out[i] = matchNoun(w, properNouns)
		default:
			switch mode {
			case pipeline.TitleCaseAllUpper:
				out[i] = upper.String(w)
			case pipeline.TitleCaseEveryWordUpper:
				out[i] = titleFirst(w)
			case pipeline.TitleCaseSentence:
				if prev == "" || strings.HasSuffix(prev, ":") || strings.HasSuffix(prev, ".") {
					out[i] = titleFirst(lower.String(w))
				} else {
					out[i] = lower.String(w)
				}
			}
		}
		prev = w
	}
	return strings.Join(out, " ")
}

// titleFirst upcases the first rune and keeps the rest as written.
func titleFirst(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError && size <= 1 {
		return w
	}
	return string(unicode.ToTitle(r)) + w[size:]
}

func matchNoun(w string, nouns []string) string {
	for _, n := range nouns {
		if n != "" && strings.EqualFold(w, n) {
			return n
		}
	}
	return ""
}
