// Package pipeline orchestrates one linking run over one document: a single
// structural scan, anchor indexing, citation resolution, then the registered
// hooks in a fixed order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/citekit/citelink/core/anchor"
	"github.com/citekit/citelink/core/cite"
	"github.com/citekit/citelink/core/document"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/core/report"
	"github.com/citekit/citelink/core/resolve"
	"github.com/citekit/citelink/core/scan"
	"github.com/citekit/citelink/internal/logging"
)

// Title-case modes.
const (
	TitleCaseAllUpper       = "ALL_UPPER"
	TitleCaseEveryWordUpper = "EVERY_WORD_INITIAL_UPPER"
	TitleCaseSentence       = "SENTENCE_CASE"
)

// Config carries the per-run options shared by the scanner, resolver and
// hooks.
type Config struct {
	// Numbered switches citation parsing to numbered style.
	Numbered bool

	// Color is applied to linked citation text, as the host's decimal
	// color encoding. Negative leaves color untouched.
	Color int
	// NoUnderline strips the underline navigation references carry by
	// default.
	NoUnderline bool
	// Bold applies bold weight to linked citation text.
	Bold bool

	// KeyWords restricts cross-reference styling to fields whose rendered
	// text starts with one of these words. Empty disables the hook.
	KeyWords []string

	// SetContainerTitleItalic enables the italic-correction hook.
	SetContainerTitleItalic bool
	// ItalicStyle names the container-title recognition strategy.
	// Empty selects "metadata".
	ItalicStyle string

	// DashCorrection enables page-range dash replacement.
	DashCorrection bool

	// TitleCaseMode selects the title re-casing mode. Empty disables the
	// hook.
	TitleCaseMode string
	// ProperNouns are substituted verbatim after re-casing, matched
	// case-insensitively.
	ProperNouns []string

	// Policy picks the fallback for ambiguous author-year references.
	Policy resolve.AmbiguityPolicy

	// Metadata resolves item keys when embedded payloads are incomplete.
	// Nil disables remote lookups.
	Metadata cite.MetadataResolver
}

// DefaultConfig mirrors the original tool's defaults: no recoloring, no
// underline, container titles italicized.
func DefaultConfig() *Config {
	return &Config{
		Color:                   -1,
		NoUnderline:             true,
		SetContainerTitleItalic: true,
	}
}

// RunState is the shared snapshot every hook observes. The scan is never
// re-run mid-pipeline, so hooks must not assume another hook's document
// mutations are visible here.
type RunState struct {
	Scan     *scan.Result
	Index    *anchor.Index
	Resolved []*resolve.Resolved
	Config   *Config
	Report   *report.Report
}

// Mutation is one pending document edit produced by a hook.
type Mutation struct {
	Kind   string
	Target string
	Apply  func() error
}

// Hook turns the run state into document mutations.
type Hook interface {
	Name() string
	Collect(rs *RunState) ([]Mutation, error)
}

// Factory builds a hook from configuration. The second return reports
// whether the configuration enables the hook at all.
type Factory func(cfg *Config) (Hook, bool)

var hookRegistry = make(map[string]Factory)

// hookOrder is the fixed execution order. Anchor attachment and link
// rewriting are hooks like the style corrections, so the order is one list.
var hookOrder = []string{"anchors", "links", "crossref", "italic", "dash", "titlecase"}

// RegisterHook registers a hook factory by name. Hook packages call this
// from init().
func RegisterHook(name string, f Factory) {
	hookRegistry[name] = f
}

// ClearHooks empties the hook registry (for testing).
func ClearHooks() {
	hookRegistry = make(map[string]Factory)
}

// RegisteredHooks returns the registered hook names in execution order.
func RegisteredHooks() []string {
	names := make([]string, 0, len(hookOrder))
	for _, name := range hookOrder {
		if _, ok := hookRegistry[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// State of a runner.
type State int

const (
	// StateNew is the state before Run.
	StateNew State = iota
	// StateScanned means the structural scan completed and hooks are
	// executing over its snapshot.
	StateScanned
	// StateCommitted means every hook ran and the document carries the
	// mutations.
	StateCommitted
)

// Runner drives one run over one document handle. A Runner is single-use.
type Runner struct {
	cfg   *Config
	state State
}

// New returns a runner for the given configuration. Nil means defaults.
func New(cfg *Config) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Runner{cfg: cfg}
}

// State reports the runner's lifecycle state.
func (r *Runner) State() State { return r.state }

// Run executes the pipeline: scan, index, resolve, hooks. Soft conditions
// (skipped fields, unresolved or ambiguous references) are recorded on the
// report and never abort; only accessor failures return an error. Saving is
// the caller's business: on error the document handle must be discarded
// unsaved.
func (r *Runner) Run(ctx context.Context, acc document.Accessor, rep *report.Report) error {
	ctx = logging.WithRunID(ctx, rep.RunID)

	sc, err := scan.Scan(ctx, acc, scan.Options{
		Numbered: r.cfg.Numbered,
		Metadata: r.cfg.Metadata,
	})
	if err != nil {
		return cerrors.Wrap(err, "document scan failed")
	}
	r.state = StateScanned

	idx := anchor.Build(sc.Entries, sc.Citations)
	resolver := &resolve.Resolver{Index: idx, Policy: r.cfg.Policy}
	resolved := resolver.ResolveAll(sc.Citations)

	rs := &RunState{Scan: sc, Index: idx, Resolved: resolved, Config: r.cfg, Report: rep}
	r.record(rs, rep)

	for _, name := range hookOrder {
		factory, ok := hookRegistry[name]
		if !ok {
			continue
		}
		hook, enabled := factory(r.cfg)
		if !enabled {
			continue
		}
		start := time.Now()
		muts, err := hook.Collect(rs)
		if err != nil {
			return cerrors.Wrapf(err, "hook %s failed", name)
		}
		for _, m := range muts {
			if err := m.Apply(); err != nil {
				return cerrors.Wrapf(err, "hook %s: %s %s failed", name, m.Kind, m.Target)
			}
		}
		rep.AddHookRun(name, len(muts), time.Since(start))
		logging.HookApplied(name, len(muts), time.Since(start))
	}

	r.state = StateCommitted
	rep.Finish()
	logging.InfoContext(ctx, "run complete",
		"entries", rep.Entries,
		"citations", rep.Citations,
		"linked", rep.Linked,
		"status", rep.Status)
	return nil
}

// record transfers scan and resolution outcomes onto the report.
func (r *Runner) record(rs *RunState, rep *report.Report) {
	rep.Entries = len(rs.Scan.Entries)
	rep.Citations = len(rs.Scan.Citations)
	rep.CrossRefs = len(rs.Scan.CrossRefs)

	for _, mf := range rs.Scan.Skipped {
		rep.AddCondition(report.CondSkippedField, mf.FieldOrdinal, mf.Detail)
	}
	for _, res := range rs.Resolved {
		rep.Linked += len(res.Pairs)
		for _, token := range res.Unresolved {
			rep.AddCondition(report.CondUnresolved, res.Citation.Ordinal, token)
		}
		for _, w := range res.Warnings {
			var amb *cerrors.AmbiguousReferenceError
			if cerrors.As(w, &amb) {
				rep.AddCondition(report.CondAmbiguous, amb.CitationOrdinal,
					fmt.Sprintf("%s resolved to %s", amb.Token, amb.Resolved))
			}
		}
	}
}
