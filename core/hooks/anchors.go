package hooks

import (
	"github.com/citekit/citelink/core/pipeline"
	"github.com/citekit/citelink/core/scan"
)

func init() {
	pipeline.RegisterHook("anchors", func(cfg *pipeline.Config) (pipeline.Hook, bool) {
		return anchorsHook{}, true
	})
}

// anchorsHook attaches one named anchor to every bibliography entry. Anchors
// left behind by a previous run are removed first, so reprocessing a saved
// document is stable.
type anchorsHook struct{}

func (anchorsHook) Name() string { return "anchors" }

func (anchorsHook) Collect(rs *pipeline.RunState) ([]pipeline.Mutation, error) {
	muts := make([]pipeline.Mutation, 0, len(rs.Scan.Entries))
	for _, e := range rs.Scan.Entries {
		muts = append(muts, anchorMutation(e))
	}
	return muts, nil
}

func anchorMutation(e *scan.Entry) pipeline.Mutation {
	return pipeline.Mutation{
		Kind:   "anchor",
		Target: e.Anchor,
		Apply: func() error {
			for _, name := range e.Span.Anchors() {
				if err := e.Span.RemoveAnchor(name); err != nil {
					return err
				}
			}
			return e.Span.AddAnchor(e.Anchor)
		},
	}
}
