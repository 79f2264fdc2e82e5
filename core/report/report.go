// Package report collects the machine-readable outcome of one linking run.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Version is the report format version.
const Version = "1.0.0"

// Status values for reports.
const (
	StatusClean    = "clean"
	StatusWarnings = "warnings"
)

// Condition kinds recorded during a run.
const (
	CondSkippedField = "skipped_field"
	CondUnresolved   = "unresolved_reference"
	CondAmbiguous    = "ambiguous_reference"
)

// Fingerprint identifies the input document bytes.
type Fingerprint struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// FingerprintBytes hashes the raw document with both digests.
func FingerprintBytes(data []byte) *Fingerprint {
	sha := sha256.Sum256(data)
	b3 := blake3.Sum256(data)
	return &Fingerprint{
		SHA256: hex.EncodeToString(sha[:]),
		BLAKE3: hex.EncodeToString(b3[:]),
	}
}

// HookRun records one hook's pass over the document.
type HookRun struct {
	Hook       string `json:"hook"`
	Mutations  int    `json:"mutations"`
	DurationMS int64  `json:"duration_ms"`
}

// Condition is a soft problem recorded while the run continued.
type Condition struct {
	Kind    string `json:"kind"`
	Ordinal int    `json:"ordinal,omitempty"`
	Detail  string `json:"detail"`
}

// Report is the outcome of one run over one document.
type Report struct {
	ReportVersion string       `json:"report_version"`
	RunID         string       `json:"run_id"`
	Input         string       `json:"input,omitempty"`
	Fingerprint   *Fingerprint `json:"fingerprint,omitempty"`
	StartedAt     string       `json:"started_at"`
	FinishedAt    string       `json:"finished_at,omitempty"`

	Entries    int `json:"entries"`
	Citations  int `json:"citations"`
	CrossRefs  int `json:"crossrefs"`
	Linked     int `json:"linked"`
	Skipped    int `json:"skipped"`
	Unresolved int `json:"unresolved"`
	Ambiguous  int `json:"ambiguous"`

	HookRuns   []HookRun   `json:"hook_runs,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	Status     string      `json:"status,omitempty"`
}

// New opens a report for a run starting now.
func New(input string) *Report {
	return &Report{
		ReportVersion: Version,
		RunID:         uuid.New().String(),
		Input:         input,
		StartedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

// AddHookRun records one hook pass.
func (r *Report) AddHookRun(hook string, mutations int, d time.Duration) {
	r.HookRuns = append(r.HookRuns, HookRun{
		Hook:       hook,
		Mutations:  mutations,
		DurationMS: d.Milliseconds(),
	})
}

// AddCondition records a soft problem and bumps its counter.
func (r *Report) AddCondition(kind string, ordinal int, detail string) {
	r.Conditions = append(r.Conditions, Condition{Kind: kind, Ordinal: ordinal, Detail: detail})
	switch kind {
	case CondSkippedField:
		r.Skipped++
	case CondUnresolved:
		r.Unresolved++
	case CondAmbiguous:
		r.Ambiguous++
	}
}

// Finish stamps the end time and settles the status.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if len(r.Conditions) == 0 {
		r.Status = StatusClean
	} else {
		r.Status = StatusWarnings
	}
}

// ToJSON serializes the report to JSON.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Render writes a human-readable summary.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "run %s", r.RunID)
	if r.Input != "" {
		fmt.Fprintf(w, "  %s", r.Input)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "entries %d  citations %d  crossrefs %d\n", r.Entries, r.Citations, r.CrossRefs)
	fmt.Fprintf(w, "linked %d  skipped %d  unresolved %d  ambiguous %d\n",
		r.Linked, r.Skipped, r.Unresolved, r.Ambiguous)
	if len(r.HookRuns) > 0 {
		fmt.Fprintln(w, "hooks:")
		for _, h := range r.HookRuns {
			fmt.Fprintf(w, "  %-12s %4d mutations  %dms\n", h.Hook, h.Mutations, h.DurationMS)
		}
	}
	if len(r.Conditions) > 0 {
		fmt.Fprintln(w, "conditions:")
		for _, c := range r.Conditions {
			if c.Ordinal > 0 {
				fmt.Fprintf(w, "  [%s] #%d: %s\n", c.Kind, c.Ordinal, c.Detail)
			} else {
				fmt.Fprintf(w, "  [%s] %s\n", c.Kind, c.Detail)
			}
		}
	}
	if r.Status != "" {
		fmt.Fprintf(w, "status: %s\n", r.Status)
	}
}
