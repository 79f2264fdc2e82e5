// Command citelink links in-text citations to their bibliography entries
// in .docx manuscripts written with a reference manager.
// It provides commands for linking, inspecting manuscripts, and managing
// the metadata cache.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/citekit/citelink/core/anchor"
	"github.com/citekit/citelink/core/docx"
	"github.com/citekit/citelink/core/ooxml"
	"github.com/citekit/citelink/core/pipeline"
	"github.com/citekit/citelink/core/report"
	"github.com/citekit/citelink/core/resolve"
	"github.com/citekit/citelink/core/scan"
	"github.com/citekit/citelink/core/sqlite"
	"github.com/citekit/citelink/internal/fileutil"
	"github.com/citekit/citelink/internal/logging"
	"github.com/citekit/citelink/internal/validation"
	"github.com/citekit/citelink/internal/zotero"

	// Import hooks so every pipeline stage registers itself.
	_ "github.com/citekit/citelink/core/hooks"
)

const version = "0.1.0"

// CLI defines the command-line interface for citelink.
var CLI struct {
	// Global flags
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string `name:"log-format" help:"Log format" enum:"text,json" default:"text"`

	Link    LinkCmd    `cmd:"" help:"Link citations to bibliography entries in a manuscript"`
	Inspect InspectCmd `cmd:"" help:"Print a manuscript's citation structure without modifying it"`
	Cache   CacheGroup `cmd:"" help:"Metadata cache operations (info, clear)"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// LinkCmd runs the full linking pipeline over a manuscript and saves the
// result, keeping a backup when the input is overwritten in place.
type LinkCmd struct {
	Path string `arg:"" help:"Path to .docx manuscript" type:"existingfile"`
	Out  string `short:"o" help:"Output path (default: overwrite input, keeping a backup)" type:"path"`

	Numbered bool `help:"Citations are numbered ([3], [4-6]) rather than author-year"`

	Color     int  `help:"Decimal RGB color applied to linked citation text (-1 keeps the original)" default:"-1"`
	Underline bool `help:"Keep the underline that inserted hyperlinks carry by default"`
	Bold      bool `help:"Bold linked citation text"`

	Keyword []string `help:"Style cross-reference fields whose text starts with this word (repeatable)"`

	NoItalic    bool   `name:"no-italic" help:"Leave container titles in bibliography entries unstyled"`
	ItalicStyle string `name:"italic-style" help:"Container-title recognition strategy" enum:"metadata,cjk-brackets" default:"metadata"`

	Dash bool `help:"Replace hyphens in bibliography page ranges with en dashes"`

	TitleCase  string   `name:"title-case" help:"Re-case bibliography titles" enum:"none,ALL_UPPER,EVERY_WORD_INITIAL_UPPER,SENTENCE_CASE" default:"none"`
	ProperNoun []string `name:"proper-noun" help:"Word kept verbatim when re-casing titles (repeatable)"`

	Ambiguity string `help:"Fallback when an author-year citation matches several entries" enum:"suffix,first" default:"suffix"`

	ZoteroUser string `name:"zotero-user" help:"Zotero user ID enabling metadata fallback lookups" env:"ZOTERO_USER_ID"`
	ZoteroKey  string `name:"zotero-key" help:"Zotero API key" env:"ZOTERO_API_KEY"`
	CacheDB    string `name:"cache-db" help:"Metadata cache database path" type:"path"`

	JSON bool `help:"Print the run report as JSON"`
}

// Run executes the link command.
func (c *LinkCmd) Run() error {
	if err := validation.ValidatePath(c.Path); err != nil {
		return fmt.Errorf("invalid manuscript path: %w", err)
	}
	if c.Out != "" {
		if err := validation.ValidateFilename(filepath.Base(c.Out)); err != nil {
			return fmt.Errorf("invalid output name: %w", err)
		}
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("failed to read manuscript: %w", err)
	}
	if _, err := validation.ValidateFileType(bytes.NewReader(data), c.Path); err != nil {
		return err
	}

	doc, err := docx.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to open manuscript: %w", err)
	}

	cfg := pipeline.DefaultConfig()
	cfg.Numbered = c.Numbered
	cfg.Color = c.Color
	cfg.NoUnderline = !c.Underline
	cfg.Bold = c.Bold
	cfg.KeyWords = c.Keyword
	cfg.SetContainerTitleItalic = !c.NoItalic
	cfg.ItalicStyle = c.ItalicStyle
	cfg.DashCorrection = c.Dash
	if c.TitleCase != "none" {
		cfg.TitleCaseMode = c.TitleCase
	}
	cfg.ProperNouns = c.ProperNoun
	if c.Ambiguity == "first" {
		cfg.Policy = resolve.PolicyFirstMatch
	}

	if c.ZoteroUser != "" {
		client, err := zotero.NewClient(zotero.Config{
			UserID:    c.ZoteroUser,
			APIKey:    c.ZoteroKey,
			CachePath: cacheDBPath(c.CacheDB),
		})
		if err != nil {
			return fmt.Errorf("failed to create metadata client: %w", err)
		}
		defer client.Close()
		cfg.Metadata = client
	}

	rep := report.New(c.Path)
	rep.Fingerprint = report.FingerprintBytes(data)

	runner := pipeline.New(cfg)
	if err := runner.Run(context.Background(), doc, rep); err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		out = c.Path
	}
	var backup string
	if out == c.Path {
		backup, err = fileutil.Backup(c.Path)
		if err != nil {
			return fmt.Errorf("failed to back up manuscript: %w", err)
		}
	}
	if err := doc.Save(out); err != nil {
		return fmt.Errorf("failed to save manuscript: %w", err)
	}

	if c.JSON {
		output, err := rep.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to serialize report: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	rep.Render(os.Stdout)
	if backup != "" {
		fmt.Printf("Backup: %s\n", backup)
	}
	fmt.Printf("Saved: %s\n", out)
	return nil
}

// InspectCmd scans a manuscript and prints what the pipeline would see:
// bibliography entries with their anchor names, citations with the anchors
// they resolve to, and any fields the scanner skipped.
type InspectCmd struct {
	Path     string `arg:"" help:"Path to .docx manuscript" type:"existingfile"`
	Numbered bool   `help:"Citations are numbered rather than author-year"`
	JSON     bool   `help:"Output as JSON"`
	XML      bool   `help:"Pretty-print the main document part instead of the scan"`
}

// Run executes the inspect command.
func (c *InspectCmd) Run() error {
	doc, err := docx.Open(c.Path)
	if err != nil {
		return err
	}

	if c.XML {
		return dumpDocumentXML(doc)
	}

	result, err := scan.Scan(context.Background(), doc, scan.Options{Numbered: c.Numbered})
	if err != nil {
		return err
	}

	idx := anchor.Build(result.Entries, result.Citations)
	resolver := &resolve.Resolver{Index: idx}
	resolved := resolver.ResolveAll(result.Citations)

	if c.JSON {
		output, _ := json.MarshalIndent(inspectSummary(c.Path, result, resolved), "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Manuscript: %s\n", c.Path)
	fmt.Printf("\nBibliography entries: %d\n", len(result.Entries))
	for _, e := range result.Entries {
		fmt.Printf("  [%d] %s", e.Ordinal, e.Anchor)
		if e.Surname != "" {
			fmt.Printf("  (%s %s%s)", e.Surname, e.Year, e.Suffix)
		}
		fmt.Printf("  %s\n", truncate(e.Text, 60))
	}

	fmt.Printf("\nCitations: %d\n", len(result.Citations))
	for _, res := range resolved {
		cit := res.Citation
		fmt.Printf("  [%d] %s  %s\n", cit.Ordinal, cit.Style, truncate(cit.Text, 60))
		for _, p := range res.Pairs {
			fmt.Printf("      %s -> %s\n", p.Identity.Token(), p.Anchor)
		}
		for _, token := range res.Unresolved {
			fmt.Printf("      %s -> (unresolved)\n", token)
		}
	}

	if len(result.CrossRefs) > 0 {
		fmt.Printf("\nCross-references: %d\n", len(result.CrossRefs))
		for _, cr := range result.CrossRefs {
			fmt.Printf("  [%d] %s\n", cr.Ordinal, truncate(cr.Span.Text(), 60))
		}
	}

	if len(result.Skipped) > 0 {
		fmt.Printf("\nSkipped fields: %d\n", len(result.Skipped))
		for _, mf := range result.Skipped {
			fmt.Printf("  field #%d: %s\n", mf.FieldOrdinal, mf.Detail)
		}
	}
	return nil
}

// inspectEntry is one bibliography entry in JSON inspect output.
type inspectEntry struct {
	Ordinal int    `json:"ordinal"`
	Anchor  string `json:"anchor"`
	Surname string `json:"surname,omitempty"`
	Year    string `json:"year,omitempty"`
	Suffix  string `json:"suffix,omitempty"`
	Text    string `json:"text"`
}

// inspectCitation is one citation in JSON inspect output.
type inspectCitation struct {
	Ordinal    int               `json:"ordinal"`
	Style      string            `json:"style"`
	Text       string            `json:"text"`
	Anchors    map[string]string `json:"anchors,omitempty"`
	Unresolved []string          `json:"unresolved,omitempty"`
}

// inspectReport is the JSON shape of the inspect command.
type inspectReport struct {
	Manuscript string            `json:"manuscript"`
	Entries    []inspectEntry    `json:"entries"`
	Citations  []inspectCitation `json:"citations"`
	CrossRefs  int               `json:"cross_refs"`
	Skipped    []string          `json:"skipped,omitempty"`
}

func inspectSummary(path string, result *scan.Result, resolved []*resolve.Resolved) inspectReport {
	rep := inspectReport{
		Manuscript: path,
		Entries:    make([]inspectEntry, 0, len(result.Entries)),
		Citations:  make([]inspectCitation, 0, len(resolved)),
		CrossRefs:  len(result.CrossRefs),
	}
	for _, e := range result.Entries {
		rep.Entries = append(rep.Entries, inspectEntry{
			Ordinal: e.Ordinal,
			Anchor:  e.Anchor,
			Surname: e.Surname,
			Year:    e.Year,
			Suffix:  e.Suffix,
			Text:    e.Text,
		})
	}
	for _, res := range resolved {
		ic := inspectCitation{
			Ordinal:    res.Citation.Ordinal,
			Style:      res.Citation.Style.String(),
			Text:       res.Citation.Text,
			Unresolved: res.Unresolved,
		}
		if len(res.Pairs) > 0 {
			ic.Anchors = make(map[string]string, len(res.Pairs))
			for _, p := range res.Pairs {
				ic.Anchors[p.Identity.Token()] = p.Anchor
			}
		}
		rep.Citations = append(rep.Citations, ic)
	}
	for _, mf := range result.Skipped {
		rep.Skipped = append(rep.Skipped, mf.Error())
	}
	return rep
}

// dumpDocumentXML validates and pretty-prints the main document part.
func dumpDocumentXML(doc *docx.Document) error {
	part := doc.PartXML()
	if res := ooxml.Validate(part); !res.Valid {
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "warning: %d:%d %s\n", e.Line, e.Column, e.Message)
		}
	}
	pretty, err := ooxml.Format(part, ooxml.FormatOptions{Indent: "  "})
	if err != nil {
		return fmt.Errorf("failed to format document part: %w", err)
	}
	_, err = os.Stdout.Write(pretty)
	return err
}

// CacheGroup contains metadata cache subcommands.
type CacheGroup struct {
	Info  CacheInfoCmd  `cmd:"" help:"Show cache location, item count, and driver"`
	Clear CacheClearCmd `cmd:"" help:"Remove every cached metadata item"`
}

// CacheInfoCmd prints information about the metadata cache store.
type CacheInfoCmd struct {
	CacheDB string `name:"cache-db" help:"Metadata cache database path" type:"path"`
	JSON    bool   `help:"Output as JSON"`
}

// Run executes the cache info command.
func (c *CacheInfoCmd) Run() error {
	store, err := openCacheStore(c.CacheDB)
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.Info(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read cache info: %w", err)
	}

	if c.JSON {
		output, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Cache: %s\n", info.Path)
	fmt.Printf("  Items: %d\n", info.Items)
	fmt.Printf("  Driver: %s (%s)\n", info.Driver.DriverName, info.Driver.DriverType)
	return nil
}

// CacheClearCmd empties the metadata cache store.
type CacheClearCmd struct {
	CacheDB string `name:"cache-db" help:"Metadata cache database path" type:"path"`
}

// Run executes the cache clear command.
func (c *CacheClearCmd) Run() error {
	store, err := openCacheStore(c.CacheDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(context.Background()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Printf("Cache cleared: %s\n", store.Path())
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run() error {
	fmt.Printf("citelink version %s\n", version)
	info := sqlite.GetInfo()
	fmt.Printf("  sqlite driver: %s (%s)\n", info.DriverName, info.DriverType)
	return nil
}

// cacheDBPath resolves the metadata cache location, preferring the explicit
// flag over the per-user cache directory.
func cacheDBPath(flag string) string {
	if flag != "" {
		return flag
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		// Memory-only caching still works without a store.
		return ""
	}
	return filepath.Join(dir, "citelink", "items.db")
}

func openCacheStore(flag string) (*zotero.Store, error) {
	path := cacheDBPath(flag)
	if path == "" {
		return nil, fmt.Errorf("no cache location available; pass --cache-db")
	}
	store, err := zotero.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return store, nil
}

// truncate shortens s to at most n runes for single-line display.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func initLogging() {
	level := logging.LevelInfo
	switch CLI.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(level, format)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("citelink"),
		kong.Description("Links in-text citations to their bibliography entries in .docx manuscripts"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	initLogging()
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
