package record

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

var disableConfigOnce sync.Once

// ArtifactWriter writes each record to <dir>/<workflow>-<run id>/ as execution.json,
// summary.md and, when failure screenshots exist, failures.pdf.
type ArtifactWriter struct {
	outputDir string
	pdf       bool
}

// NewArtifactWriter creates an artifact writer rooted at outputDir. pdf enables the
// failure screenshot report.
func NewArtifactWriter(outputDir string, pdf bool) *ArtifactWriter {
	disableConfigOnce.Do(api.DisableConfigDir)
	return &ArtifactWriter{outputDir: outputDir, pdf: pdf}
}

// RunDir returns the directory a record's artifacts are written to.
func (w *ArtifactWriter) RunDir(rec *Record) string {
	return filepath.Join(w.outputDir, fmt.Sprintf("%s-%s", sanitize(rec.Workflow), rec.RunID))
}

// Save writes every artifact for rec.
func (w *ArtifactWriter) Save(_ context.Context, rec *Record) error {
	dir := w.RunDir(rec)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := w.writeExecutionJSON(dir, rec); err != nil {
		return err
	}
	if err := w.writeSummaryMarkdown(dir, rec); err != nil {
		return err
	}
	if w.pdf {
		if err := w.writeFailuresPDF(dir, rec); err != nil {
			return err
		}
	}
	return nil
}

func (w *ArtifactWriter) writeExecutionJSON(dir string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "execution.json"), data, 0600); err != nil {
		return fmt.Errorf("failed to write execution JSON: %w", err)
	}
	return nil
}

func (w *ArtifactWriter) writeSummaryMarkdown(dir string, rec *Record) error {
	var md strings.Builder

	md.WriteString("# Pilot Execution Summary\n\n")
	fmt.Fprintf(&md, "**Workflow:** %s\n\n", rec.Workflow)
	if rec.RowID != "" {
		fmt.Fprintf(&md, "**Row:** %s\n\n", rec.RowID)
	}
	fmt.Fprintf(&md, "**Status:** %s\n\n", rec.Status)
	fmt.Fprintf(&md, "**Started:** %s\n\n", rec.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Completed:** %s\n\n", rec.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Duration:** %s\n\n", rec.Duration().Round(time.Millisecond))

	md.WriteString("## Result\n\n")
	if rec.Error != "" {
		fmt.Fprintf(&md, "❌ **Error:** %s\n\n", rec.Error)
	} else {
		fmt.Fprintf(&md, "✅ **%s**\n\n", rec.Message)
	}

	if len(rec.Steps) > 0 {
		md.WriteString("## Steps\n\n")
		md.WriteString("| Step | Result | Attempts | Message |\n|---|---|---|---|\n")
		for _, s := range rec.Steps {
			status := "✅"
			if !s.Success {
				status = "❌"
			}
			fmt.Fprintf(&md, "| %s | %s | %d | %s |\n", s.StepID, status, s.Attempts, strings.ReplaceAll(s.Message, "|", `\|`))
		}
		md.WriteString("\n")
	}

	if len(rec.Unresolved) > 0 {
		md.WriteString("## Skipped Branches\n\n")
		for _, order := range rec.Unresolved {
			fmt.Fprintf(&md, "- order %d: no branch matched\n", order)
		}
		md.WriteString("\n")
	}

	if len(rec.Context) > 0 {
		md.WriteString("## Context\n\n")
		for _, k := range sortedKeys(rec.Context) {
			fmt.Fprintf(&md, "- `%s` = `%s`\n", k, rec.Context[k])
		}
		md.WriteString("\n")
	}

	if err := os.WriteFile(filepath.Join(dir, "summary.md"), []byte(md.String()), 0600); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}

// writeFailuresPDF collects the existing failure screenshots into one PDF.
func (w *ArtifactWriter) writeFailuresPDF(dir string, rec *Record) error {
	var images []string
	for _, path := range rec.Screenshots() {
		if _, err := os.Stat(path); err == nil {
			images = append(images, path)
		}
	}
	if len(images) == 0 {
		return nil
	}

	out := filepath.Join(dir, "failures.pdf")
	if err := api.ImportImagesFile(images, out, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return fmt.Errorf("failed to write failure report: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
