// Package record persists fetch audit files: one write-once markdown file
// per fetch-and-respond transaction, for later human inspection.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// urlSanitizer strips everything that doesn't belong in a filename.
var urlSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Recorder writes audit records into a directory.
type Recorder struct {
	dir string
	now func() time.Time
}

// New creates a Recorder writing into dir.
func New(dir string) *Recorder {
	return &Recorder{dir: dir, now: time.Now}
}

// NewWithClock creates a Recorder with a fixed clock (for testing).
func NewWithClock(dir string, now func() time.Time) *Recorder {
	return &Recorder{dir: dir, now: now}
}

// Save writes one audit record and returns its path. The file is never
// modified after this write. Failures are returned for the caller to log;
// the record is best-effort and never user-facing.
func (r *Recorder) Save(url, fetchedContent, response, userNote string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	now := r.now()
	safeURL := urlSanitizer.ReplaceAllString(truncate(url, 60), "_")
	filename := fmt.Sprintf("fetch_%s_%s.md", now.Format("20060102_150405"), safeURL)
	path := filepath.Join(r.dir, filename)

	var b strings.Builder
	b.WriteString("# AI-Friendly Content Summary\n\n")
	b.WriteString("- **Source**: " + url + "\n")
	b.WriteString("- **Fetched**: " + now.Format(time.RFC3339) + "\n")
	if userNote != "" {
		b.WriteString("- **User Note**: " + userNote + "\n")
	}
	b.WriteString("\n---\n\n## Fetched Content\n\n")
	b.WriteString(fetchedContent)
	b.WriteString("\n\n---\n\n## Claude Analysis\n\n")
	b.WriteString(response)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing audit record: %w", err)
	}
	return path, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
