// Package document handles loading document content into conversation turns:
// local file loading, remote version fetching, and size-bounded prose
// embedding.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// BodyLimit caps an embedded document body; MetaLimit caps any
	// secondary metadata appended after it. Content over a limit is cut at
	// the point of construction and annotated, never silently.
	BodyLimit = 50000
	MetaLimit = 5000

	TruncationMarker = "\n[... truncated ...]"
)

// textExtensions are read verbatim; anything else becomes a binary summary
// placeholder.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".xml":  true,
	".csv":  true,
	".html": true,
	".htm":  true,
}

// Document is one loaded document ready for embedding into a user turn.
type Document struct {
	Name string
	Body string
	Meta string
}

// LoadAsText reads a local file as text. Text-like extensions pass through;
// other files yield a placeholder naming the file, its size, and its type.
func LoadAsText(path string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("file not found: %s", path)
	}
	name := filepath.Base(path)

	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] {
		content, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading %s: %w", path, err)
		}
		return Document{Name: name, Body: string(content)}, nil
	}

	return Document{
		Name: name,
		Body: fmt.Sprintf("[Binary file: %s (%d bytes, type: %s)]", name, info.Size(), strings.TrimPrefix(ext, ".")),
	}, nil
}

// Truncate cuts s at limit and appends the truncation marker. Content within
// the limit is returned unchanged.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + TruncationMarker
}

// ComposePrompt embeds documents into a single user-turn body alongside the
// question. Bodies and metadata are truncated at their respective ceilings.
func ComposePrompt(question string, docs []Document) string {
	if len(docs) == 0 {
		return question
	}

	parts := []string{fmt.Sprintf("User question: %s", question)}
	for _, doc := range docs {
		section := fmt.Sprintf("\n--- Document: %s ---\n%s\n--- End of Document ---\n",
			doc.Name, Truncate(doc.Body, BodyLimit))
		if doc.Meta != "" {
			section += fmt.Sprintf("Document metadata: %s\n", Truncate(doc.Meta, MetaLimit))
		}
		parts = append(parts, section)
	}
	return strings.Join(parts, "\n")
}
