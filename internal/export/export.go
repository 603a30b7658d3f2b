// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a session to one output format.
type Exporter interface {
	// Export renders the session.
	Export(sess *storage.Session) ([]byte, error)

	// FileExtension returns the extension with its dot (e.g. ".md").
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Formats lists the accepted format names.
var Formats = []string{"markdown", "json", "yaml"}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where generated file names are placed (default ".").
	OutputDir string

	// IncludeMetadata adds front matter and a session summary to Markdown.
	IncludeMetadata bool

	// Now stamps the export. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeMetadata: true,
		Now:             time.Now,
	}
}

func (o *Options) now() time.Time {
	if o == nil || o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// New returns the exporter for a format name: markdown (md), json or
// yaml (yml).
func New(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "yaml", "yml":
		return NewYAMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is the exported view of a session used by the JSON and YAML
// exporters.
type Document struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	CreatedAt       time.Time       `json:"created_at" yaml:"created_at"`
	LastModified    time.Time       `json:"last_modified" yaml:"last_modified"`
	Messages        []model.Message `json:"messages" yaml:"messages"`
	CodeBlocks      []CodeBlock     `json:"code_blocks" yaml:"code_blocks"`
	NextCodeBlockID int             `json:"next_code_block_id" yaml:"next_code_block_id"`
	Exported        time.Time       `json:"exported" yaml:"exported"`
	Generator       string          `json:"generator" yaml:"generator"`
}

// CodeBlock is one registered code block.
type CodeBlock struct {
	ID      int    `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
}

// NewDocument builds the export view of sess.
func NewDocument(sess *storage.Session, exported time.Time) (*Document, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	doc := &Document{
		ID:              sess.ID,
		Name:            sess.Name(),
		CreatedAt:       sess.Metadata.CreatedAt,
		LastModified:    sess.Metadata.LastModified,
		Messages:        sess.History(),
		CodeBlocks:      []CodeBlock{},
		NextCodeBlockID: sess.NextCodeBlockID(),
		Exported:        exported,
		Generator:       "retrochat",
	}
	for _, id := range sess.CodeBlockIDs() {
		content, _ := sess.CodeBlock(id)
		doc.CodeBlocks = append(doc.CodeBlocks, CodeBlock{ID: id, Content: content})
	}
	sort.Slice(doc.CodeBlocks, func(i, j int) bool { return doc.CodeBlocks[i].ID < doc.CodeBlocks[j].ID })
	return doc, nil
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports sess to path. With an empty path a file name is built from
// the session name and the export time inside opts.OutputDir. It returns
// the path written.
func ToFile(sess *storage.Session, exporter Exporter, path string, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(sess)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if path == "" {
		dir := opts.OutputDir
		if dir == "" {
			dir = "."
		}
		filename := fmt.Sprintf("chat_%s_%s%s",
			sanitizeFilename(sess.Name()),
			opts.now().Format("20060102_150405"),
			exporter.FileExtension(),
		)
		path = filepath.Join(dir, filename)
	}

	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix and caps the length at 50 runes.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSpace(s), 50)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
