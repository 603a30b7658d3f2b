// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports sessions to Markdown. Message bodies are written
// as stored, so code fences keep their [CodeID: N] tags.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontMatter is the YAML header of a Markdown export.
type frontMatter struct {
	Title     string `yaml:"title"`
	Session   string `yaml:"session"`
	Date      string `yaml:"date"`
	Updated   string `yaml:"updated"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a session to Markdown.
func (e *MarkdownExporter) Export(sess *storage.Session) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	history := sess.History()
	if len(history) == 0 {
		return nil, fmt.Errorf("session has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		// yaml.v3 quotes whatever would otherwise break the header.
		fm, err := yaml.Marshal(frontMatter{
			Title:     sess.Name(),
			Session:   sess.ID,
			Date:      sess.Metadata.CreatedAt.Format(time.RFC3339),
			Updated:   sess.Metadata.LastModified.Format(time.RFC3339),
			Messages:  len(history),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "retrochat",
		})
		if err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(sess.Name()))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(sess.Metadata.CreatedAt))
		fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(sess.Metadata.LastModified))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(history))
		if ids := sess.CodeBlockIDs(); len(ids) > 0 {
			fmt.Fprintf(&sb, "- **Code Blocks**: %d\n", len(ids))
		}
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	for i, msg := range history {
		fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(history)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

func (e *MarkdownExporter) FileExtension() string { return ".md" }

func (e *MarkdownExporter) MimeType() string { return "text/markdown" }

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// roleLabel returns the heading for a message role.
func roleLabel(role model.Role) string {
	return "[" + role.DisplayName() + "]"
}

// escapeMarkdown escapes the characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
		"\n", " ",
	)
	return r.Replace(s)
}
