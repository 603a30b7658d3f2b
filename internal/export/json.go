// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/retrochat/internal/storage"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes a Document as indented JSON. It always includes the
// complete session; IncludeMetadata does not apply.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a session to JSON.
func (e *JSONExporter) Export(sess *storage.Session) ([]byte, error) {
	doc, err := NewDocument(sess, e.options.now())
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (e *JSONExporter) FileExtension() string { return ".json" }

func (e *JSONExporter) MimeType() string { return "application/json" }

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter writes a Document as YAML.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

// Export converts a session to YAML.
func (e *YAMLExporter) Export(sess *storage.Session) ([]byte, error) {
	doc, err := NewDocument(sess, e.options.now())
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func (e *YAMLExporter) FileExtension() string { return ".yaml" }

func (e *YAMLExporter) MimeType() string { return "application/yaml" }
