// Package backup provides import and export of personas and feed items as
// a single JSON document.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/robertmeta/inspoflow/feedcontent"
	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/persona"
)

// Version is written into every exported document.
const Version = "1.0.0"

// ErrInvalidDocument is returned when an import document fails validation.
var ErrInvalidDocument = errors.New("invalid backup document")

// Document is the import/export file format.
type Document struct {
	Personas   []model.Persona  `json:"personas"`
	FeedItems  []model.FeedItem `json:"feedItems"`
	ExportDate string           `json:"exportDate"`
	Version    string           `json:"version"`
}

const documentSchema = `{
	"type": "object",
	"required": ["personas", "feedItems"],
	"properties": {
		"personas": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"name": {"type": "string"},
					"tags": {"type": ["array", "null"], "items": {"type": "string"}}
				}
			}
		},
		"feedItems": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"persona": {"type": "object"},
					"content": {"type": "string"},
					"history": {"type": ["array", "null"]},
					"isLiked": {"type": "boolean"},
					"isSaved": {"type": "boolean"},
					"createdAt": {"type": ["string", "number", "null"]}
				}
			}
		},
		"exportDate": {"type": "string"},
		"version": {"type": "string"}
	}
}`

var schema = mustSchema(documentSchema)

func mustSchema(s string) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("backup: invalid document schema: %v", err))
	}
	return compiled
}

// FileName returns the conventional file name for an export made at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("inspoflow-backup-%s.json", now.UTC().Format("2006-01-02"))
}

// Export writes personas and items as an indented document.
func Export(w io.Writer, personas []model.Persona, items []model.FeedItem, now time.Time) error {
	doc := Document{
		Personas:   make([]model.Persona, len(personas)),
		FeedItems:  make([]model.FeedItem, len(items)),
		ExportDate: now.UTC().Format(time.RFC3339Nano),
		Version:    Version,
	}
	// Clones carry empty tags and history as [] rather than null
	for i, p := range personas {
		doc.Personas[i] = p.Clone()
	}
	for i, item := range items {
		doc.FeedItems[i] = item.Clone()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Parse reads and validates a document. A structurally invalid document is
// rejected with ErrInvalidDocument before anything is returned.
func Parse(r io.Reader) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse file: %v", ErrInvalidDocument, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, describe(desc))
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

func describe(desc gojsonschema.ResultError) string {
	if desc.Type() == "required" {
		switch desc.Details()["property"] {
		case "personas":
			return "missing persona data (personas must be an array)"
		case "feedItems":
			return "missing feed content data (feedItems must be an array)"
		}
	}
	return desc.String()
}

// Result counts what an import changed.
type Result struct {
	PersonasUpdated int `json:"personasUpdated"`
	PersonasAdded   int `json:"personasAdded"`
	ItemsAdded      int `json:"itemsAdded"`
	ItemsSkipped    int `json:"itemsSkipped"`
}

// Apply upserts the document's personas by id and inserts the feed items
// whose id is not already present; existing items are never overwritten.
// New items go to the front of the feed in document order.
func Apply(doc *Document, personas *persona.Store, feed *feedcontent.Store) Result {
	var res Result
	for _, p := range doc.Personas {
		if _, inserted := personas.Upsert(p); inserted {
			res.PersonasAdded++
		} else {
			res.PersonasUpdated++
		}
	}

	seen := make(map[string]bool, len(doc.FeedItems))
	fresh := make([]model.FeedItem, 0, len(doc.FeedItems))
	for _, item := range doc.FeedItems {
		if item.ID != "" && (seen[item.ID] || feed.Has(item.ID)) {
			res.ItemsSkipped++
			continue
		}
		seen[item.ID] = true
		// No generation is running for an imported item
		if item.IsLoading {
			model.Completed(model.InterruptedContent).Apply(&item)
		}
		fresh = append(fresh, item)
	}
	feed.AddBatch(fresh)
	res.ItemsAdded = len(fresh)
	return res
}
