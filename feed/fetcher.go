// Package feed syndicates feed items as RSS and ingests external RSS/Atom
// feeds as feed items.
package feed

import (
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/robertmeta/inspoflow/model"
)

// itemNamespace derives stable item ids from the persona id and entry GUID,
// so ingesting the same entry for the same persona twice yields the same id.
var itemNamespace = uuid.MustParse("6f1c1e7e-3b7a-4c55-9b1e-2f3d7f9a8c10")

// Fetcher handles fetching and parsing RSS/Atom feeds.
type Fetcher struct {
	parser    *gofeed.Parser
	converter *md.Converter
	now       func() time.Time
}

// NewFetcher creates a new Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		parser:    gofeed.NewParser(),
		converter: md.NewConverter("", true, nil),
		now:       time.Now,
	}
}

// Fetch retrieves a feed from url and converts its entries into feed items
// attributed to p.
func (f *Fetcher) Fetch(url string, p model.Persona) ([]model.FeedItem, error) {
	parsed, err := f.parser.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}
	return f.convert(parsed, p), nil
}

// Parse converts feed content into feed items attributed to p.
func (f *Fetcher) Parse(content string, p model.Persona) ([]model.FeedItem, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsed, err := f.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return f.convert(parsed, p), nil
}

func (f *Fetcher) convert(gf *gofeed.Feed, p model.Persona) []model.FeedItem {
	items := make([]model.FeedItem, 0, len(gf.Items))
	for _, entry := range gf.Items {
		items = append(items, f.convertItem(entry, p))
	}
	return items
}

func (f *Fetcher) convertItem(entry *gofeed.Item, p model.Persona) model.FeedItem {
	item := model.FeedItem{
		Persona: p.Clone(),
		History: []model.ChatMessage{},
	}

	// Use link as GUID if GUID is missing
	guid := entry.GUID
	if guid == "" {
		guid = entry.Link
	}
	if guid == "" {
		guid = entry.Title
	}
	if guid == "" {
		// Nothing identifies the entry
		item.ID = uuid.NewString()
	} else {
		item.ID = uuid.NewSHA1(itemNamespace, []byte(p.ID+"\x00"+guid)).String()
	}

	// Prefer full content over description
	body := entry.Content
	if body == "" {
		body = entry.Description
	}
	// Entry bodies are usually HTML; cards show text
	if converted, err := f.converter.ConvertString(body); err == nil {
		body = strings.TrimSpace(converted)
	}
	if entry.Title != "" && !strings.HasPrefix(body, entry.Title) {
		if body == "" {
			body = entry.Title
		} else {
			body = entry.Title + "\n\n" + body
		}
	}
	item.Content = body

	switch {
	case entry.PublishedParsed != nil:
		item.CreatedAt = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		item.CreatedAt = *entry.UpdatedParsed
	default:
		item.CreatedAt = f.now()
	}

	return item
}
