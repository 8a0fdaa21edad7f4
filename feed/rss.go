package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/robertmeta/inspoflow/model"
)

// RSS represents the root RSS 2.0 structure.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel holds the feed metadata and its items.
type Channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	LastBuildDate string `xml:"lastBuildDate,omitempty"`
	Items         []Item `xml:"item"`
}

// Item is one RSS entry.
type Item struct {
	Title       string   `xml:"title"`
	Description string   `xml:"description"`
	GUID        GUID     `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category,omitempty"`
}

// GUID is an RSS guid element.
type GUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// Render writes items as an RSS 2.0 document. Items still loading are
// skipped.
func Render(w io.Writer, title string, items []model.FeedItem, now time.Time) error {
	doc := RSS{
		Version: "2.0",
		Channel: Channel{
			Title:         title,
			Link:          "https://inspoflow.local/",
			Description:   "Generated persona feed",
			LastBuildDate: now.Format(time.RFC1123Z),
		},
	}

	for _, item := range items {
		if item.IsLoading {
			continue
		}
		doc.Channel.Items = append(doc.Channel.Items, Item{
			Title:       item.Persona.Name,
			Description: item.Content,
			GUID:        GUID{Value: item.ID},
			PubDate:     item.CreatedAt.Format(time.RFC1123Z),
			Categories:  item.Persona.Tags,
		})
	}

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode RSS: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}
