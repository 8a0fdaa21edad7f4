// Package model defines the core data structures for inspoflow.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ErrorMarker prefixes content that describes a generation failure rather
// than generated text.
const ErrorMarker = "Error: "

// InterruptedContent completes an item whose generation was cut off, for
// example by the process stopping mid-batch.
const InterruptedContent = ErrorMarker + "generation interrupted"

// IsErrorContent reports whether s is an in-band failure message.
func IsErrorContent(s string) bool {
	return strings.HasPrefix(s, ErrorMarker)
}

// Persona is an AI behavior profile used to generate feed content.
type Persona struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	AvatarURL         string   `json:"avatarUrl"`
	Bio               string   `json:"bio"`
	SystemInstruction string   `json:"systemInstruction"`
	CardClassName     string   `json:"cardClassName"`
	Tags              []string `json:"tags"`
}

// PersonaData is a persona without its identifier, as supplied on creation.
type PersonaData struct {
	Name              string   `json:"name"`
	AvatarURL         string   `json:"avatarUrl"`
	Bio               string   `json:"bio"`
	SystemInstruction string   `json:"systemInstruction"`
	CardClassName     string   `json:"cardClassName"`
	Tags              []string `json:"tags"`
}

// WithID builds a persona from d using the given identifier.
func (d PersonaData) WithID(id string) Persona {
	return Persona{
		ID:                id,
		Name:              d.Name,
		AvatarURL:         d.AvatarURL,
		Bio:               d.Bio,
		SystemInstruction: d.SystemInstruction,
		CardClassName:     d.CardClassName,
		Tags:              cloneStrings(d.Tags),
	}
}

// Data strips the identifier from p.
func (p Persona) Data() PersonaData {
	return PersonaData{
		Name:              p.Name,
		AvatarURL:         p.AvatarURL,
		Bio:               p.Bio,
		SystemInstruction: p.SystemInstruction,
		CardClassName:     p.CardClassName,
		Tags:              cloneStrings(p.Tags),
	}
}

// Clone returns a deep copy of p.
func (p Persona) Clone() Persona {
	p.Tags = cloneStrings(p.Tags)
	return p
}

// HasTag checks if the persona carries the specified tag.
func (p *Persona) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the fields a persona needs before it can generate content.
func (p *Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("persona name is required")
	}
	if strings.TrimSpace(p.SystemInstruction) == "" {
		return errors.New("persona system instruction is required")
	}
	if p.CardClassName != "" && !IsValidCardColor(p.CardClassName) {
		return errors.New("persona card color is not in the palette")
	}
	return nil
}

// Part is one text fragment of a conversation turn.
type Part struct {
	Text string `json:"text"`
}

// ChatMessage is a single conversational turn.
type ChatMessage struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewMessage builds a single-part message.
func NewMessage(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Parts: []Part{{Text: text}}}
}

// Text joins all parts of the message.
func (m ChatMessage) Text() string {
	if len(m.Parts) == 1 {
		return m.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range m.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// FeedItem is one generated piece of content with its conversation history.
// Persona is a snapshot taken at generation time, not a live reference.
type FeedItem struct {
	ID        string        `json:"id"`
	Persona   Persona       `json:"persona"`
	Content   string        `json:"content"`
	History   []ChatMessage `json:"history"`
	IsLiked   bool          `json:"isLiked"`
	IsSaved   bool          `json:"isSaved"`
	IsLoading bool          `json:"isLoading,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Clone returns a deep copy of the item. A nil history becomes empty.
func (f FeedItem) Clone() FeedItem {
	f.Persona = f.Persona.Clone()
	history := make([]ChatMessage, len(f.History))
	for i, m := range f.History {
		history[i] = ChatMessage{Role: m.Role, Parts: append([]Part(nil), m.Parts...)}
	}
	f.History = history
	return f
}

// UnmarshalJSON accepts the createdAt forms a browser Date parses: RFC 3339,
// ISO 8601 with a colonless offset or none, a bare date, or epoch millis.
func (f *FeedItem) UnmarshalJSON(data []byte) error {
	type Alias FeedItem
	aux := struct {
		*Alias
		CreatedAt json.RawMessage `json:"createdAt"`
	}{Alias: (*Alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := ParseTimestamp(aux.CreatedAt)
	if err != nil {
		return err
	}
	f.CreatedAt = t
	return nil
}

var (
	offsetLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04Z07:00",
		"2006-01-02T15:04Z0700",
		"2006-01-02 15:04:05Z07:00",
	}
	// Date-time without an offset is local time; a bare date is UTC.
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
	}
)

// ParseTimestamp decodes a JSON timestamp. null and "" give the zero time.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid createdAt %s", raw)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("invalid createdAt %s: %w", raw, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid createdAt %q", s)
}

// Matches reports whether the lowercased query occurs in the content or in
// the persona's name or bio. The query must already be lowercased.
func (f *FeedItem) Matches(lowerQuery string) bool {
	return strings.Contains(strings.ToLower(f.Content), lowerQuery) ||
		strings.Contains(strings.ToLower(f.Persona.Name), lowerQuery) ||
		strings.Contains(strings.ToLower(f.Persona.Bio), lowerQuery)
}

// Age returns how long ago the item was created.
func (f *FeedItem) Age() time.Duration {
	return time.Since(f.CreatedAt)
}

// FeedItemUpdate is a partial update; nil fields are left unchanged.
type FeedItemUpdate struct {
	Persona   *Persona
	Content   *string
	History   []ChatMessage
	IsLiked   *bool
	IsSaved   *bool
	IsLoading *bool
}

// Apply merges the set fields of u into item.
func (u FeedItemUpdate) Apply(item *FeedItem) {
	if u.Persona != nil {
		item.Persona = u.Persona.Clone()
	}
	if u.Content != nil {
		item.Content = *u.Content
	}
	if u.History != nil {
		item.History = append([]ChatMessage(nil), u.History...)
	}
	if u.IsLiked != nil {
		item.IsLiked = *u.IsLiked
	}
	if u.IsSaved != nil {
		item.IsSaved = *u.IsSaved
	}
	if u.IsLoading != nil {
		item.IsLoading = *u.IsLoading
	}
}

// Completed returns the update that finishes a pending item with content.
func Completed(content string) FeedItemUpdate {
	loading := false
	return FeedItemUpdate{Content: &content, IsLoading: &loading}
}

// cloneStrings copies s; nil becomes empty so documents hold [] not null.
func cloneStrings(s []string) []string {
	return append([]string{}, s...)
}
