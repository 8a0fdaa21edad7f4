// Package feedcontent holds the authoritative collection of generated feed
// items, most recent first.
package feedcontent

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/store"
)

// ErrNotFound is returned by callers that need an error for a missed lookup.
var ErrNotFound = errors.New("feed item not found")

// Store owns the feed items and mirrors every change to the repository under
// store.KeyFeedContent. All mutations run under one lock, so toggles are
// atomic read-modify-write operations.
type Store struct {
	mu     sync.RWMutex
	items  []model.FeedItem
	repo   store.Repository
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp items.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New loads the feed items from repo. A missing or unreadable record starts
// an empty feed. Items stored without a timestamp are stamped with the load
// time, and items still loading are completed as interrupted and saved back.
func New(repo store.Repository, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	var interrupted int
	s.items, interrupted = s.load()
	if interrupted > 0 {
		s.logger.Warn("completed items left loading by an earlier run",
			zap.Int("count", interrupted))
		s.persist()
	}
	return s
}

// load reads the stored feed. Items still marked loading can never be
// completed by this process, so they are finished as interrupted; the count
// of such items is returned.
func (s *Store) load() ([]model.FeedItem, int) {
	raw, err := s.repo.Load(store.KeyFeedContent)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to read feed content", zap.Error(err))
		}
		return nil, 0
	}

	var items []model.FeedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Error("failed to decode feed content", zap.Error(err))
		return nil, 0
	}
	now := s.now()
	interrupted := 0
	for i := range items {
		items[i] = items[i].Clone()
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		if items[i].IsLoading {
			model.Completed(model.InterruptedContent).Apply(&items[i])
			interrupted++
		}
	}
	return items, interrupted
}

// persist writes the whole collection. Callers must hold the write lock.
func (s *Store) persist() {
	// An empty feed is stored as [] rather than null.
	items := s.items
	if items == nil {
		items = []model.FeedItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		s.logger.Error("failed to encode feed content", zap.Error(err))
		return
	}
	if err := s.repo.Save(store.KeyFeedContent, raw); err != nil {
		s.logger.Error("failed to save feed content",
			zap.String("key", store.KeyFeedContent), zap.Error(err))
	}
}

func (s *Store) prepare(item model.FeedItem) model.FeedItem {
	item = item.Clone()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	return item
}

// Add puts item at the front of the feed and returns the stored copy.
func (s *Store) Add(item model.FeedItem) model.FeedItem {
	item = s.prepare(item)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]model.FeedItem{item}, s.items...)
	s.persist()
	return item.Clone()
}

// AddBatch puts items at the front of the feed keeping their order, with a
// single write to the repository.
func (s *Store) AddBatch(items []model.FeedItem) []model.FeedItem {
	if len(items) == 0 {
		return nil
	}
	batch := make([]model.FeedItem, len(items))
	for i, item := range items {
		batch[i] = s.prepare(item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(batch, s.items...)
	s.persist()

	out := make([]model.FeedItem, len(batch))
	for i := range batch {
		out[i] = batch[i].Clone()
	}
	return out
}

// Update merges u into the item with id and reports whether it existed.
func (s *Store) Update(id string, u model.FeedItemUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	u.Apply(&s.items[i])
	s.persist()
	return true
}

// ToggleLike flips isLiked and returns the new value.
func (s *Store) ToggleLike(id string) (bool, bool) {
	return s.toggle(id, func(item *model.FeedItem) *bool { return &item.IsLiked })
}

// ToggleSave flips isSaved and returns the new value.
func (s *Store) ToggleSave(id string) (bool, bool) {
	return s.toggle(id, func(item *model.FeedItem) *bool { return &item.IsSaved })
}

func (s *Store) toggle(id string, field func(*model.FeedItem) *bool) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false, false
	}
	flag := field(&s.items[i])
	*flag = !*flag
	s.persist()
	return *flag, true
}

// AppendHistory appends turns to the item's history and reports whether the
// item existed.
func (s *Store) AppendHistory(id string, messages ...model.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	for _, m := range messages {
		s.items[i].History = append(s.items[i].History,
			model.ChatMessage{Role: m.Role, Parts: append([]model.Part(nil), m.Parts...)})
	}
	s.persist()
	return true
}

// Get returns the item with id.
func (s *Store) Get(id string) (model.FeedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.FeedItem{}, false
	}
	return s.items[i].Clone(), true
}

// Has reports whether an item with id exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id) >= 0
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All returns every item, most recent first.
func (s *Store) All() []model.FeedItem {
	return s.filter(func(*model.FeedItem) bool { return true })
}

// Saved returns the saved items in feed order.
func (s *Store) Saved() []model.FeedItem {
	return s.filter(func(item *model.FeedItem) bool { return item.IsSaved })
}

// Search returns the items whose content, persona name or persona bio
// contains query, case-insensitively. A blank query returns every item.
// Persona tags are not searched.
func (s *Store) Search(query string) []model.FeedItem {
	if strings.TrimSpace(query) == "" {
		return s.All()
	}
	q := strings.ToLower(query)
	return s.filter(func(item *model.FeedItem) bool { return item.Matches(q) })
}

func (s *Store) filter(keep func(*model.FeedItem) bool) []model.FeedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.FeedItem, 0, len(s.items))
	for i := range s.items {
		if keep(&s.items[i]) {
			out = append(out, s.items[i].Clone())
		}
	}
	return out
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
