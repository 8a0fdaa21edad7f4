package generate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robertmeta/inspoflow/feedcontent"
	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/persona"
)

// ErrStillLoading is returned when continuing an item that has no content yet.
var ErrStillLoading = errors.New("feed item is still loading")

// Batcher fans generation requests out for a batch of placeholder items and
// routes each result back to its item by id.
type Batcher struct {
	gen         Generator
	personas    *persona.Store
	feed        *feedcontent.Store
	concurrency int
	logger      *zap.Logger
	pick        func(n int) int
}

// BatchOption configures a Batcher.
type BatchOption func(*Batcher)

// WithConcurrency bounds the number of in-flight requests.
func WithConcurrency(n int) BatchOption {
	return func(b *Batcher) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithPicker replaces the random persona picker; pick(n) returns an index
// in [0, n).
func WithPicker(pick func(n int) int) BatchOption {
	return func(b *Batcher) { b.pick = pick }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l *zap.Logger) BatchOption {
	return func(b *Batcher) { b.logger = l }
}

func NewBatcher(gen Generator, personas *persona.Store, feed *feedcontent.Store, opts ...BatchOption) *Batcher {
	b := &Batcher{
		gen:         gen,
		personas:    personas,
		feed:        feed,
		concurrency: 5,
		logger:      zap.NewNop(),
		pick:        rand.IntN,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BatchResult describes a finished batch.
type BatchResult struct {
	IDs    []string `json:"ids"`
	Failed int      `json:"failed"`
}

// Generate inserts n placeholders bound to randomly chosen personas and
// fills each one in. It returns once every placeholder has completed; each
// completes exactly once, with generated text or a failure description.
// Cancelling ctx completes the outstanding items as cancelled.
func (b *Batcher) Generate(ctx context.Context, n int) BatchResult {
	personas := b.personas.List()
	if n <= 0 || len(personas) == 0 {
		return BatchResult{IDs: []string{}}
	}

	placeholders := make([]model.FeedItem, n)
	for i := range placeholders {
		placeholders[i] = model.FeedItem{
			ID:        uuid.NewString(),
			Persona:   personas[b.pick(len(personas))],
			IsLoading: true,
		}
	}
	placeholders = b.feed.AddBatch(placeholders)

	results := make([]string, n)
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, item := range placeholders {
		g.Go(func() error {
			results[i] = b.fill(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{IDs: make([]string, n)}
	for i, item := range placeholders {
		res.IDs[i] = item.ID
		if model.IsErrorContent(results[i]) {
			res.Failed++
		}
	}
	return res
}

// fill runs one generation and writes the outcome into the item.
func (b *Batcher) fill(ctx context.Context, item model.FeedItem) string {
	content := b.generate(ctx, item)
	if model.IsErrorContent(content) {
		b.logger.Warn("generation failed",
			zap.String("item", item.ID),
			zap.String("persona", item.Persona.ID),
			zap.String("content", content))
	}
	b.feed.Update(item.ID, model.Completed(content))
	return content
}

func (b *Batcher) generate(ctx context.Context, item model.FeedItem) string {
	if err := ctx.Err(); err != nil {
		return cancelledContent(err)
	}
	text, err := b.gen.Generate(ctx, item.Persona.SystemInstruction)
	switch {
	case err != nil && ctx.Err() != nil:
		return cancelledContent(ctx.Err())
	case err != nil:
		return model.ErrorMarker + "failed to load: " + err.Error()
	default:
		return text
	}
}

func cancelledContent(err error) string {
	return model.ErrorMarker + fmt.Sprintf("generation cancelled: %v", err)
}

// Continue sends message as the next user turn of the item's conversation
// and appends both the message and the reply to its history. An item with
// no history starts from the original prompt and its content.
func (b *Batcher) Continue(ctx context.Context, id, message string) (model.FeedItem, error) {
	item, ok := b.feed.Get(id)
	if !ok {
		return model.FeedItem{}, feedcontent.ErrNotFound
	}
	if item.IsLoading {
		return model.FeedItem{}, ErrStillLoading
	}

	history := item.History
	if len(history) == 0 {
		seed := []model.ChatMessage{
			model.NewMessage(model.RoleUser, InspirationPrompt),
			model.NewMessage(model.RoleModel, item.Content),
		}
		b.feed.AppendHistory(id, seed...)
		history = seed
	}

	reply := b.gen.Continue(ctx, item.Persona.SystemInstruction, history, message)
	b.feed.AppendHistory(id,
		model.NewMessage(model.RoleUser, message),
		model.NewMessage(model.RoleModel, reply))

	item, _ = b.feed.Get(id)
	return item, nil
}
