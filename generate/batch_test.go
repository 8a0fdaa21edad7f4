package generate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/inspoflow/feedcontent"
	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/persona"
	"github.com/robertmeta/inspoflow/store"
)

// fakeGenerator answers by instruction and records concurrency.
type fakeGenerator struct {
	mu        sync.Mutex
	replies   map[string]string
	errs      map[string]error
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	calls     atomic.Int32
	continued []continueCall
}

type continueCall struct {
	instruction string
	history     []model.ChatMessage
	message     string
}

func (f *fakeGenerator) Generate(ctx context.Context, instruction string) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.errs[instruction]; err != nil {
		return "", err
	}
	if r, ok := f.replies[instruction]; ok {
		return r, nil
	}
	return "content for " + instruction, nil
}

func (f *fakeGenerator) Continue(_ context.Context, instruction string, history []model.ChatMessage, message string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continued = append(f.continued, continueCall{instruction, append([]model.ChatMessage(nil), history...), message})
	return "reply to " + message
}

func setup(t *testing.T, personas ...model.Persona) (*persona.Store, *feedcontent.Store) {
	t.Helper()
	repo := store.NewMemory()
	ps := persona.New(repo, nil)
	for _, p := range ps.List() {
		ps.Delete(p.ID)
	}
	for _, p := range personas {
		ps.Upsert(p)
	}
	return ps, feedcontent.New(repo, nil)
}

var (
	alpha = model.Persona{ID: "a", Name: "Alpha", SystemInstruction: "alpha"}
	beta  = model.Persona{ID: "b", Name: "Beta", SystemInstruction: "beta"}
)

func TestBatcher_GenerateFillsEveryItem(t *testing.T) {
	ps, feed := setup(t, alpha, beta)
	gen := &fakeGenerator{}
	b := NewBatcher(gen, ps, feed, WithPicker(func(n int) int { return 0 }))

	res := b.Generate(context.Background(), 5)

	require.Len(t, res.IDs, 5)
	assert.Zero(t, res.Failed)
	assert.Equal(t, int32(5), gen.calls.Load())
	for _, id := range res.IDs {
		item, ok := feed.Get(id)
		require.True(t, ok)
		assert.False(t, item.IsLoading)
		assert.Equal(t, "content for alpha", item.Content)
		assert.Equal(t, alpha.Clone(), item.Persona)
	}
}

func TestBatcher_BatchGoesToFrontInOrder(t *testing.T) {
	ps, feed := setup(t, alpha)
	feed.Add(model.FeedItem{ID: "old", Content: "earlier"})

	res := NewBatcher(&fakeGenerator{}, ps, feed).Generate(context.Background(), 3)

	all := feed.All()
	require.Len(t, all, 4)
	for i, id := range res.IDs {
		assert.Equal(t, id, all[i].ID)
	}
	assert.Equal(t, "old", all[3].ID)
}

func TestBatcher_FailuresBecomeContent(t *testing.T) {
	ps, feed := setup(t, alpha, beta)
	gen := &fakeGenerator{
		errs:    map[string]error{"alpha": errors.New("network unreachable")},
		replies: map[string]string{"beta": InvalidKeyText},
	}
	next := 0
	b := NewBatcher(gen, ps, feed, WithPicker(func(n int) int {
		next++
		return next % n
	}))

	res := b.Generate(context.Background(), 4)
	assert.Equal(t, 4, res.Failed)

	for _, id := range res.IDs {
		item, _ := feed.Get(id)
		assert.False(t, item.IsLoading)
		switch item.Persona.ID {
		case "a":
			assert.Equal(t, model.ErrorMarker+"failed to load: network unreachable", item.Content)
		case "b":
			assert.Equal(t, InvalidKeyText, item.Content)
		}
	}
}

func TestBatcher_RespectsConcurrencyLimit(t *testing.T) {
	ps, feed := setup(t, alpha)
	gen := &fakeGenerator{delay: 20 * time.Millisecond}

	NewBatcher(gen, ps, feed, WithConcurrency(2)).Generate(context.Background(), 6)

	assert.LessOrEqual(t, gen.maxFlight.Load(), int32(2))
	assert.Equal(t, int32(6), gen.calls.Load())
}

func TestBatcher_CancelledBatchStillCompletesItems(t *testing.T) {
	ps, feed := setup(t, alpha)
	gen := &fakeGenerator{delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewBatcher(gen, ps, feed).Generate(ctx, 3)

	assert.Equal(t, 3, res.Failed)
	for _, id := range res.IDs {
		item, _ := feed.Get(id)
		assert.False(t, item.IsLoading)
		assert.Contains(t, item.Content, "generation cancelled")
	}
}

func TestBatcher_NoPersonasNoRequests(t *testing.T) {
	ps, feed := setup(t)
	gen := &fakeGenerator{}

	res := NewBatcher(gen, ps, feed).Generate(context.Background(), 5)

	assert.Empty(t, res.IDs)
	assert.Zero(t, gen.calls.Load())
	assert.Zero(t, feed.Len())
}

func TestBatcher_SnapshotSurvivesPersonaEdits(t *testing.T) {
	ps, feed := setup(t, alpha)
	res := NewBatcher(&fakeGenerator{}, ps, feed).Generate(context.Background(), 1)

	edited := alpha
	edited.Name = "Alpha v2"
	ps.Update(edited)
	ps.Delete("a")

	item, _ := feed.Get(res.IDs[0])
	assert.Equal(t, "Alpha", item.Persona.Name)
}

func TestBatcher_Continue(t *testing.T) {
	ps, feed := setup(t, alpha)
	feed.Add(model.FeedItem{ID: "1", Persona: alpha, Content: "original text"})
	gen := &fakeGenerator{}
	b := NewBatcher(gen, ps, feed)

	item, err := b.Continue(context.Background(), "1", "tell me more")
	require.NoError(t, err)
	require.Len(t, item.History, 4)
	assert.Equal(t, InspirationPrompt, item.History[0].Text())
	assert.Equal(t, "original text", item.History[1].Text())
	assert.Equal(t, "tell me more", item.History[2].Text())
	assert.Equal(t, "reply to tell me more", item.History[3].Text())

	item, err = b.Continue(context.Background(), "1", "again")
	require.NoError(t, err)
	assert.Len(t, item.History, 6)

	require.Len(t, gen.continued, 2)
	assert.Equal(t, "alpha", gen.continued[0].instruction)
	assert.Len(t, gen.continued[1].history, 4, "the full prior history is sent")
}

func TestBatcher_ContinueErrors(t *testing.T) {
	ps, feed := setup(t, alpha)
	feed.Add(model.FeedItem{ID: "pending", IsLoading: true})
	b := NewBatcher(&fakeGenerator{}, ps, feed)

	_, err := b.Continue(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, feedcontent.ErrNotFound)

	_, err = b.Continue(context.Background(), "pending", "x")
	assert.ErrorIs(t, err, ErrStillLoading)
}

func TestBatcher_ContinueAfterInterruptedRun(t *testing.T) {
	repo := store.NewMemory()
	ps := persona.New(repo, nil)
	ps.Upsert(alpha)
	feedcontent.New(repo, nil).Add(model.FeedItem{ID: "stuck", Persona: alpha, IsLoading: true})

	// A fresh process over the same storage
	feed := feedcontent.New(repo, nil)
	b := NewBatcher(&fakeGenerator{}, persona.New(repo, nil), feed)

	item, err := b.Continue(context.Background(), "stuck", "try again")
	require.NoError(t, err)
	require.Len(t, item.History, 4)
	assert.Equal(t, model.InterruptedContent, item.History[1].Text())
	assert.Equal(t, "reply to try again", item.History[3].Text())
}
