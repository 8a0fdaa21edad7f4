package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/inspoflow/backup"
	"github.com/robertmeta/inspoflow/feedcontent"
	"github.com/robertmeta/inspoflow/generate"
	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/persona"
	"github.com/robertmeta/inspoflow/store"
)

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, instruction string) (string, error) {
	return "insight for " + instruction, nil
}

func (fakeGenerator) Continue(ctx context.Context, instruction string, history []model.ChatMessage, message string) string {
	return "reply to " + message
}

type fakePolisher struct{}

func (fakePolisher) Polish(ctx context.Context, text string, field generate.Field) string {
	return "polished " + string(field) + ": " + text
}

type fixture struct {
	personas *persona.Store
	feed     *feedcontent.Store
	handler  http.Handler
}

func newFixture(t *testing.T, withGenerator bool) *fixture {
	t.Helper()
	repo := store.NewMemory()
	require.NoError(t, repo.Save(store.KeyPersonas, []byte(`[{"id":"alpha","name":"Alpha","systemInstruction":"be alpha","tags":["cs"]}]`)))

	f := &fixture{
		personas: persona.New(repo, nil),
		feed:     feedcontent.New(repo, nil),
	}
	opts := []Option{WithBatchSize(2)}
	if withGenerator {
		opts = append(opts,
			WithBatcher(generate.NewBatcher(fakeGenerator{}, f.personas, f.feed)),
			WithPolisher(fakePolisher{}))
	}
	srv := New(f.personas, f.feed, opts...)
	srv.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPersonaCRUD(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/personas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Persona](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/api/personas", `{"name":"Beta","systemInstruction":"be beta"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tags":[]`)
	created := decode[model.Persona](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 2, f.personas.Len())

	rec = f.do(t, http.MethodPut, "/api/personas/"+created.ID, `{"name":"Beta 2","systemInstruction":"be beta"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tags":[]`)
	got, _ := f.personas.Get(created.ID)
	assert.Equal(t, "Beta 2", got.Name)

	rec = f.do(t, http.MethodGet, "/api/personas/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Beta 2", decode[model.Persona](t, rec).Name)

	rec = f.do(t, http.MethodDelete, "/api/personas/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.personas.Len())
}

func TestPersonaErrors(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "get unknown", method: http.MethodGet, path: "/api/personas/nope", want: http.StatusNotFound},
		{name: "update unknown", method: http.MethodPut, path: "/api/personas/nope", body: `{"name":"x","systemInstruction":"y"}`, want: http.StatusNotFound},
		{name: "delete unknown", method: http.MethodDelete, path: "/api/personas/nope", want: http.StatusNotFound},
		{name: "add without name", method: http.MethodPost, path: "/api/personas", body: `{"systemInstruction":"y"}`, want: http.StatusBadRequest},
		{name: "add malformed", method: http.MethodPost, path: "/api/personas", body: `{`, want: http.StatusBadRequest},
		{name: "polish unconfigured", method: http.MethodPost, path: "/api/personas/polish", body: `{"text":"x","field":"bio"}`, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
	assert.Equal(t, 1, f.personas.Len())
}

func TestPolish(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/personas/polish", `{"text":"rough","field":"bio"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "polished bio: rough", decode[map[string]string](t, rec)["text"])

	rec = f.do(t, http.MethodPost, "/api/personas/polish", `{"text":"  ","field":"bio"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "  ", decode[map[string]string](t, rec)["text"])

	rec = f.do(t, http.MethodPost, "/api/personas/polish", `{"text":"x","field":"name"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateRequiresGenerator(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/feed/generate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "API key")
	assert.Equal(t, 0, f.feed.Len())
}

func TestGenerateLikeSaveContinue(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/feed/generate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var gen struct {
		IDs    []string         `json:"ids"`
		Failed int              `json:"failed"`
		Items  []model.FeedItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	require.Len(t, gen.IDs, 2, "default batch size")
	assert.Zero(t, gen.Failed)
	for _, item := range gen.Items {
		assert.False(t, item.IsLoading)
		assert.Equal(t, "insight for be alpha", item.Content)
	}

	rec = f.do(t, http.MethodPost, "/api/feed/generate", `{"count":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.feed.Len())

	id := gen.IDs[0]
	rec = f.do(t, http.MethodPost, "/api/feed/"+id+"/like", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, rec)["isLiked"])

	rec = f.do(t, http.MethodPost, "/api/feed/"+id+"/save", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, rec)["isSaved"])

	rec = f.do(t, http.MethodGet, "/api/feed/saved", "")
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[[]model.FeedItem](t, rec)
	require.Len(t, saved, 1)
	assert.Equal(t, id, saved[0].ID)

	rec = f.do(t, http.MethodPost, "/api/feed/"+id+"/continue", `{"message":"tell me more"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[model.FeedItem](t, rec)
	require.Len(t, item.History, 4)
	assert.Equal(t, "reply to tell me more", item.History[3].Text())

	rec = f.do(t, http.MethodPost, "/api/feed/"+id+"/continue", `{"message":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/feed/missing/continue", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContinueWhileLoading(t *testing.T) {
	f := newFixture(t, true)
	f.feed.Add(model.FeedItem{ID: "pending", IsLoading: true})

	rec := f.do(t, http.MethodPost, "/api/feed/pending/continue", `{"message":"hi"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeedSearchAndGet(t *testing.T) {
	f := newFixture(t, false)
	alpha, _ := f.personas.Get("alpha")
	f.feed.Add(model.FeedItem{ID: "1", Persona: alpha, Content: "Quantum tunnelling"})
	f.feed.Add(model.FeedItem{ID: "2", Persona: alpha, Content: "Baroque music"})

	rec := f.do(t, http.MethodGet, "/api/feed?q=QUANTUM", "")
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]model.FeedItem](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, "1", found[0].ID)

	rec = f.do(t, http.MethodGet, "/api/feed", "")
	assert.Len(t, decode[[]model.FeedItem](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/feed/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Baroque music", decode[model.FeedItem](t, rec).Content)

	for _, path := range []string{"/api/feed/none", "/api/feed/none/like", "/api/feed/none/save"} {
		method := http.MethodPost
		if path == "/api/feed/none" {
			method = http.MethodGet
		}
		assert.Equal(t, http.StatusNotFound, f.do(t, method, path, "").Code, path)
	}
}

func TestExportImport(t *testing.T) {
	src := newFixture(t, false)
	alpha, _ := src.personas.Get("alpha")
	src.feed.Add(model.FeedItem{ID: "1", Persona: alpha, Content: "one"})

	rec := src.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inspoflow-backup-2024-05-10.json")
	exported := rec.Body.String()

	dst := newFixture(t, false)
	rec = dst.do(t, http.MethodPost, "/api/import", exported)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[backup.Result](t, rec)
	assert.Equal(t, backup.Result{PersonasUpdated: 1, ItemsAdded: 1}, res)
	assert.True(t, dst.feed.Has("1"))

	rec = dst.do(t, http.MethodPost, "/api/import", `{"personas":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "feedItems")
	assert.Equal(t, 1, dst.feed.Len())
}

func TestRSS(t *testing.T) {
	f := newFixture(t, false)
	alpha, _ := f.personas.Get("alpha")
	f.feed.Add(model.FeedItem{ID: "1", Persona: alpha, Content: "one", IsSaved: true})
	f.feed.Add(model.FeedItem{ID: "2", Persona: alpha, Content: "two"})

	rec := f.do(t, http.MethodGet, "/feed.rss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	require.Len(t, parsed.Items, 1)
	assert.Equal(t, "1", parsed.Items[0].GUID)

	rec = f.do(t, http.MethodGet, "/feed.rss?all=1", "")
	parsed, err = gofeed.NewParser().Parse(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Len(t, parsed.Items, 2)
}
