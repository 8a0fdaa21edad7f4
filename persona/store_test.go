package persona

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/store"
)

func seeded(t *testing.T, personas ...model.Persona) (*Store, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	raw, err := json.Marshal(personas)
	require.NoError(t, err)
	require.NoError(t, repo.Save(store.KeyPersonas, raw))
	return New(repo, nil), repo
}

func stored(t *testing.T, repo *store.Memory) []model.Persona {
	t.Helper()
	raw, err := repo.Load(store.KeyPersonas)
	require.NoError(t, err)
	var out []model.Persona
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestNew_FallsBackToSeeds(t *testing.T) {
	repo := store.NewMemory()
	s := New(repo, nil)

	assert.Equal(t, model.SeedPersonas(), s.List())
	assert.Len(t, stored(t, repo), 10, "seeds are persisted on start")
}

func TestNew_CorruptRecordFallsBackToSeeds(t *testing.T) {
	repo := store.NewMemory()
	require.NoError(t, repo.Save(store.KeyPersonas, []byte("{not json")))

	s := New(repo, nil)
	assert.Equal(t, 10, s.Len())
}

func TestNew_AssignsMissingIDs(t *testing.T) {
	repo := store.NewMemory()
	require.NoError(t, repo.Save(store.KeyPersonas, []byte(`[{"id":"a","name":"Alpha"},{"name":"NoID"}]`)))

	s := New(repo, nil)
	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.NotEmpty(t, list[1].ID)
	assert.Equal(t, "NoID", list[1].Name)

	assert.Equal(t, list[1].ID, stored(t, repo)[1].ID, "repaired id is written back")
}

func TestStore_AddAssignsFreshID(t *testing.T) {
	s, _ := seeded(t, model.Persona{ID: "a", Name: "Alpha"})

	data := model.PersonaData{Name: "Beta", Bio: "second", Tags: []string{"x", "y"}}
	p := s.Add(data)
	p2 := s.Add(data)

	assert.NotEmpty(t, p.ID)
	assert.NotEqual(t, "a", p.ID)
	assert.NotEqual(t, p.ID, p2.ID, "names are not unique, ids are")

	got, ok := s.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, data.WithID(p.ID), got)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, p.ID, list[1].ID, "add appends in insertion order")
}

func TestStore_UpdateUnknownIDIsNoop(t *testing.T) {
	s, repo := seeded(t, model.Persona{ID: "a", Name: "Alpha"}, model.Persona{ID: "b", Name: "Beta"})
	before := s.List()
	saves := repo.Saves()

	ok := s.Update(model.Persona{ID: "zzz", Name: "Ghost"})

	assert.False(t, ok)
	assert.Equal(t, before, s.List())
	assert.Equal(t, saves, repo.Saves())
}

func TestStore_UpdatePreservesID(t *testing.T) {
	s, repo := seeded(t, model.Persona{ID: "a", Name: "Alpha"})

	ok := s.Update(model.Persona{ID: "a", Name: "Alpha 2", Bio: "new bio"})
	require.True(t, ok)

	got, found := s.Get("a")
	require.True(t, found)
	assert.Equal(t, "Alpha 2", got.Name)
	assert.Equal(t, "Alpha 2", stored(t, repo)[0].Name)
}

func TestStore_Delete(t *testing.T) {
	s, _ := seeded(t, model.Persona{ID: "a"}, model.Persona{ID: "b"})

	assert.True(t, s.Delete("a"))
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.Delete("a"), "deleting an absent id is a no-op")
	assert.Equal(t, 1, s.Len())
}

func TestStore_ReturnedValuesDoNotAlias(t *testing.T) {
	s, _ := seeded(t, model.Persona{ID: "a", Tags: []string{"one"}})

	got, _ := s.Get("a")
	got.Tags[0] = "changed"

	again, _ := s.Get("a")
	assert.Equal(t, "one", again.Tags[0])
}

func TestStore_Upsert(t *testing.T) {
	s, _ := seeded(t, model.Persona{ID: "a", Name: "Alpha"})

	_, inserted := s.Upsert(model.Persona{ID: "a", Name: "Alpha updated"})
	assert.False(t, inserted)
	got, _ := s.Get("a")
	assert.Equal(t, "Alpha updated", got.Name)

	p, inserted := s.Upsert(model.Persona{ID: "b", Name: "Beta"})
	assert.True(t, inserted)
	assert.Equal(t, "b", p.ID, "unknown ids are kept")

	p, inserted = s.Upsert(model.Persona{Name: "Gamma"})
	assert.True(t, inserted)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 3, s.Len())
}

func TestStore_PersistenceFailureKeepsMemoryState(t *testing.T) {
	s, repo := seeded(t, model.Persona{ID: "a", Name: "Alpha"})
	repo.FailSaves(true)

	p := s.Add(model.PersonaData{Name: "Beta"})

	got, ok := s.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Beta", got.Name)
	assert.Len(t, stored(t, repo), 1, "durable copy is stale but the store is correct")
}

func TestStore_ReloadsFromRepository(t *testing.T) {
	s, repo := seeded(t, model.Persona{ID: "a", Name: "Alpha"})
	p := s.Add(model.PersonaData{Name: "Beta"})

	reloaded := New(repo, nil)
	assert.Equal(t, s.List(), reloaded.List())
	_, ok := reloaded.Get(p.ID)
	assert.True(t, ok)
}

func TestNew_NullTagsStoredAsArrays(t *testing.T) {
	repo := store.NewMemory()
	require.NoError(t, repo.Save(store.KeyPersonas, []byte(`[{"id":"a","name":"Alpha","tags":null}]`)))

	s := New(repo, nil)
	p, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{}, p.Tags)

	raw, err := repo.Load(store.KeyPersonas)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","name":"Alpha","avatarUrl":"","bio":"","systemInstruction":"","cardClassName":"","tags":[]}]`, string(raw))
}
