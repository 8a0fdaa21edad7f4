// Package persona holds the authoritative persona collection.
package persona

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/store"
)

// ErrNotFound is returned by callers that need an error for a missed lookup.
var ErrNotFound = errors.New("persona not found")

// Store owns the ordered persona collection and mirrors every change to the
// repository under store.KeyPersonas.
type Store struct {
	mu       sync.RWMutex
	personas []model.Persona
	repo     store.Repository
	logger   *zap.Logger
}

// New loads the persona collection from repo. A missing or unreadable record
// falls back to the built-in seeds; stored personas without an id get one.
func New(repo store.Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{repo: repo, logger: logger}
	s.personas = s.load()
	s.persist()
	return s
}

func (s *Store) load() []model.Persona {
	raw, err := s.repo.Load(store.KeyPersonas)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to read personas", zap.Error(err))
		}
		return model.SeedPersonas()
	}

	var personas []model.Persona
	if err := json.Unmarshal(raw, &personas); err != nil {
		s.logger.Error("failed to decode personas, using seeds", zap.Error(err))
		return model.SeedPersonas()
	}
	if personas == nil {
		// A stored JSON null is not a collection.
		return model.SeedPersonas()
	}

	for i := range personas {
		personas[i] = personas[i].Clone()
		if personas[i].ID == "" {
			personas[i].ID = uuid.NewString()
			s.logger.Info("assigned id to stored persona",
				zap.String("id", personas[i].ID), zap.String("name", personas[i].Name))
		}
	}
	return personas
}

// persist writes the whole collection. Failures are logged and never undo
// the in-memory state. Callers must hold the lock.
func (s *Store) persist() {
	raw, err := json.Marshal(s.personas)
	if err != nil {
		s.logger.Error("failed to encode personas", zap.Error(err))
		return
	}
	if err := s.repo.Save(store.KeyPersonas, raw); err != nil {
		s.logger.Error("failed to save personas",
			zap.String("key", store.KeyPersonas), zap.Error(err))
	}
}

// List returns the personas in insertion order.
func (s *Store) List() []model.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Persona, len(s.personas))
	for i, p := range s.personas {
		out[i] = p.Clone()
	}
	return out
}

// Len returns the number of personas.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.personas)
}

// Add appends a persona with a fresh id and returns it.
func (s *Store) Add(data model.PersonaData) model.Persona {
	p := data.WithID(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas = append(s.personas, p)
	s.persist()
	return p.Clone()
}

// Update replaces the persona with the same id. It reports whether one was
// found; an unknown id leaves the collection untouched.
func (s *Store) Update(p model.Persona) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(p.ID)
	if i < 0 {
		return false
	}
	s.personas[i] = p.Clone()
	s.persist()
	return true
}

// Delete removes the persona with id and reports whether it existed.
// Feed items keep their own snapshot and are not touched.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.personas = append(s.personas[:i], s.personas[i+1:]...)
	s.persist()
	return true
}

// Get returns the persona with id.
func (s *Store) Get(id string) (model.Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.Persona{}, false
	}
	return s.personas[i].Clone(), true
}

// Upsert updates the persona with a matching id or appends it as new. A
// persona without an id is given a fresh one. It reports whether the
// persona was inserted.
func (s *Store) Upsert(p model.Persona) (model.Persona, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID != "" {
		if i := s.indexOf(p.ID); i >= 0 {
			s.personas[i] = p.Clone()
			s.persist()
			return p.Clone(), false
		}
	} else {
		p.ID = uuid.NewString()
	}
	s.personas = append(s.personas, p.Clone())
	s.persist()
	return p.Clone(), true
}

func (s *Store) indexOf(id string) int {
	for i := range s.personas {
		if s.personas[i].ID == id {
			return i
		}
	}
	return -1
}
