package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a definition does not exist.
	ErrNotFound = errors.New("test definition not found")
	// ErrAlreadyExists is returned when adding a definition whose id is taken.
	ErrAlreadyExists = errors.New("test definition already exists")
)

// DefinitionStore persists test definitions together with their indicators.
type DefinitionStore interface {
	// Add stores a new definition and assigns ids to it and its indicators.
	Add(def *TestDefinition) error

	// Get returns a definition with its indicators.
	Get(id int64) (*TestDefinition, error)

	// List returns every definition ordered by id.
	List() ([]*TestDefinition, error)

	// Search returns definitions whose short description or example text
	// contains query, case-insensitively.
	Search(query string) ([]*TestDefinition, error)

	// Update replaces a definition's fields and its whole indicator list.
	Update(def *TestDefinition) error

	// Delete removes a definition and its indicators.
	Delete(id int64) error
}

// InMemoryDefinitionStore implements DefinitionStore with maps guarded by a
// RWMutex.
type InMemoryDefinitionStore struct {
	defs           map[int64]*TestDefinition
	nextDefinition int64
	nextIndicator  int64
	mu             sync.RWMutex
}

// NewInMemoryDefinitionStore creates an empty store.
func NewInMemoryDefinitionStore() *InMemoryDefinitionStore {
	return &InMemoryDefinitionStore{
		defs: make(map[int64]*TestDefinition),
	}
}

// Add keeps ids that are already set and assigns the next free ones
// otherwise.
func (s *InMemoryDefinitionStore) Add(def *TestDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.ID != 0 {
		if _, exists := s.defs[def.ID]; exists {
			return fmt.Errorf("%w: id %d", ErrAlreadyExists, def.ID)
		}
	} else {
		def.ID = s.nextDefinition + 1
	}
	if def.ID > s.nextDefinition {
		s.nextDefinition = def.ID
	}

	s.assignIndicatorIDs(def)

	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now
	s.defs[def.ID] = def.Clone()
	return nil
}

func (s *InMemoryDefinitionStore) assignIndicatorIDs(def *TestDefinition) {
	for i := range def.Indicators {
		ind := &def.Indicators[i]
		ind.DefinitionID = def.ID
		if ind.ID == 0 {
			ind.ID = s.nextIndicator + 1
		}
		if ind.ID > s.nextIndicator {
			s.nextIndicator = ind.ID
		}
	}
	sortIndicators(def.Indicators)
}

func (s *InMemoryDefinitionStore) Get(id int64) (*TestDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.defs[id]
	if !exists {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return def.Clone(), nil
}

func (s *InMemoryDefinitionStore) List() ([]*TestDefinition, error) {
	return s.filter(func(*TestDefinition) bool { return true }), nil
}

func (s *InMemoryDefinitionStore) Search(query string) ([]*TestDefinition, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return s.filter(func(d *TestDefinition) bool {
		return strings.Contains(strings.ToLower(d.ShortDescription), q) ||
			strings.Contains(strings.ToLower(d.FullExampleText), q)
	}), nil
}

func (s *InMemoryDefinitionStore) filter(keep func(*TestDefinition) bool) []*TestDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TestDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update preserves CreatedAt and replaces the indicator list.
func (s *InMemoryDefinitionStore) Update(def *TestDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.defs[def.ID]
	if !exists {
		return fmt.Errorf("%w: id %d", ErrNotFound, def.ID)
	}

	s.assignIndicatorIDs(def)
	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now()
	s.defs[def.ID] = def.Clone()
	return nil
}

func (s *InMemoryDefinitionStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[id]; !exists {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	delete(s.defs, id)
	return nil
}
