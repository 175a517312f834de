// Package multilab keeps one rules.Engine per laboratory. Every laboratory
// authors its own test definitions, so rule sets are never shared.
package multilab

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/labparser/internal/logger"
	"github.com/liamcoop/labparser/rules"
)

// ErrLabNotFound is returned for laboratories the manager does not know.
var ErrLabNotFound = errors.New("lab not found")

// StoreFactory returns the definition store of one laboratory.
type StoreFactory func(labID string) rules.DefinitionStore

// Lab describes a loaded laboratory.
type Lab struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// LabEngine wraps a rules.Engine with the laboratory it belongs to.
type LabEngine struct {
	Lab    Lab
	Engine *rules.Engine
}

// Manager manages engines for all laboratories.
type Manager struct {
	engines    map[string]*LabEngine
	db         *sql.DB
	newStore   StoreFactory
	engineOpts []rules.EngineOption
	mu         sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithStoreFactory replaces the PostgreSQL store used per laboratory.
func WithStoreFactory(f StoreFactory) Option {
	return func(m *Manager) {
		m.newStore = f
	}
}

// WithEngineOptions passes options to every engine the manager creates.
func WithEngineOptions(opts ...rules.EngineOption) Option {
	return func(m *Manager) {
		m.engineOpts = append(m.engineOpts, opts...)
	}
}

// NewManager creates a manager. With a nil db, laboratories live only in
// memory and a store factory must be given.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		engines: make(map[string]*LabEngine),
		db:      db,
	}
	if db != nil {
		m.newStore = func(labID string) rules.DefinitionStore {
			return rules.NewPostgresDefinitionStore(db, labID)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InMemoryStores returns a factory that hands out one in-memory store per
// laboratory and returns the same store on every call for that laboratory.
func InMemoryStores() StoreFactory {
	var mu sync.Mutex
	stores := make(map[string]rules.DefinitionStore)
	return func(labID string) rules.DefinitionStore {
		mu.Lock()
		defer mu.Unlock()
		s, ok := stores[labID]
		if !ok {
			s = rules.NewInMemoryDefinitionStore()
			stores[labID] = s
		}
		return s
	}
}

// LoadAllLabs loads every laboratory from the database and compiles its rules.
func (m *Manager) LoadAllLabs() error {
	if m.db == nil {
		return nil
	}

	rows, err := m.db.Query(`SELECT id, name, created_at FROM labs ORDER BY name`)
	if err != nil {
		return fmt.Errorf("failed to fetch labs: %w", err)
	}
	defer rows.Close()

	var labs []Lab
	for rows.Next() {
		var lab Lab
		if err := rows.Scan(&lab.ID, &lab.Name, &lab.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan lab row: %w", err)
		}
		labs = append(labs, lab)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating lab rows: %w", err)
	}

	for _, lab := range labs {
		if err := m.AddLab(lab); err != nil {
			return fmt.Errorf("failed to initialize lab %s: %w", lab.ID, err)
		}
	}

	logger.Info("labs loaded", "count", len(labs))
	return nil
}

// CreateLab registers a new laboratory and starts an empty engine for it.
func (m *Manager) CreateLab(name string) (Lab, error) {
	if err := ValidateLabName(name); err != nil {
		return Lab{}, err
	}

	lab := Lab{Name: name}
	if m.db != nil {
		err := m.db.QueryRow(`
			INSERT INTO labs (name, created_at, updated_at)
			VALUES ($1, NOW(), NOW())
			RETURNING id, created_at
		`, name).Scan(&lab.ID, &lab.CreatedAt)
		if err != nil {
			return Lab{}, fmt.Errorf("failed to create lab: %w", err)
		}
	} else {
		lab.ID = uuid.New().String()
		lab.CreatedAt = time.Now()
	}

	if err := m.AddLab(lab); err != nil {
		return Lab{}, err
	}
	return lab, nil
}

// AddLab starts an engine for a laboratory that already exists in storage.
func (m *Manager) AddLab(lab Lab) error {
	engine, err := m.newEngine(lab.ID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[lab.ID] = &LabEngine{Lab: lab, Engine: engine}
	m.mu.Unlock()
	return nil
}

func (m *Manager) newEngine(labID string) (*rules.Engine, error) {
	if m.newStore == nil {
		return nil, errors.New("no definition store configured")
	}
	engine, err := rules.NewEngine(m.newStore(labID), m.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, nil
}

// GetEngine retrieves the engine of a laboratory.
func (m *Manager) GetEngine(labID string) (*rules.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	le, exists := m.engines[labID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrLabNotFound, labID)
	}
	return le.Engine, nil
}

// ReloadLab builds a fresh engine from storage and swaps it in. Requests
// already holding the old engine finish on it.
func (m *Manager) ReloadLab(labID string) error {
	m.mu.RLock()
	le, exists := m.engines[labID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrLabNotFound, labID)
	}

	engine, err := m.newEngine(labID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[labID] = &LabEngine{Lab: le.Lab, Engine: engine}
	m.mu.Unlock()

	logger.Info("lab reloaded", "lab_id", labID, "rules", engine.RuleSet().Len())
	return nil
}

// ListLabs returns all loaded laboratories ordered by name.
func (m *Manager) ListLabs() []Lab {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labs := make([]Lab, 0, len(m.engines))
	for _, le := range m.engines {
		labs = append(labs, le.Lab)
	}
	sort.Slice(labs, func(i, j int) bool {
		if labs[i].Name != labs[j].Name {
			return labs[i].Name < labs[j].Name
		}
		return labs[i].ID < labs[j].ID
	})
	return labs
}

// DeleteLab removes a laboratory. With a database the row is deleted too and
// its definitions go with it.
func (m *Manager) DeleteLab(labID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[labID]; !exists {
		return fmt.Errorf("%w: %s", ErrLabNotFound, labID)
	}

	if m.db != nil {
		if _, err := m.db.Exec(`DELETE FROM labs WHERE id = $1`, labID); err != nil {
			return fmt.Errorf("failed to delete lab: %w", err)
		}
	}

	delete(m.engines, labID)
	return nil
}
