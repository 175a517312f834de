package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/liamcoop/labparser/internal/logger"
	"github.com/liamcoop/labparser/labparser"
)

// Engine owns a laboratory's definitions and the RuleSet compiled from them.
// Mutations go through the store and then recompile; parsing always uses
// the last RuleSet that was swapped in, so readers never wait on a compile.
type Engine struct {
	store     DefinitionStore
	cache     DefinitionsCache
	compiler  *labparser.Compiler
	batchOpts []labparser.BatchOption

	ruleSet   *labparser.RuleSet
	ruleDefs  []*TestDefinition // the definitions ruleSet was compiled from
	mu        sync.RWMutex
	compileMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCompiler sets the compiler used for every recompilation.
func WithCompiler(c *labparser.Compiler) EngineOption {
	return func(en *Engine) {
		en.compiler = c
	}
}

// WithCache replaces the default in-memory definitions cache.
func WithCache(c DefinitionsCache) EngineOption {
	return func(en *Engine) {
		en.cache = c
	}
}

// WithBatchOptions sets the options ParseAll passes to the RuleSet.
func WithBatchOptions(opts ...labparser.BatchOption) EngineOption {
	return func(en *Engine) {
		en.batchOpts = append(en.batchOpts, opts...)
	}
}

// NewEngine creates an engine and compiles every stored definition.
func NewEngine(store DefinitionStore, opts ...EngineOption) (*Engine, error) {
	en := &Engine{
		store:    store,
		cache:    NewInMemoryDefinitionsCache(DefaultCacheConfig()),
		compiler: labparser.NewCompiler(),
	}
	for _, opt := range opts {
		opt(en)
	}

	if err := en.Recompile(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return en, nil
}

// Recompile reloads every definition from the store and swaps in a new
// RuleSet.
func (en *Engine) Recompile() error {
	en.compileMu.Lock()
	defer en.compileMu.Unlock()

	defs, err := en.store.List()
	if err != nil {
		return err
	}

	rs := en.compiler.Compile(Descriptors(defs))

	en.mu.Lock()
	en.ruleSet = rs
	en.ruleDefs = defs
	en.mu.Unlock()

	en.cache.Set(defs)

	stats := rs.PrefilterStats()
	logger.Info("compiled rule set",
		"definitions", len(defs),
		"rules", rs.Len(),
		"dropped", len(rs.Dropped()),
		"filtered_groups", stats.FilteredGroups,
		"groups", stats.Groups)
	return nil
}

// RuleSet returns the current compiled rules.
func (en *Engine) RuleSet() *labparser.RuleSet {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return en.ruleSet
}

// checkCompiles rejects a definition any of whose indicators would be
// dropped by the compiler.
func (en *Engine) checkCompiles(def *TestDefinition) error {
	probe := def.Clone()
	for i := range probe.Indicators {
		// Unsaved indicators have no id yet; give them distinct ones so the
		// error can point at the right position.
		probe.Indicators[i].ID = int64(i + 1)
	}
	rs := en.compiler.Compile(Descriptors([]*TestDefinition{probe}))
	if dropped := rs.Dropped(); len(dropped) > 0 {
		return fmt.Errorf("%w: indicator %d: %v", ErrInvalidDefinition, dropped[0].Indicator.ID, dropped[0].Err)
	}
	return nil
}

// AddDefinition validates, stores and compiles a new definition.
func (en *Engine) AddDefinition(def *TestDefinition) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}
	if err := en.checkCompiles(def); err != nil {
		return err
	}

	if err := en.store.Add(def); err != nil {
		return err
	}

	en.cache.Invalidate()
	return en.Recompile()
}

// UpdateDefinition replaces a definition and its indicators.
func (en *Engine) UpdateDefinition(def *TestDefinition) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}
	if err := en.checkCompiles(def); err != nil {
		return err
	}

	if err := en.store.Update(def); err != nil {
		return err
	}

	en.cache.Invalidate()
	return en.Recompile()
}

// DeleteDefinition removes a definition and recompiles.
func (en *Engine) DeleteDefinition(id int64) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.cache.Invalidate()
	return en.Recompile()
}

// GetDefinition reads one definition from the store.
func (en *Engine) GetDefinition(id int64) (*TestDefinition, error) {
	return en.store.Get(id)
}

// Definitions lists every definition, from the cache when it is valid.
func (en *Engine) Definitions() ([]*TestDefinition, error) {
	if defs := en.cache.Get(); defs != nil {
		return defs, nil
	}

	defs, err := en.store.List()
	if err != nil {
		return nil, err
	}
	en.cache.Set(defs)
	return defs, nil
}

// SearchDefinitions finds definitions by short description or example text.
// An empty query lists everything.
func (en *Engine) SearchDefinitions(query string) ([]*TestDefinition, error) {
	if query == "" {
		return en.Definitions()
	}
	return en.store.Search(query)
}

// Parse parses one record's text with the current rules.
func (en *Engine) Parse(raw *string) labparser.ParseResult {
	return en.RuleSet().Parse(raw)
}

// ParseValue parses a raw column value of any type.
func (en *Engine) ParseValue(v any) labparser.ParseResult {
	return en.RuleSet().ParseValue(v)
}

// ParseAll fills in Results for every record. All records of one call use the
// same RuleSet even if a recompilation happens meanwhile.
func (en *Engine) ParseAll(ctx context.Context, records []*labparser.Record) error {
	return en.RuleSet().ParseAll(ctx, records, en.batchOpts...)
}

// ParseAllWithColumns is ParseAll that also returns the test columns of the
// batch. Columns are named from the definitions the parsing RuleSet was
// compiled from, so a concurrent recompilation cannot mix the two.
func (en *Engine) ParseAllWithColumns(ctx context.Context, records []*labparser.Record) ([]string, error) {
	en.mu.RLock()
	rs, defs := en.ruleSet, en.ruleDefs
	en.mu.RUnlock()

	if err := rs.ParseAll(ctx, records, en.batchOpts...); err != nil {
		return nil, err
	}
	return TestColumns(records, defs), nil
}

// Dropped returns the indicators the current RuleSet left out.
func (en *Engine) Dropped() []labparser.DroppedIndicator {
	return en.RuleSet().Dropped()
}
