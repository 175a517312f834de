package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/liamcoop/labparser/labparser"
)

// PostgresDefinitionStore implements DefinitionStore backed by PostgreSQL.
// Every query is scoped to one laboratory. Ids are always generated by the
// database; ids set on a definition passed to Add are ignored.
type PostgresDefinitionStore struct {
	db    *sql.DB
	labID string
}

// NewPostgresDefinitionStore creates a store for the given laboratory.
func NewPostgresDefinitionStore(db *sql.DB, labID string) *PostgresDefinitionStore {
	return &PostgresDefinitionStore{
		db:    db,
		labID: labID,
	}
}

const definitionColumns = `id, full_example_text, short_description, created_at, updated_at`

const indicatorColumns = `id, test_definition_id, indicator_pattern, variable_part, value_type,
		is_key_indicator, is_required, display_order`

// Add inserts the definition and its indicators in one transaction. The
// generated ids and timestamps reach def only once the transaction commits.
func (s *PostgresDefinitionStore) Add(def *TestDefinition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	staged := def.Clone()
	err = tx.QueryRow(`
		INSERT INTO test_definitions (lab_id, full_example_text, short_description, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, s.labID, staged.FullExampleText, staged.ShortDescription).Scan(&staged.ID, &staged.CreatedAt, &staged.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert test definition: %w", err)
	}

	if err := insertIndicators(tx, staged); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit test definition: %w", err)
	}
	sortIndicators(staged.Indicators)
	*def = *staged
	return nil
}

func insertIndicators(tx *sql.Tx, def *TestDefinition) error {
	for i := range def.Indicators {
		ind := &def.Indicators[i]
		ind.DefinitionID = def.ID
		err := tx.QueryRow(`
			INSERT INTO test_indicators (test_definition_id, indicator_pattern, variable_part, value_type,
				is_key_indicator, is_required, display_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			RETURNING id
		`, def.ID, ind.Pattern, ind.VariablePart, int(ind.ValueType),
			ind.IsKeyIndicator, ind.IsRequired, ind.DisplayOrder).Scan(&ind.ID)
		if err != nil {
			return fmt.Errorf("failed to insert indicator %d: %w", i+1, err)
		}
	}
	return nil
}

// Get retrieves a definition with its indicators ordered by display order.
func (s *PostgresDefinitionStore) Get(id int64) (*TestDefinition, error) {
	var def TestDefinition
	err := s.db.QueryRow(`
		SELECT `+definitionColumns+`
		FROM test_definitions
		WHERE id = $1 AND lab_id = $2
	`, id, s.labID).Scan(&def.ID, &def.FullExampleText, &def.ShortDescription, &def.CreatedAt, &def.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test definition: %w", err)
	}

	byDef, err := s.indicatorsFor([]int64{def.ID})
	if err != nil {
		return nil, err
	}
	def.Indicators = byDef[def.ID]
	return &def, nil
}

// List returns every definition of the laboratory ordered by id.
func (s *PostgresDefinitionStore) List() ([]*TestDefinition, error) {
	return s.queryDefinitions(`
		SELECT `+definitionColumns+`
		FROM test_definitions
		WHERE lab_id = $1
		ORDER BY id ASC
	`, s.labID)
}

// Search matches query against the short description and the example text.
func (s *PostgresDefinitionStore) Search(query string) ([]*TestDefinition, error) {
	return s.queryDefinitions(`
		SELECT `+definitionColumns+`
		FROM test_definitions
		WHERE lab_id = $1 AND (short_description ILIKE $2 OR full_example_text ILIKE $2)
		ORDER BY id ASC
	`, s.labID, "%"+escapeLike(strings.TrimSpace(query))+"%")
}

func (s *PostgresDefinitionStore) queryDefinitions(query string, args ...any) ([]*TestDefinition, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list test definitions: %w", err)
	}
	defer rows.Close()

	defs := []*TestDefinition{}
	var ids []int64
	for rows.Next() {
		var d TestDefinition
		if err := rows.Scan(&d.ID, &d.FullExampleText, &d.ShortDescription, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan test definition: %w", err)
		}
		defs = append(defs, &d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test definitions: %w", err)
	}
	if len(defs) == 0 {
		return defs, nil
	}

	byDef, err := s.indicatorsFor(ids)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		d.Indicators = byDef[d.ID]
	}
	return defs, nil
}

// indicatorsFor loads the indicators of the given definitions in one query.
func (s *PostgresDefinitionStore) indicatorsFor(ids []int64) (map[int64][]Indicator, error) {
	rows, err := s.db.Query(`
		SELECT `+indicatorColumns+`
		FROM test_indicators
		WHERE test_definition_id = ANY($1)
		ORDER BY test_definition_id, display_order, id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list indicators: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Indicator, len(ids))
	for rows.Next() {
		var ind Indicator
		var valueType int
		if err := rows.Scan(&ind.ID, &ind.DefinitionID, &ind.Pattern, &ind.VariablePart, &valueType,
			&ind.IsKeyIndicator, &ind.IsRequired, &ind.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		ind.ValueType = labparser.ValueKind(valueType)
		out[ind.DefinitionID] = append(out[ind.DefinitionID], ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indicators: %w", err)
	}
	return out, nil
}

// Update rewrites the definition row and replaces all of its indicators.
func (s *PostgresDefinitionStore) Update(def *TestDefinition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	staged := def.Clone()
	err = tx.QueryRow(`
		UPDATE test_definitions
		SET full_example_text = $1, short_description = $2, updated_at = NOW()
		WHERE id = $3 AND lab_id = $4
		RETURNING created_at, updated_at
	`, staged.FullExampleText, staged.ShortDescription, staged.ID, s.labID).Scan(&staged.CreatedAt, &staged.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", ErrNotFound, def.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update test definition: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM test_indicators WHERE test_definition_id = $1`, staged.ID); err != nil {
		return fmt.Errorf("failed to delete indicators: %w", err)
	}

	if err := insertIndicators(tx, staged); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit test definition: %w", err)
	}
	sortIndicators(staged.Indicators)
	*def = *staged
	return nil
}

// Delete removes a definition; its indicators go with it via ON DELETE CASCADE.
func (s *PostgresDefinitionStore) Delete(id int64) error {
	result, err := s.db.Exec(`
		DELETE FROM test_definitions
		WHERE id = $1 AND lab_id = $2
	`, id, s.labID)
	if err != nil {
		return fmt.Errorf("failed to delete test definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
