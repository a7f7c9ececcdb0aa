// Package sqlite provides a durable memory store backed by SQLite. The
// schema is managed with embedded golang-migrate migrations; similarity
// ranking happens in Go after loading the active embeddings.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/memory"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements memory.Store using a SQLite database.
type Store struct {
	db          *sqlx.DB
	dimension   int
	maxMemories int
}

// recordRow mirrors the memory_records table.
type recordRow struct {
	ID         string    `db:"id"`
	InputText  string    `db:"input_text"`
	OutputText string    `db:"output_text"`
	Context    sql.NullString `db:"context"`
	Category   string    `db:"category"`
	Embedding  string    `db:"embedding"`
	Confidence float64   `db:"confidence"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

// NewStore opens (or creates) the database at path and applies migrations.
func NewStore(path string, dimension, maxMemories int) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Initialized SQLite store",
		"path", path,
		"dimension", dimension,
		"max_memories", maxMemories)

	return &Store{db: db, dimension: dimension, maxMemories: maxMemories}, nil
}

func runMigrations(db *sqlx.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert implements memory.Store.
func (s *Store) Insert(ctx context.Context, record memory.Record) (string, error) {
	if record.InputText == "" || record.OutputText == "" {
		return "", errors.ErrInvalidInput
	}
	if len(record.Embedding) != s.dimension {
		return "", errors.Wrap(errors.ErrDimensionMismatch,
			"expected %d dimensions, got %d", s.dimension, len(record.Embedding))
	}
	if record.Category == "" {
		record.Category = memory.CategoryGeneral
	}
	if !memory.ValidCategory(record.Category) {
		return "", errors.Wrap(errors.ErrInvalidInput, "unregistered category %q", record.Category)
	}

	embeddingJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return "", fmt.Errorf("failed to marshal embedding: %w", err)
	}

	record.ID = uuid.New().String()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	// Capacity check and insert share one transaction so a concurrent
	// insert cannot slip past the limit.
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.maxMemories > 0 {
		var active int
		if err := tx.GetContext(ctx, &active,
			`SELECT COUNT(*) FROM memory_records WHERE active = 1`); err != nil {
			return "", fmt.Errorf("failed to count records: %w", err)
		}
		if active >= s.maxMemories {
			return "", errors.ErrCapacityExceeded
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_records
			(id, input_text, output_text, context, category, embedding, confidence, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		record.ID, record.InputText, record.OutputText,
		nullable(record.Context), record.Category, string(embeddingJSON),
		record.Confidence, record.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit insert: %w", err)
	}

	log.DebugContext(ctx, "Memory stored", "memory_id", record.ID, "category", record.Category)
	return record.ID, nil
}

// Query implements memory.Store.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter *memory.Filter) ([]memory.Match, error) {
	if len(vector) != s.dimension {
		return nil, errors.Wrap(errors.ErrDimensionMismatch,
			"expected %d dimensions, got %d", s.dimension, len(vector))
	}

	query := `SELECT id, input_text, output_text, context, category, embedding, confidence, active, created_at
		FROM memory_records WHERE active = 1`
	args := []interface{}{}
	if filter != nil && filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "sqlite query failed")
	}

	matches := make([]memory.Match, 0, len(rows))
	for _, row := range rows {
		record, err := row.toRecord()
		if err != nil {
			log.WarnContext(ctx, "Skipping undecodable record", "memory_id", row.ID, "error", err)
			continue
		}
		matches = append(matches, memory.Match{
			Record:     record,
			Similarity: memory.Similarity(vector, record.Embedding),
		})
	}

	return memory.RankMatches(matches, topK), nil
}

// Deactivate implements memory.Store.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memory_records SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing record from an already-inactive one.
		var exists int
		if err := s.db.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM memory_records WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to check record: %w", err)
		}
		if exists == 0 {
			return errors.ErrNotFound
		}
	}
	return nil
}

// ListActive implements memory.Store.
func (s *Store) ListActive(ctx context.Context, filter *memory.Filter, limit, offset int) ([]memory.Record, error) {
	query := `SELECT id, input_text, output_text, context, category, embedding, confidence, active, created_at
		FROM memory_records WHERE active = 1`
	args := []interface{}{}
	if filter != nil && filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, offset)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "sqlite query failed")
	}

	records := make([]memory.Record, 0, len(rows))
	for _, row := range rows {
		record, err := row.toRecord()
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// CountActive implements memory.Store.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM memory_records WHERE active = 1`); err != nil {
		return 0, errors.Wrap(errors.ErrStoreUnavailable, "sqlite count failed")
	}
	return count, nil
}

// Dimension implements memory.Store.
func (s *Store) Dimension() int {
	return s.dimension
}

func (r recordRow) toRecord() (memory.Record, error) {
	var embedding []float32
	if err := json.Unmarshal([]byte(r.Embedding), &embedding); err != nil {
		return memory.Record{}, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return memory.Record{
		ID:         r.ID,
		InputText:  r.InputText,
		OutputText: r.OutputText,
		Context:    r.Context.String,
		Category:   memory.Category(r.Category),
		Embedding:  embedding,
		Confidence: r.Confidence,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
	}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
