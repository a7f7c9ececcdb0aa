// Package pgvector backs the memory store with PostgreSQL and the pgvector
// extension. This is the remote-store option: records are durable and
// similarity ranking happens server-side.
package pgvector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/memory"
)

// Config contains the configuration for the pgvector store.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// TableName is the table used for memory records
	TableName string

	// Dimension is the fixed embedding dimensionality
	Dimension int

	// MaxMemories caps the number of active records
	MaxMemories int
}

// Store implements memory.Store using PostgreSQL with pgvector.
type Store struct {
	db          *pgxpool.Pool
	tableName   string
	dimension   int
	maxMemories int
}

// NewStore connects to PostgreSQL and ensures the table and indexes exist.
func NewStore(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "connection string cannot be empty")
	}
	if config.TableName == "" {
		config.TableName = "memory_records"
	}
	if config.Dimension <= 0 {
		config.Dimension = 1536
	}

	db, err := pgxpool.New(ctx, config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{
		db:          db,
		tableName:   config.TableName,
		dimension:   config.Dimension,
		maxMemories: config.MaxMemories,
	}
	if err := store.initializeTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize pgvector table: %w", err)
	}

	log.Debug("Initialized pgvector store",
		"table", config.TableName,
		"dimension", config.Dimension)

	return store, nil
}

func (s *Store) initializeTable(ctx context.Context) error {
	var extensionExists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&extensionExists)
	if err != nil {
		return fmt.Errorf("failed to check for pgvector extension: %w", err)
	}
	if !extensionExists {
		if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create pgvector extension: %w", err)
		}
		log.Info("Created pgvector extension")
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			input_text TEXT NOT NULL,
			output_text TEXT NOT NULL,
			context TEXT,
			category TEXT NOT NULL DEFAULT 'general',
			embedding VECTOR(%d) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)
	`, s.tableName, s.dimension))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indices := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_active_idx ON %s (active)", s.tableName, s.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_category_idx ON %s (category)", s.tableName, s.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)", s.tableName, s.tableName),
	}
	for _, sql := range indices {
		if _, err := s.db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
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

	record.ID = uuid.New().String()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.maxMemories > 0 {
		var active int
		err := tx.QueryRow(ctx, fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE active`, s.tableName)).Scan(&active)
		if err != nil {
			return "", fmt.Errorf("failed to count records: %w", err)
		}
		if active >= s.maxMemories {
			return "", errors.ErrCapacityExceeded
		}
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, input_text, output_text, context, category, embedding, confidence, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::vector, $7, TRUE, $8)
	`, s.tableName),
		record.ID, record.InputText, record.OutputText, record.Context,
		string(record.Category), embedToString(record.Embedding),
		record.Confidence, record.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.DebugContext(ctx, "Memory stored", "memory_id", record.ID, "table", s.tableName)
	return record.ID, nil
}

// Query implements memory.Store. Ranking is done server-side with the
// cosine distance operator; ties on similarity break by newer created_at.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter *memory.Filter) ([]memory.Match, error) {
	if len(vector) != s.dimension {
		return nil, errors.Wrap(errors.ErrDimensionMismatch,
			"expected %d dimensions, got %d", s.dimension, len(vector))
	}
	if topK <= 0 {
		topK = 5
	}

	sql := fmt.Sprintf(`
		SELECT id, input_text, output_text, COALESCE(context, ''), category, confidence, created_at,
			1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		WHERE active
	`, s.tableName)
	args := []interface{}{embedToString(vector)}
	if filter != nil && filter.Category != "" {
		sql += ` AND category = $2`
		args = append(args, string(filter.Category))
	}
	sql += fmt.Sprintf(` ORDER BY similarity DESC, created_at DESC LIMIT %d`, topK)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "pgvector query failed")
	}
	defer rows.Close()

	return scanMatches(rows)
}

// Deactivate implements memory.Store.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET active = FALSE WHERE id = $1`, s.tableName), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.db.QueryRow(ctx, fmt.Sprintf(
			`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.tableName), id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check record: %w", err)
		}
		if !exists {
			return errors.ErrNotFound
		}
	}
	return nil
}

// ListActive implements memory.Store.
func (s *Store) ListActive(ctx context.Context, filter *memory.Filter, limit, offset int) ([]memory.Record, error) {
	sql := fmt.Sprintf(`
		SELECT id, input_text, output_text, COALESCE(context, ''), category, confidence, created_at, 1.0
		FROM %s
		WHERE active
	`, s.tableName)
	args := []interface{}{}
	argn := 1
	if filter != nil && filter.Category != "" {
		sql += fmt.Sprintf(` AND category = $%d`, argn)
		args = append(args, string(filter.Category))
		argn++
	}
	sql += ` ORDER BY created_at DESC`
	if limit > 0 {
		sql += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argn, argn+1)
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "pgvector query failed")
	}
	defer rows.Close()

	matches, err := scanMatches(rows)
	if err != nil {
		return nil, err
	}
	records := make([]memory.Record, len(matches))
	for i, m := range matches {
		records[i] = m.Record
	}
	return records, nil
}

// CountActive implements memory.Store.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE active`, s.tableName)).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrStoreUnavailable, "pgvector count failed")
	}
	return count, nil
}

// Dimension implements memory.Store.
func (s *Store) Dimension() int {
	return s.dimension
}

func scanMatches(rows pgx.Rows) ([]memory.Match, error) {
	var matches []memory.Match
	for rows.Next() {
		var (
			record     memory.Record
			category   string
			similarity float64
		)
		err := rows.Scan(&record.ID, &record.InputText, &record.OutputText,
			&record.Context, &category, &record.Confidence, &record.CreatedAt, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record.Category = memory.Category(category)
		record.Active = true
		matches = append(matches, memory.Match{Record: record, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return matches, nil
}

// embedToString renders a vector in pgvector's literal format: [1,2,3].
func embedToString(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
