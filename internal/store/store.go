package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var (
	// ErrLengthMismatch means the parallel slices passed to Add differ in length.
	ErrLengthMismatch = errors.New("texts, vectors, metadatas and ids must have the same length")
	// ErrDimensionMismatch means a vector does not match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension does not match the collection")
)

// Store provides persistence for chunks, their embeddings and index bookkeeping.
type Store interface {
	// Add upserts chunks by id. All slices must have the same length.
	Add(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) error
	// Search returns up to topK chunks closest to vector, best first.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error)
	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
	// SourceHash returns the stored content hash for a source, or "" if unknown.
	SourceHash(ctx context.Context, path string) (string, error)
	// SetSourceHash records the content hash of an indexed source.
	SetSourceHash(ctx context.Context, path, hash string) error
	// DeleteSource removes a source's chunks, embeddings and hash.
	DeleteSource(ctx context.Context, path string) error
	// GetMeta returns a metadata value by key, or "" if not set.
	GetMeta(ctx context.Context, key string) (string, error)
	// SetMeta sets a metadata key-value pair.
	SetMeta(ctx context.Context, key, value string) error
	// Reset removes every chunk, embedding, source and metadata entry.
	Reset(ctx context.Context) error
	// Close closes the underlying database.
	Close() error
}

// SQLiteStore implements Store backed by SQLite + sqlite-vec.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path and initializes the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) error {
	n := len(texts)
	if len(vectors) != n || len(metadatas) != n || len(ids) != n {
		return fmt.Errorf("%w: texts=%d vectors=%d metadatas=%d ids=%d",
			ErrLengthMismatch, n, len(vectors), len(metadatas), len(ids))
	}
	if n == 0 {
		return nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensureVecTable(ctx, tx, dim); err != nil {
		return err
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (ext_id, source, content, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(ext_id) DO UPDATE SET
			source = excluded.source, content = excluded.content, metadata = excluded.metadata
		RETURNING id`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	delVec, err := tx.PrepareContext(ctx, "DELETE FROM vec_chunks WHERE chunk_id = ?")
	if err != nil {
		return err
	}
	defer delVec.Close()

	insVec, err := tx.PrepareContext(ctx, "INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer insVec.Close()

	for i := range texts {
		meta, err := encodeMetadata(metadatas[i])
		if err != nil {
			return err
		}
		var rowID int64
		if err := upsert.QueryRowContext(ctx, ids[i], SourceOf(metadatas[i]), texts[i], meta).Scan(&rowID); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ids[i], err)
		}
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %s: %w", ids[i], err)
		}
		if _, err := delVec.ExecContext(ctx, rowID); err != nil {
			return err
		}
		if _, err := insVec.ExecContext(ctx, rowID, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %s: %w", ids[i], err)
		}
	}
	return tx.Commit()
}

// ensureVecTable creates the vector table on first use and checks the
// dimension against the recorded one afterwards.
func ensureVecTable(ctx context.Context, tx *sql.Tx, dim int) error {
	var stored string
	err := tx.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", MetaVectorDim).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	exists, err := hasVecTable(ctx, tx)
	if err != nil {
		return err
	}
	if exists && stored != "" {
		if stored != strconv.Itoa(dim) {
			return fmt.Errorf("%w: collection has %s dimensions, got %d", ErrDimensionMismatch, stored, dim)
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx, vecDDL(dim)); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		MetaVectorDim, strconv.Itoa(dim),
	)
	return err
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	exists, err := hasVecTable(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []SearchResult{}, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}

	var rows *sql.Rows
	if len(filter) == 0 {
		rows, err = s.db.QueryContext(ctx, `
			WITH knn AS (
				SELECT chunk_id, distance FROM vec_chunks
				WHERE embedding MATCH ? AND k = ?
			)
			SELECT c.ext_id, c.content, c.metadata, knn.distance
			FROM knn JOIN chunks c ON c.id = knn.chunk_id
			ORDER BY knn.distance, c.id`, blob, topK)
	} else {
		query, args := filteredQuery(blob, topK, filter)
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r        SearchResult
			meta     string
			distance sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Text, &meta, &distance); err != nil {
			return nil, err
		}
		if r.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		if distance.Valid {
			d := distance.Float64
			r.Distance = &d
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// filteredQuery scans the rows matching every metadata equality and ranks
// them by exact cosine distance.
func filteredQuery(blob []byte, topK int, filter Filter) (string, []any) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{blob}
	where := make([]string, 0, len(keys))
	for _, k := range keys {
		where = append(where, "json_extract(c.metadata, ?) = ?")
		args = append(args, jsonPath(k), filter[k])
	}
	args = append(args, topK)

	query := `
		SELECT c.ext_id, c.content, c.metadata, vec_distance_cosine(v.embedding, ?) AS distance
		FROM chunks c JOIN vec_chunks v ON v.chunk_id = c.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY distance, c.id
		LIMIT ?`
	return query, args
}

func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

func (s *SQLiteStore) SourceHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT hash FROM sources WHERE path = ?", path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

func (s *SQLiteStore) SetSourceHash(ctx context.Context, path, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (path, hash) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, indexed_at = CURRENT_TIMESTAMP`,
		path, hash,
	)
	return err
}

func (s *SQLiteStore) DeleteSource(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := hasVecTable(ctx, tx)
	if err != nil {
		return err
	}
	if exists {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE source = ?)", path,
		); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE path = ?", path); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS " + vecTable,
		"DELETE FROM chunks",
		"DELETE FROM sources",
		"DELETE FROM meta",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
