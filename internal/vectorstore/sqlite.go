package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"vault-ai/internal/contextutil"
)

var metadataKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var (
	_ Index          = (*SQLiteIndex)(nil)
	_ SourceReplacer = (*sqliteCollection)(nil)
)

// SQLiteIndex implements Index on top of SQLite. Embeddings are stored as
// little-endian float32 BLOBs and searched by brute force using squared
// Euclidean distance.
type SQLiteIndex struct {
	db         *sql.DB
	embedder   Embedder
	vectorSize int
}

// NewSQLiteIndex creates the index tables in db if needed.
func NewSQLiteIndex(db *sql.DB, embedder Embedder, vectorSize int) (*SQLiteIndex, error) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS vector_collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS vector_entries (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			document TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (collection, id),
			FOREIGN KEY (collection) REFERENCES vector_collections(name) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vector_entries_source ON vector_entries(collection, source);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create vector tables: %w", err)
		}
	}

	return &SQLiteIndex{
		db:         db,
		embedder:   embedder,
		vectorSize: vectorSize,
	}, nil
}

// Collection implements Index.
func (s *SQLiteIndex) Collection(ctx context.Context, name string) (Collection, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO vector_collections (name, dimension) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
		name, s.vectorSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	var dimension int
	err = s.db.QueryRowContext(ctx,
		"SELECT dimension FROM vector_collections WHERE name = ?", name,
	).Scan(&dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if dimension != s.vectorSize {
		return nil, fmt.Errorf("collection vector size mismatch: expected %d, got %d", s.vectorSize, dimension)
	}

	return &sqliteCollection{index: s, name: name}, nil
}

// Ping implements Index.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type sqliteCollection struct {
	index *SQLiteIndex
	name  string
}

func (c *sqliteCollection) Name() string {
	return c.name
}

// Delete removes entries matching where. The source key uses its own column;
// other keys are matched against the JSON metadata.
func (c *sqliteCollection) Delete(ctx context.Context, where map[string]string) error {
	clause, args, err := whereClause(where)
	if err != nil {
		return err
	}

	query := "DELETE FROM vector_entries WHERE collection = ?" + clause
	result, err := c.index.db.ExecContext(ctx, query, append([]any{c.name}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "deleted entries", "collection", c.name, "where", where, "count", n)
	}
	return nil
}

// Add embeds documents and inserts them, replacing entries with the same id.
func (c *sqliteCollection) Add(ctx context.Context, ids, documents []string, metadatas []map[string]any) error {
	if err := checkLengths(ids, documents, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	vectors, err := embed(ctx, c.index.embedder, documents, c.index.vectorSize)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		return c.insert(ctx, tx, ids, documents, metadatas, vectors)
	})
}

// ReplaceSource deletes every entry for source and inserts the new ones in one transaction.
func (c *sqliteCollection) ReplaceSource(ctx context.Context, source string, ids, documents []string, metadatas []map[string]any) error {
	if err := checkLengths(ids, documents, metadatas); err != nil {
		return err
	}

	var vectors [][]float32
	if len(ids) > 0 {
		var err error
		vectors, err = embed(ctx, c.index.embedder, documents, c.index.vectorSize)
		if err != nil {
			return fmt.Errorf("failed to embed documents: %w", err)
		}
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vector_entries WHERE collection = ? AND source = ?",
			c.name, source,
		); err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
		return c.insert(ctx, tx, ids, documents, metadatas, vectors)
	})
}

// Query embeds each query text and ranks every entry by squared L2 distance.
// Ties are broken by id so results are stable.
func (c *sqliteCollection) Query(ctx context.Context, queryTexts []string, nResults int) (QueryResult, error) {
	if nResults <= 0 {
		return QueryResult{}, fmt.Errorf("nResults must be greater than 0")
	}
	if len(queryTexts) == 0 {
		return QueryResult{}, nil
	}

	vectors, err := embed(ctx, c.index.embedder, queryTexts, c.index.vectorSize)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to embed query: %w", err)
	}

	entries, err := c.load(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	result := newQueryResult(len(queryTexts))
	for qi, query := range vectors {
		type hit struct {
			entry    *storedEntry
			distance float64
		}
		hits := make([]hit, 0, len(entries))
		for i := range entries {
			d, err := squaredL2(query, entries[i].embedding)
			if err != nil {
				return QueryResult{}, fmt.Errorf("entry %s: %w", entries[i].id, err)
			}
			hits = append(hits, hit{entry: &entries[i], distance: d})
		}
		sort.SliceStable(hits, func(a, b int) bool {
			if hits[a].distance != hits[b].distance {
				return hits[a].distance < hits[b].distance
			}
			return hits[a].entry.id < hits[b].entry.id
		})
		if len(hits) > nResults {
			hits = hits[:nResults]
		}

		for _, h := range hits {
			result.IDs[qi] = append(result.IDs[qi], h.entry.id)
			result.Documents[qi] = append(result.Documents[qi], h.entry.document)
			result.Metadatas[qi] = append(result.Metadatas[qi], h.entry.metadata)
			result.Distances[qi] = append(result.Distances[qi], h.distance)
		}
	}

	return result, nil
}

// Count returns the number of entries in the collection.
func (c *sqliteCollection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.index.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vector_entries WHERE collection = ?", c.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

type storedEntry struct {
	id        string
	document  string
	metadata  map[string]any
	embedding []float32
}

func (c *sqliteCollection) load(ctx context.Context) ([]storedEntry, error) {
	rows, err := c.index.db.QueryContext(ctx,
		"SELECT id, document, metadata, embedding FROM vector_entries WHERE collection = ?", c.name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()

	var entries []storedEntry
	for rows.Next() {
		var e storedEntry
		var metaJSON string
		var blob []byte
		if err := rows.Scan(&e.id, &e.document, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", e.id, err)
		}
		if e.embedding, err = DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", e.id, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *sqliteCollection) insert(ctx context.Context, tx *sql.Tx, ids, documents []string, metadatas []map[string]any, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vector_entries (collection, id, document, source, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET
		 document = excluded.document, source = excluded.source,
		 metadata = excluded.metadata, embedding = excluded.embedding`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		meta := metadatas[i]
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", id, err)
		}
		source, _ := meta[payloadSource].(string)

		if _, err := stmt.ExecContext(ctx, c.name, id, documents[i], source, string(metaJSON), EncodeEmbedding(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert %s: %w", id, err)
		}
	}
	return nil
}

func (c *sqliteCollection) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.index.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func whereClause(where map[string]string) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, ErrEmptyFilter
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		if !metadataKeyPattern.MatchString(k) {
			return "", nil, fmt.Errorf("invalid metadata key %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if k == payloadSource {
			sb.WriteString(" AND source = ?")
		} else {
			sb.WriteString(" AND CAST(json_extract(metadata, '$." + k + "') AS TEXT) = ?")
		}
		args = append(args, where[k])
	}
	return sb.String(), args, nil
}

// EncodeEmbedding encodes vec as little-endian IEEE 754 float32 values.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding decodes a BLOB produced by EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

func squaredL2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Join(ErrDimensionMismatch, fmt.Errorf("%d vs %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum, nil
}
