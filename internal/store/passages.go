package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// PassageStore is the durable embedding store backing dense retrieval.
// It is the source of truth for which passages exist.
type PassageStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	cfg    PassageStoreConfig
	ann    *HNSWAccelerator // nil unless cfg.ANN
	closed bool
}

// validateSQLiteIntegrity runs PRAGMA integrity_check on an existing file.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(DriverName, path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// OpenPassageStore opens (creating if needed) the store at cfg.Path.
// An empty path opens an in-memory store.
func OpenPassageStore(ctx context.Context, cfg PassageStoreConfig) (*PassageStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, terrors.ConfigError(fmt.Sprintf("embedding dimensions must be positive, got %d", cfg.Dimensions), nil)
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, terrors.IndexUnavailable(fmt.Sprintf("failed to create directory %s", dir), err)
		}
		// Never auto-clear: the store is the only durable copy of the corpus.
		if err := validateSQLiteIntegrity(cfg.Path); err != nil {
			return nil, terrors.New(terrors.ErrCodeCorruptStore, "passage store failed integrity check", err).
				WithDetail("path", cfg.Path).
				WithSuggestion("restore the store from backup or delete it and re-add your documents")
		}
		dsn = cfg.Path
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, terrors.IndexUnavailable("failed to open passage store", err)
	}

	// Single connection: serializes writers and keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, terrors.IndexUnavailable("failed to set pragma", err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, terrors.IndexUnavailable("failed to migrate passage store", err)
	}

	s := &PassageStore{db: db, cfg: cfg}
	if err := s.checkDimensions(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.checkModel(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.ANN {
		s.ann = NewHNSWAccelerator(HNSWConfig{Dimensions: cfg.Dimensions, M: cfg.M, EfSearch: cfg.EfSearch})
		if err := s.loadANN(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	slog.Debug("passage_store_opened",
		slog.String("path", cfg.Path),
		slog.Int("dimensions", cfg.Dimensions),
		slog.String("model", cfg.Model),
		slog.Bool("ann", cfg.ANN))

	return s, nil
}

// checkDimensions pins the embedding size on first open and refuses a
// store written with a different embedder.
func (s *PassageStore) checkDimensions(ctx context.Context) error {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaKeyDimensions).Scan(&stored)
	if stderrors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`,
			metaKeyDimensions, strconv.Itoa(s.cfg.Dimensions))
		if err != nil {
			return terrors.IndexUnavailable("failed to record embedding dimensions", err)
		}
		return nil
	}
	if err != nil {
		return terrors.IndexUnavailable("failed to read embedding dimensions", err)
	}

	dims, err := strconv.Atoi(stored)
	if err != nil {
		return terrors.New(terrors.ErrCodeCorruptStore, "invalid stored embedding dimensions", err)
	}
	if dims != s.cfg.Dimensions {
		return terrors.ShapeMismatch(dims, s.cfg.Dimensions).
			WithSuggestion("the store was built with a different embedding model; use the same model or start a new data directory")
	}
	return nil
}

// checkModel pins the embedding model on first open. Two models with the
// same dimensions still produce incomparable vectors.
func (s *PassageStore) checkModel(ctx context.Context) error {
	if s.cfg.Model == "" {
		return nil
	}

	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaKeyModel).Scan(&stored)
	if stderrors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, metaKeyModel, s.cfg.Model)
		if err != nil {
			return terrors.IndexUnavailable("failed to record embedding model", err)
		}
		return nil
	}
	if err != nil {
		return terrors.IndexUnavailable("failed to read embedding model", err)
	}

	if stored != s.cfg.Model {
		return terrors.New(terrors.ErrCodeShapeMismatch,
			fmt.Sprintf("store was built with embedding model %q, got %q", stored, s.cfg.Model), nil).
			WithDetail("stored_model", stored).
			WithDetail("model", s.cfg.Model).
			WithSuggestion("start the embedder the store was built with, or point store.path at a new file and re-add your documents")
	}
	return nil
}

// Model returns the pinned embedding model, "" when unchecked.
func (s *PassageStore) Model() string {
	return s.cfg.Model
}

func (s *PassageStore) loadANN(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM passages ORDER BY id`)
	if err != nil {
		return terrors.IndexUnavailable("failed to load embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return terrors.IndexUnavailable("failed to scan embedding", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return terrors.New(terrors.ErrCodeCorruptStore, "failed to decode embedding", err)
		}
		if err := s.ann.Add(id, vec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Dimensions returns the configured embedding size.
func (s *PassageStore) Dimensions() int {
	return s.cfg.Dimensions
}

// Path returns the backing file path ("" for in-memory).
func (s *PassageStore) Path() string {
	return s.cfg.Path
}

// Upsert durably persists a single record.
func (s *PassageStore) Upsert(ctx context.Context, rec Record) (int64, error) {
	ids, err := s.Insert(ctx, []Record{rec})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// Insert persists records in one transaction: either every record is
// stored or none is. Returned ids match the input order.
func (s *PassageStore) Insert(ctx context.Context, recs []Record) ([]int64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	for _, r := range recs {
		if len(r.Embedding) != s.cfg.Dimensions {
			return nil, terrors.ShapeMismatch(s.cfg.Dimensions, len(r.Embedding)).
				WithDetail("source_id", r.SourceID)
		}
		if r.SourceID == "" {
			return nil, terrors.ValidationError("record has no source id", nil)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, terrors.IndexUnavailable("passage store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, terrors.IndexUnavailable("failed to begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO passages(source_id, filename, position, text, length, embedding, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, terrors.IndexUnavailable("failed to prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	ids := make([]int64, len(recs))
	for i, r := range recs {
		res, err := stmt.ExecContext(ctx, r.SourceID, r.Filename, r.Position, r.Text, r.Length, encodeVector(r.Embedding), now)
		if err != nil {
			return nil, terrors.IndexUnavailable("failed to insert passage", err).
				WithDetail("source_id", r.SourceID)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, terrors.IndexUnavailable("failed to read passage id", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, terrors.IndexUnavailable("failed to commit passages", err)
	}

	if s.ann != nil {
		for i, r := range recs {
			if err := s.ann.Add(ids[i], r.Embedding); err != nil {
				slog.Warn("ann_add_failed", slog.Int64("id", ids[i]), slog.String("error", err.Error()))
			}
		}
	}
	return ids, nil
}

// DeleteSource removes every record of sourceID and reports how many went.
// Deleting an unknown source is not an error.
func (s *PassageStore) DeleteSource(ctx context.Context, sourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, terrors.IndexUnavailable("passage store is closed", nil)
	}

	var ids []int64
	if s.ann != nil {
		var err error
		if ids, err = s.idsForSource(ctx, sourceID); err != nil {
			return 0, err
		}
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM passages WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, terrors.IndexUnavailable("failed to delete source", err).WithDetail("source_id", sourceID)
	}
	n, _ := res.RowsAffected()

	if s.ann != nil {
		s.ann.Delete(ids...)
	}
	return n, nil
}

// must hold s.mu
func (s *PassageStore) idsForSource(ctx context.Context, sourceID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM passages WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, terrors.IndexUnavailable("failed to list source passages", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, terrors.IndexUnavailable("failed to scan passage id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NearestK returns the k records nearest to query by Euclidean distance,
// nearest first, ties broken by insertion order. A positive maxDistance
// drops records farther than it.
func (s *PassageStore) NearestK(ctx context.Context, query []float32, k int, maxDistance float32) ([]DenseHit, error) {
	if len(query) != s.cfg.Dimensions {
		return nil, terrors.ShapeMismatch(s.cfg.Dimensions, len(query))
	}
	if k <= 0 {
		return []DenseHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, terrors.IndexUnavailable("passage store is closed", nil)
	}

	var (
		hits []DenseHit
		err  error
	)
	if s.ann != nil && s.ann.Len() > 0 {
		hits, err = s.nearestANN(ctx, query, k)
	} else {
		hits, err = s.nearestExact(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].RecordID < hits[b].RecordID
	})

	out := make([]DenseHit, 0, k)
	for _, h := range hits {
		if len(out) == k {
			break
		}
		if maxDistance > 0 && h.Distance > maxDistance {
			break
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *PassageStore) nearestExact(ctx context.Context, query []float32) ([]DenseHit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_id, filename, text, embedding FROM passages ORDER BY id`)
	if err != nil {
		return nil, terrors.IndexUnavailable("failed to scan passages", err)
	}
	defer rows.Close()

	var hits []DenseHit
	for rows.Next() {
		var (
			h    DenseHit
			blob []byte
		)
		if err := rows.Scan(&h.RecordID, &h.SourceID, &h.Filename, &h.Text, &blob); err != nil {
			return nil, terrors.IndexUnavailable("failed to scan passage", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, terrors.New(terrors.ErrCodeCorruptStore, "failed to decode embedding", err)
		}
		if len(vec) != len(query) {
			return nil, terrors.ShapeMismatch(len(query), len(vec)).WithDetail("record_id", strconv.FormatInt(h.RecordID, 10))
		}
		h.Distance = euclidean(query, vec)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.IndexUnavailable("failed to scan passages", err)
	}
	return hits, nil
}

// nearestANN asks the graph for candidates and re-scores them exactly.
func (s *PassageStore) nearestANN(ctx context.Context, query []float32, k int) ([]DenseHit, error) {
	ids := s.ann.Search(query, k)
	hits := make([]DenseHit, 0, len(ids))
	for _, id := range ids {
		var (
			h    DenseHit
			blob []byte
		)
		err := s.db.QueryRowContext(ctx,
			`SELECT id, source_id, filename, text, embedding FROM passages WHERE id = ?`, id).
			Scan(&h.RecordID, &h.SourceID, &h.Filename, &h.Text, &blob)
		if stderrors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, terrors.IndexUnavailable("failed to load passage", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, terrors.New(terrors.ErrCodeCorruptStore, "failed to decode embedding", err)
		}
		h.Distance = euclidean(query, vec)
		hits = append(hits, h)
	}
	return hits, nil
}

// AggregateLengths returns source_id -> sum of passage lengths.
func (s *PassageStore) AggregateLengths(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, terrors.IndexUnavailable("passage store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source_id, SUM(length) FROM passages GROUP BY source_id`)
	if err != nil {
		return nil, terrors.IndexUnavailable("failed to aggregate lengths", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			total int
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, terrors.IndexUnavailable("failed to scan aggregate", err)
		}
		out[id] = total
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.IndexUnavailable("failed to aggregate lengths", err)
	}
	return out, nil
}

// Sources walks every record grouped by source, both in insertion order.
func (s *PassageStore) Sources(ctx context.Context) ([]StoredSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, terrors.IndexUnavailable("passage store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source_id, filename, text FROM passages ORDER BY id`)
	if err != nil {
		return nil, terrors.IndexUnavailable("failed to read passages", err)
	}
	defer rows.Close()

	var out []StoredSource
	index := make(map[string]int)
	for rows.Next() {
		var id, filename, text string
		if err := rows.Scan(&id, &filename, &text); err != nil {
			return nil, terrors.IndexUnavailable("failed to scan passage", err)
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, StoredSource{SourceID: id, Filename: filename})
		}
		out[i].Passages = append(out[i].Passages, text)
	}
	if err := rows.Err(); err != nil {
		return nil, terrors.IndexUnavailable("failed to read passages", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *PassageStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, terrors.IndexUnavailable("passage store is closed", nil)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, terrors.IndexUnavailable("failed to count passages", err)
	}
	return n, nil
}

// Ping checks the store is reachable.
func (s *PassageStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return terrors.IndexUnavailable("passage store is closed", nil)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return terrors.IndexUnavailable("passage store unreachable", err)
	}
	return nil
}

// Close checkpoints and closes the database.
func (s *PassageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.cfg.Path != "" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Warn("wal_checkpoint_failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}
