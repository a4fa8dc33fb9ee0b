// Package store persists episodes, their embeddings, and consolidation
// artifacts in SQLite.
//
// All multi-row writes are transactional: an episode row and its
// embedding row commit together or not at all, so the database never
// holds an episode without a vector. Foreign keys are enforced through
// the DSN, giving cascade deletion from episodes to embeddings.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store is the SQLite persistence layer. Safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path, applies pending
// migrations, and returns a ready Store. The initial connection is
// retried with exponential backoff to ride out transient locks from a
// sibling process.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(db.Ping, policy); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EpisodeInsert bundles the rows committed together by InsertEpisode.
type EpisodeInsert struct {
	Episode Episode
	Vector  []float32
	Model   string

	// DomainConfidence is the updated per-domain aggregate persisted in
	// the same transaction.
	DomainConfidence float64
}

// InsertEpisode writes the episode, its embedding, and the refreshed
// domain confidence aggregate in one transaction. Returns the new
// episode id.
func (s *Store) InsertEpisode(ctx context.Context, in EpisodeInsert) (int64, error) {
	now := time.Now()
	tags, err := json.Marshal(emptyAsList(in.Episode.Tags))
	if err != nil {
		return 0, fmt.Errorf("encoding tags: %w", err)
	}
	meta, err := json.Marshal(emptyAsMap(in.Episode.Metadata))
	if err != nil {
		return 0, fmt.Errorf("encoding metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Insert("episodes").
		Columns("ts", "session_id", "domain", "task", "input", "output",
			"critique", "strategy", "reward", "success", "latency_ms",
			"tokens_used", "tags", "metadata", "created_at").
		Values(in.Episode.TS, in.Episode.SessionID, in.Episode.Domain,
			in.Episode.Task, in.Episode.Input, in.Episode.Output,
			in.Episode.Critique, in.Episode.Strategy, in.Episode.Reward,
			boolToInt(in.Episode.Success), in.Episode.LatencyMS,
			in.Episode.TokensUsed, string(tags), string(meta), now.Unix()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building episode insert: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting episode: %w", err)
	}
	episodeID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading episode id: %w", err)
	}

	query, args, err = sq.Insert("episode_embeddings").
		Columns("episode_id", "embedding", "embedding_model", "created_at").
		Values(episodeID, EncodeVector(in.Vector), in.Model, now.Unix()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building embedding insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("inserting embedding: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO domain_confidence (domain, confidence, observations, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		   confidence = excluded.confidence,
		   observations = domain_confidence.observations + 1,
		   updated_at = excluded.updated_at`,
		in.Episode.Domain, in.DomainConfidence, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("upserting domain confidence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing episode: %w", err)
	}
	return episodeID, nil
}

// Candidates returns the newest episodes with decoded embedding vectors,
// optionally restricted to a domain. limit <= 0 means no limit.
func (s *Store) Candidates(ctx context.Context, domain string, limit int) ([]Candidate, error) {
	builder := sq.Select(
		"e.id", "e.ts", "e.session_id", "e.domain", "e.task", "e.input",
		"e.output", "e.critique", "e.strategy", "e.reward", "e.success",
		"e.latency_ms", "e.tokens_used", "e.tags", "e.metadata",
		"e.created_at", "em.embedding", "em.embedding_model").
		From("episodes e").
		Join("episode_embeddings em ON em.episode_id = e.id").
		OrderBy("e.created_at DESC", "e.id DESC")
	if domain != "" {
		builder = builder.Where(sq.Eq{"e.domain": domain})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building candidate query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var blob []byte
		var tagsJSON, metaJSON string
		var success int
		var createdAt int64
		err := rows.Scan(&c.ID, &c.TS, &c.SessionID, &c.Domain, &c.Task,
			&c.Input, &c.Output, &c.Critique, &c.Strategy, &c.Reward,
			&success, &c.LatencyMS, &c.TokensUsed, &tagsJSON, &metaJSON,
			&createdAt, &blob, &c.Model)
		if err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		c.Success = success != 0
		c.CreatedAt = time.Unix(createdAt, 0)
		if err := decodeJSONFields(tagsJSON, metaJSON, &c.Episode); err != nil {
			return nil, err
		}
		c.Vector, err = DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SessionEpisodes returns all episodes for a session in insertion order.
func (s *Store) SessionEpisodes(ctx context.Context, sessionID string) ([]Episode, error) {
	query, args, err := sq.Select(
		"id", "ts", "session_id", "domain", "task", "input", "output",
		"critique", "strategy", "reward", "success", "latency_ms",
		"tokens_used", "tags", "metadata", "created_at").
		From("episodes").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying session episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		var tagsJSON, metaJSON string
		var success int
		var createdAt int64
		err := rows.Scan(&e.ID, &e.TS, &e.SessionID, &e.Domain, &e.Task,
			&e.Input, &e.Output, &e.Critique, &e.Strategy, &e.Reward,
			&success, &e.LatencyMS, &e.TokensUsed, &tagsJSON, &metaJSON,
			&createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning episode: %w", err)
		}
		e.Success = success != 0
		e.CreatedAt = time.Unix(createdAt, 0)
		if err := decodeJSONFields(tagsJSON, metaJSON, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEpisode removes an episode; the embedding row cascades.
func (s *Store) DeleteEpisode(ctx context.Context, id int64) error {
	query, args, err := sq.Delete("episodes").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting episode %d: %w", id, err)
	}
	return nil
}

// DomainConfidence returns the persisted aggregate for a domain, or nil
// when the domain has never been observed.
func (s *Store) DomainConfidence(ctx context.Context, domain string) (*DomainConfidence, error) {
	query, args, err := sq.Select("domain", "confidence", "observations", "updated_at").
		From("domain_confidence").
		Where(sq.Eq{"domain": domain}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building confidence query: %w", err)
	}

	var dc DomainConfidence
	var updatedAt int64
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&dc.Domain, &dc.Confidence, &dc.Observations, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying domain confidence: %w", err)
	}
	dc.UpdatedAt = time.Unix(updatedAt, 0)
	return &dc, nil
}

// InsertConsolidation writes a consolidation run and its memories in one
// transaction. Returns the run id.
func (s *Store) InsertConsolidation(ctx context.Context, run ConsolidationRun, memories []ConsolidatedMemory) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Insert("consolidation_runs").
		Columns("run_type", "episodes_processed", "memories_created",
			"compression_ratio", "started_at", "completed_at").
		Values(run.RunType, run.EpisodesProcessed, run.MemoriesCreated,
			run.CompressionRatio, run.StartedAt.Unix(), run.CompletedAt.Unix()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building run insert: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting consolidation run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	for _, m := range memories {
		sources, err := json.Marshal(m.SourceEpisodeIDs)
		if err != nil {
			return 0, fmt.Errorf("encoding source episodes: %w", err)
		}
		query, args, err := sq.Insert("consolidated_memories").
			Columns("summary", "source_episode_ids", "consolidation_run_id",
				"importance_score", "created_at").
			Values(m.Summary, string(sources), runID, m.ImportanceScore,
				time.Now().Unix()).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("building memory insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("inserting consolidated memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing consolidation: %w", err)
	}
	return runID, nil
}

// Runs returns all consolidation runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]ConsolidationRun, error) {
	query, args, err := sq.Select("id", "run_type", "episodes_processed",
		"memories_created", "compression_ratio", "started_at", "completed_at").
		From("consolidation_runs").
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building runs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []ConsolidationRun
	for rows.Next() {
		var r ConsolidationRun
		var started, completed int64
		err := rows.Scan(&r.ID, &r.RunType, &r.EpisodesProcessed,
			&r.MemoriesCreated, &r.CompressionRatio, &started, &completed)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.CompletedAt = time.Unix(completed, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Memories returns the consolidated memories for a run in creation order.
func (s *Store) Memories(ctx context.Context, runID int64) ([]ConsolidatedMemory, error) {
	query, args, err := sq.Select("id", "summary", "source_episode_ids",
		"consolidation_run_id", "importance_score", "created_at").
		From("consolidated_memories").
		Where(sq.Eq{"consolidation_run_id": runID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building memories query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var out []ConsolidatedMemory
	for rows.Next() {
		var m ConsolidatedMemory
		var sources string
		var createdAt int64
		err := rows.Scan(&m.ID, &m.Summary, &sources, &m.RunID,
			&m.ImportanceScore, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &m.SourceEpisodeIDs); err != nil {
			return nil, fmt.Errorf("decoding source episodes: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// EmbeddingCount returns the number of embedding rows, used by tests to
// verify cascade deletion and by the CLI status output.
func (s *Store) EmbeddingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM episode_embeddings").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}

func decodeJSONFields(tagsJSON, metaJSON string, e *Episode) error {
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return fmt.Errorf("decoding tags: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return fmt.Errorf("decoding metadata: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyAsList(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func emptyAsMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
