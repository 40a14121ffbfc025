// Package refs serves reference documents (glossaries, metric definitions,
// table notes) to the pipeline's reference retriever.
//
// The store is a SQLite file with a ref_docs table whose embedding column
// holds float32 vectors serialized for sqlite-vec. It is opened read-only;
// building the store is out of scope here.
package refs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/DachengChen/paiask/agent"
)

func init() {
	// Register sqlite-vec as an auto-loadable extension for every
	// go-sqlite3 connection.
	vec.Auto()
}

// Embedder turns text into a vector comparable with the stored embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store searches ref_docs by cosine distance to the embedded question.
type Store struct {
	db       *sql.DB
	embedder Embedder
	log      *slog.Logger
}

var _ agent.ReferenceSearcher = (*Store)(nil)

// Open opens the store at path read-only and checks that ref_docs exists.
func Open(ctx context.Context, path string, embedder Embedder, log *slog.Logger) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("refs: embedder is required")
	}
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", readOnlyDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open reference store: %w", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ref_docs").Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("reference store %s: %w", path, err)
	}
	log.Debug("reference store opened", "path", path, "documents", n)
	return &Store{db: db, embedder: embedder, log: log}, nil
}

func readOnlyDSN(path string) string {
	q := url.Values{}
	q.Set("mode", "ro")
	return "file:" + path + "?" + q.Encode()
}

// Search returns the k documents closest to query. Score is cosine
// similarity, highest first.
func (s *Store) Search(ctx context.Context, query string, k int) ([]agent.Reference, error) {
	if k <= 0 {
		k = agent.DefaultReferenceK
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	blob, err := vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serialize embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT title, type, text,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM ref_docs
		ORDER BY distance ASC
		LIMIT ?`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("reference search: %w", err)
	}
	defer rows.Close()

	var results []agent.Reference
	for rows.Next() {
		var ref agent.Reference
		var distance float64
		if err := rows.Scan(&ref.Title, &ref.Type, &ref.Text, &distance); err != nil {
			s.log.Warn("skipping unreadable reference row", "error", err)
			continue
		}
		ref.Score = 1 - distance
		results = append(results, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reference search: %w", err)
	}
	return results, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
