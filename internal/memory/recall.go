// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// SemanticRecall ranks notes by cosine similarity between the query
// embedding and stored note embeddings (R3.2). Without an embedder it
// degrades to keyword recall; a nil store recalls nothing. Notes saved
// without embeddings, or with a different embedding width, are skipped.
func (s *Store) SemanticRecall(ctx context.Context, query string, limit int) ([]RecallResult, error) {
	if s == nil {
		return nil, nil
	}
	if query == "" {
		return nil, fmt.Errorf("empty recall query")
	}
	if s.embedder == nil {
		return s.Recall(ctx, query, limit)
	}
	if limit <= 0 {
		limit = 10
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, section, stage, content, embedding, created
		 FROM notes
		 WHERE embedding IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying memory: %w", err)
	}
	defer rows.Close()

	var results []RecallResult
	for rows.Next() {
		var (
			r       RecallResult
			embJSON sql.NullString
			created string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Section, &r.Stage, &r.Content, &embJSON, &created); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if !embJSON.Valid {
			continue
		}
		if err := json.Unmarshal([]byte(embJSON.String), &r.Embedding); err != nil {
			continue
		}
		sim, err := cosineSimilarity(qv, r.Embedding)
		if err != nil {
			continue
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
			r.Created = t
		}
		r.Score = sim
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity returns a value in [-1, 1]: 1 for identical direction,
// 0 for orthogonal vectors or when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
