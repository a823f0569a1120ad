// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/doc-engine/pkg/types"
)

// exportDoc is the serialized shape for memory exports. Embedding vectors
// are omitted: they are bulky and meaningless outside the store.
type exportDoc struct {
	Runs  []types.RunReport `json:"runs" yaml:"runs"`
	Notes []Note            `json:"notes" yaml:"notes"`
}

// Export writes all runs and notes to w as "json" or "yaml" (R5.3).
func (s *Store) Export(ctx context.Context, w io.Writer, format string) error {
	doc, err := s.exportAll(ctx)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case "yaml":
		data, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown export format %q (want json or yaml)", format)
	}
}

func (s *Store) exportAll(ctx context.Context) (exportDoc, error) {
	var doc exportDoc

	runRows, err := s.db.QueryContext(ctx,
		`SELECT id, state, started, finished, sections, enriched, failed, repaired, input_chars, output_chars, advisory
		 FROM runs ORDER BY started`,
	)
	if err != nil {
		return doc, fmt.Errorf("querying runs: %w", err)
	}
	defer runRows.Close()

	for runRows.Next() {
		var (
			r            types.RunReport
			state        string
			started      string
			finished     sql.NullString
			repairedJSON sql.NullString
			advisory     sql.NullString
		)
		if err := runRows.Scan(
			&r.RunID, &state, &started, &finished, &r.Sections, &r.Enriched,
			&r.Failed, &repairedJSON, &r.InputChars, &r.OutputChars, &advisory,
		); err != nil {
			return doc, fmt.Errorf("scanning run: %w", err)
		}
		r.State = types.RunState(state)
		if t, parseErr := time.Parse(time.RFC3339Nano, started); parseErr == nil {
			r.Started = t
		}
		if finished.Valid && finished.String != "" {
			if t, parseErr := time.Parse(time.RFC3339Nano, finished.String); parseErr == nil {
				r.Finished = t
			}
		}
		if repairedJSON.Valid {
			json.Unmarshal([]byte(repairedJSON.String), &r.Repaired)
		}
		if advisory.Valid {
			r.Advisory = advisory.String
		}
		doc.Runs = append(doc.Runs, r)
	}
	if err := runRows.Err(); err != nil {
		return doc, err
	}

	noteRows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, section, stage, content, created FROM notes ORDER BY created`,
	)
	if err != nil {
		return doc, fmt.Errorf("querying notes: %w", err)
	}
	defer noteRows.Close()

	for noteRows.Next() {
		var (
			n       Note
			created string
		)
		if err := noteRows.Scan(&n.ID, &n.RunID, &n.Section, &n.Stage, &n.Content, &created); err != nil {
			return doc, fmt.Errorf("scanning note: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
			n.Created = t
		}
		doc.Notes = append(doc.Notes, n)
	}
	return doc, noteRows.Err()
}
