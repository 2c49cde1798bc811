// Package store persists preprocessed features in a libSQL database so they
// can be batched later without re-tokenizing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/bertprep/bertprep/preprocess"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

var ErrSplitNotFound = errors.New("no features stored for split")

// FeatureStore holds NER feature rows keyed by split name.
type FeatureStore struct {
	db *sql.DB
}

// Open connects to dsn ("file:" paths or a remote libSQL URL) and creates the
// schema when missing.
func Open(dsn string) (*FeatureStore, error) {
	if path, ok := strings.CutPrefix(dsn, "file:"); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("could not create store directory: %w", err)
		}
	}
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connector: %w", err)
	}
	s := &FeatureStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Feature store opened", "dsn", dsn)
	return s, nil
}

func (s *FeatureStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ner_features (
		id TEXT PRIMARY KEY UNIQUE,
		split TEXT NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		input_ids TEXT NOT NULL,
		input_mask TEXT NOT NULL,
		trailing_mask TEXT NOT NULL,
		tags TEXT,
		label_ids TEXT,
		has_labels INTEGER NOT NULL,
		time_stamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create ner_features table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_ner_features_split ON ner_features (split, position)`)
	if err != nil {
		return fmt.Errorf("failed to create split index: %w", err)
	}
	return nil
}

// SaveNER replaces the rows of split with feats and returns the row ids in
// input order.
func (s *FeatureStore) SaveNER(ctx context.Context, split string, texts []string, feats *preprocess.NERFeatures) ([]uuid.UUID, error) {
	if len(texts) != len(feats.InputIDs) {
		return nil, fmt.Errorf("expected %d texts, got %d", len(feats.InputIDs), len(texts))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ner_features WHERE split = ?", split); err != nil {
		return nil, fmt.Errorf("failed to clear split %s: %w", split, err)
	}

	ids := make([]uuid.UUID, len(texts))
	for i := range texts {
		var tags, labels any
		if feats.HasLabels {
			if tags, err = encode(feats.Tags[i]); err != nil {
				return nil, err
			}
			if feats.LabelIDs != nil {
				if labels, err = encode(feats.LabelIDs[i]); err != nil {
					return nil, err
				}
			}
		}
		inputIDs, err := encode(feats.InputIDs[i])
		if err != nil {
			return nil, err
		}
		mask, err := encode(feats.InputMask[i])
		if err != nil {
			return nil, err
		}
		trailing, err := encode(feats.TrailingTokenMask[i])
		if err != nil {
			return nil, err
		}

		ids[i] = uuid.New()
		_, err = tx.ExecContext(ctx, `INSERT INTO ner_features
			(id, split, position, text, input_ids, input_mask, trailing_mask, tags, label_ids, has_labels)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ids[i].String(), split, i, texts[i], inputIDs, mask, trailing, tags, labels, boolToInt(feats.HasLabels))
		if err != nil {
			return nil, fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	slog.Info("Stored NER features", "split", split, "rows", len(ids))
	return ids, nil
}

// LoadNER returns the rows of split in the order they were saved.
func (s *FeatureStore) LoadNER(ctx context.Context, split string) (*preprocess.NERFeatures, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT input_ids, input_mask, trailing_mask, tags, label_ids, has_labels
		FROM ner_features WHERE split = ? ORDER BY position`, split)
	if err != nil {
		return nil, fmt.Errorf("failed to query split %s: %w", split, err)
	}
	defer rows.Close()

	feats := &preprocess.NERFeatures{}
	n := 0
	for rows.Next() {
		var (
			inputIDs, mask, trailing string
			tags, labels             sql.NullString
			hasLabels                int64
		)
		if err := rows.Scan(&inputIDs, &mask, &trailing, &tags, &labels, &hasLabels); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var (
			idsRow      []int
			maskRow     []float32
			trailingRow []bool
		)
		if err := decode(inputIDs, &idsRow); err != nil {
			return nil, err
		}
		if err := decode(mask, &maskRow); err != nil {
			return nil, err
		}
		if err := decode(trailing, &trailingRow); err != nil {
			return nil, err
		}
		feats.InputIDs = append(feats.InputIDs, idsRow)
		feats.InputMask = append(feats.InputMask, maskRow)
		feats.TrailingTokenMask = append(feats.TrailingTokenMask, trailingRow)
		feats.HasLabels = hasLabels != 0

		if feats.HasLabels {
			var tagRow []string
			if err := decode(tags.String, &tagRow); err != nil {
				return nil, err
			}
			feats.Tags = append(feats.Tags, tagRow)
			if labels.Valid {
				var labelRow []int
				if err := decode(labels.String, &labelRow); err != nil {
					return nil, err
				}
				feats.LabelIDs = append(feats.LabelIDs, labelRow)
			}
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSplitNotFound, split)
	}
	return feats, nil
}

// Splits lists the stored split names with their row counts.
func (s *FeatureStore) Splits(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT split, COUNT(*) FROM ner_features GROUP BY split")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out[name] = count
	}
	return out, rows.Err()
}

func (s *FeatureStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode feature column: %w", err)
	}
	return string(b), nil
}

func decode(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode feature column: %w", err)
	}
	return nil
}
