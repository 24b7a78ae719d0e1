// Package archive writes answered interactions to the object store as an
// audit trail.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlassist/sqlassist/internal/chart"
	"github.com/sqlassist/sqlassist/internal/query"
	"github.com/sqlassist/sqlassist/internal/storage"
)

type Record struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Question  string           `json:"question"`
	Language  string           `json:"language,omitempty"`
	Source    string           `json:"source"`
	SQL       string           `json:"sql"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Columns   []query.Column   `json:"columns"`
	RowCount  int              `json:"row_count"`
	Charts    []chart.Spec     `json:"charts"`
	TimingsMS map[string]int64 `json:"timings_ms"`
}

type Archiver struct {
	store  storage.ObjectStore
	prefix string
}

func New(store storage.ObjectStore, prefix string) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if prefix == "" {
		prefix = "interactions"
	}
	return &Archiver{store: store, prefix: prefix}, nil
}

// Archive stores interaction.json and result.parquet under the record's
// dated directory. It returns the keys written.
func (a *Archiver) Archive(ctx context.Context, record Record, result query.Result) ([]string, error) {
	record.RowCount = len(result.Rows)
	record.Columns = result.Columns

	jsonKey, err := storage.BuildInteractionPath(a.prefix, record.CreatedAt, record.ID, storage.InteractionFile)
	if err != nil {
		return nil, err
	}
	parquetKey, err := storage.BuildInteractionPath(a.prefix, record.CreatedAt, record.ID, storage.ResultFile)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{"interaction-id": record.ID, "source": record.Source}
	if record.Language != "" {
		metadata["language"] = record.Language
	}

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal interaction: %w", err)
	}
	if _, err := storage.PutBytes(ctx, a.store, jsonKey, body, storage.PutOptions{ContentType: "application/json", Metadata: metadata}); err != nil {
		return nil, fmt.Errorf("put interaction: %w", err)
	}

	encoded, err := EncodeResult(record.SQL, result)
	if err != nil {
		return []string{jsonKey}, err
	}
	if _, err := storage.PutBytes(ctx, a.store, parquetKey, encoded, storage.PutOptions{ContentType: "application/vnd.apache.parquet", Metadata: metadata}); err != nil {
		return []string{jsonKey}, fmt.Errorf("put result: %w", err)
	}
	return []string{jsonKey, parquetKey}, nil
}
