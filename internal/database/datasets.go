package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sqlassist/sqlassist/internal/storage"
)

// Dataset is a DuckDB view over parquet objects. A source ending in "/" is
// an object prefix and expands to every .parquet object below it.
type Dataset struct {
	Table   string
	Sources []string
}

// ParseDatasets reads "orders=lake/orders/|extra.parquet,regions=lake/regions.parquet".
func ParseDatasets(raw string) ([]Dataset, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := map[string]struct{}{}
	var datasets []Dataset
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		table, sources, ok := strings.Cut(entry, "=")
		table = strings.TrimSpace(table)
		if !ok || table == "" {
			return nil, fmt.Errorf("invalid dataset entry %q: want table=source[|source]", entry)
		}
		if err := storage.ValidateTableName(table); err != nil {
			return nil, err
		}
		if _, dup := seen[table]; dup {
			return nil, fmt.Errorf("dataset %q declared twice", table)
		}
		seen[table] = struct{}{}

		dataset := Dataset{Table: table}
		for _, source := range strings.Split(sources, "|") {
			if source = strings.TrimSpace(source); source != "" {
				dataset.Sources = append(dataset.Sources, source)
			}
		}
		if len(dataset.Sources) == 0 {
			return nil, fmt.Errorf("dataset %q has no sources", table)
		}
		datasets = append(datasets, dataset)
	}
	return datasets, nil
}

// Attachment owns the local copies backing the attached views.
type Attachment struct {
	dir    string
	Tables map[string][]string
}

func (a *Attachment) Close() error {
	if a == nil || a.dir == "" {
		return nil
	}
	return os.RemoveAll(a.dir)
}

// AttachDatasets copies each dataset's parquet objects from the store to a
// local work directory and registers a view per dataset on db, which must be
// a DuckDB pool. The views stay valid until the Attachment is closed.
func AttachDatasets(ctx context.Context, db *sql.DB, store storage.ObjectStore, datasets []Dataset) (*Attachment, error) {
	if len(datasets) == 0 {
		return &Attachment{Tables: map[string][]string{}}, nil
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	workDir, err := os.MkdirTemp("", "sqlassist-datasets-")
	if err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}
	attachment := &Attachment{dir: workDir, Tables: map[string][]string{}}

	for _, dataset := range datasets {
		keys, err := resolveSources(ctx, store, dataset)
		if err != nil {
			_ = attachment.Close()
			return nil, err
		}

		localPaths := make([]string, 0, len(keys))
		for index, key := range keys {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", dataset.Table, index))
			if err := storage.Download(ctx, store, key, localPath); err != nil {
				_ = attachment.Close()
				return nil, fmt.Errorf("download dataset %q object %q: %w", dataset.Table, key, err)
			}
			localPaths = append(localPaths, localPath)
		}

		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(dataset.Table), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			_ = attachment.Close()
			return nil, fmt.Errorf("create view for dataset %q: %w", dataset.Table, err)
		}
		attachment.Tables[dataset.Table] = keys
	}
	return attachment, nil
}

func resolveSources(ctx context.Context, store storage.ObjectStore, dataset Dataset) ([]string, error) {
	var keys []string
	for _, source := range dataset.Sources {
		if !strings.HasSuffix(source, "/") {
			keys = append(keys, source)
			continue
		}
		objects, err := store.List(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("list dataset %q source %q: %w", dataset.Table, source, err)
		}
		for _, object := range objects {
			if strings.HasSuffix(object.Key, ".parquet") {
				keys = append(keys, object.Key)
			}
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("dataset %q has no parquet objects", dataset.Table)
	}
	sort.Strings(keys)
	return keys, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
