package database

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlassist/sqlassist/internal/config"
	"github.com/sqlassist/sqlassist/internal/query"
	"github.com/sqlassist/sqlassist/internal/storage"
)

type orderRow struct {
	Region  string  `parquet:"region"`
	Revenue float64 `parquet:"revenue"`
}

func TestParseDatasets(t *testing.T) {
	datasets, err := ParseDatasets(" orders=lake/orders/|lake/extra.parquet , regions=lake/regions.parquet ")
	if err != nil {
		t.Fatalf("ParseDatasets() error = %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("datasets = %#v", datasets)
	}
	if datasets[0].Table != "orders" || len(datasets[0].Sources) != 2 || datasets[0].Sources[0] != "lake/orders/" {
		t.Fatalf("orders = %#v", datasets[0])
	}
	if datasets[1].Table != "regions" || datasets[1].Sources[0] != "lake/regions.parquet" {
		t.Fatalf("regions = %#v", datasets[1])
	}

	if datasets, err := ParseDatasets(""); err != nil || datasets != nil {
		t.Fatalf("ParseDatasets(empty) = %#v, %v", datasets, err)
	}
}

func TestParseDatasetsRejectsInvalidEntries(t *testing.T) {
	for _, raw := range []string{"orders", "=x.parquet", "orders=", "bad name=x.parquet", "a=x.parquet,a=y.parquet"} {
		if _, err := ParseDatasets(raw); err == nil {
			t.Fatalf("ParseDatasets(%q) expected error", raw)
		}
	}
}

func TestDriverName(t *testing.T) {
	cases := map[string]string{
		config.DriverPostgres: "pgx",
		config.DriverDuckDB:   "duckdb",
		config.DriverSQLite:   "sqlite3",
	}
	for driver, want := range cases {
		got, err := DriverName(driver)
		if err != nil || got != want {
			t.Fatalf("DriverName(%q) = %q, %v", driver, got, err)
		}
	}
	if _, err := DriverName("oracle"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenSQLiteInMemory(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRow("SELECT 1").Scan(&one); err != nil || one != 1 {
		t.Fatalf("SELECT 1 = %d, %v", one, err)
	}
}

func TestAttachDatasetsCreatesQueryableViews(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	putParquet(t, store, "lake/orders/part-0.parquet", []orderRow{{Region: "north", Revenue: 10}, {Region: "south", Revenue: 5}})
	putParquet(t, store, "lake/orders/part-1.parquet", []orderRow{{Region: "north", Revenue: 2.5}})
	if _, err := store.Put(ctx, "lake/orders/_SUCCESS", strings.NewReader(""), 0, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	db, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverDuckDB})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	attachment, err := AttachDatasets(ctx, db, store, []Dataset{{Table: "orders", Sources: []string{"lake/orders/"}}})
	if err != nil {
		t.Fatalf("AttachDatasets() error = %v", err)
	}
	defer func() { _ = attachment.Close() }()

	if keys := attachment.Tables["orders"]; len(keys) != 2 {
		t.Fatalf("attached keys = %#v", keys)
	}

	result, err := query.NewExecutor(db).Execute(ctx, "SELECT region, SUM(revenue) AS revenue FROM orders GROUP BY region ORDER BY region")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %#v", result.Rows)
	}
	if result.Rows[0][0] != "north" || result.Rows[0][1] != 12.5 {
		t.Fatalf("north row = %#v", result.Rows[0])
	}
	if result.Columns[0].Kind != query.KindCategorical || result.Columns[1].Kind != query.KindNumeric {
		t.Fatalf("columns = %+v", result.Columns)
	}
}

func TestAttachDatasetsFailsWithoutObjects(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverDuckDB})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = AttachDatasets(ctx, db, storage.NewMemoryStore(), []Dataset{{Table: "orders", Sources: []string{"lake/missing/"}}})
	if err == nil || !strings.Contains(err.Error(), "no parquet objects") {
		t.Fatalf("AttachDatasets() error = %v", err)
	}
}

func putParquet(t *testing.T, store storage.ObjectStore, key string, rows []orderRow) {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[orderRow](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	if _, err := store.Put(context.Background(), key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}
