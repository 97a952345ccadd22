package tenant

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
)

//go:embed schema/*.sql
var schemaFS embed.FS

type column struct {
	name string
	decl string
}

// tableSchema describes one table's current shape. Columns listed here are
// added to older partitions that predate them; existing rows are kept.
type tableSchema struct {
	name    string
	file    string
	columns []column
	indexes []string
}

var tables = []tableSchema{
	{
		name: "customers",
		file: "schema/customers.sql",
		columns: []column{
			{"name", "TEXT NOT NULL DEFAULT ''"},
			{"address", "TEXT NOT NULL DEFAULT ''"},
			{"latitude", "REAL"},
			{"longitude", "REAL"},
			{"total_spent", "TEXT NOT NULL DEFAULT '0'"},
			{"order_count", "INTEGER NOT NULL DEFAULT 0"},
			{"created_at", "TEXT NOT NULL DEFAULT ''"},
			{"updated_at", "TEXT NOT NULL DEFAULT ''"},
		},
	},
	{
		name: "orders",
		file: "schema/orders.sql",
		columns: []column{
			{"customer_name", "TEXT NOT NULL DEFAULT ''"},
			{"items", "TEXT NOT NULL DEFAULT '[]'"},
			{"items_total", "TEXT NOT NULL DEFAULT '0'"},
			{"delivery", "INTEGER NOT NULL DEFAULT 0"},
			{"delivery_fee", "TEXT NOT NULL DEFAULT '0'"},
			{"total", "TEXT NOT NULL DEFAULT '0'"},
			{"address", "TEXT NOT NULL DEFAULT ''"},
			{"latitude", "REAL"},
			{"longitude", "REAL"},
			{"payment_method", "TEXT NOT NULL DEFAULT ''"},
			{"change_for", "TEXT NOT NULL DEFAULT '0'"},
			{"note", "TEXT NOT NULL DEFAULT ''"},
			{"status", "TEXT NOT NULL DEFAULT 'finalized'"},
			{"updated_at", "TEXT NOT NULL DEFAULT ''"},
		},
		indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)",
			"CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_key)",
		},
	},
	{
		name: "catalog_items",
		file: "schema/catalog_items.sql",
		columns: []column{
			{"price", "TEXT NOT NULL DEFAULT '0'"},
			{"category", "TEXT NOT NULL DEFAULT ''"},
			{"kind", "TEXT NOT NULL DEFAULT 'food'"},
			{"available", "INTEGER NOT NULL DEFAULT 1"},
			{"position", "INTEGER NOT NULL DEFAULT 0"},
		},
	},
	{
		name: "catalog_mappings",
		file: "schema/catalog_mappings.sql",
	},
	{
		name: "settings",
		file: "schema/settings.sql",
	},
}

// migrate brings every table up to date. A table that fails is logged and
// skipped so the rest of the partition stays usable. Returns the names of
// the tables that failed.
func migrate(ctx context.Context, db *sql.DB, tenantID string) []string {
	var degraded []string
	for _, t := range tables {
		if err := migrateTable(ctx, db, t); err != nil {
			slog.Warn("table migration failed",
				"tenant", tenantID,
				"table", t.name,
				"error", err,
			)
			degraded = append(degraded, t.name)
		}
	}
	return degraded
}

// migrateTable creates the table if absent, adds missing columns, then
// creates indexes. Column failures do not stop the remaining columns.
func migrateTable(ctx context.Context, db *sql.DB, t tableSchema) error {
	ddl, err := schemaFS.ReadFile(t.file)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	existing, err := tableColumns(ctx, db, t.name)
	if err != nil {
		return err
	}

	var firstErr error
	for _, c := range t.columns {
		if existing[c.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", t.name, c.name, c.decl)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("add column %s: %w", c.name, err)
			}
			continue
		}
		slog.Info("added column", "table", t.name, "column", c.name)
	}

	for _, idx := range t.indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("create index: %w", err)
		}
	}

	return firstErr
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	return cols, nil
}
