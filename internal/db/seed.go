package db

import (
	"context"
	"database/sql"
	"fmt"

	"toltec-dpdb/internal/domain"
)

// Seed writes the product type, data kind, edge type and severity flag
// registries. Existing rows are left untouched, so Seed can run on every start.
func Seed(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, pt := range domain.SeedProductTypes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_prod_type (label, level, description) VALUES (?, ?, ?)
			 ON CONFLICT(label) DO NOTHING`,
			string(pt.Label), pt.Level, pt.Description); err != nil {
			return fmt.Errorf("seed product type %s: %w", pt.Label, err)
		}
	}
	for _, k := range domain.SeedDataKinds() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_kind (label, category, description) VALUES (?, ?, ?)
			 ON CONFLICT(label) DO NOTHING`,
			k.Label, k.Category, k.Description); err != nil {
			return fmt.Errorf("seed data kind %s: %w", k.Label, err)
		}
	}
	for _, et := range domain.SeedEdgeTypes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_prod_assoc_type (label, description) VALUES (?, ?)
			 ON CONFLICT(label) DO NOTHING`,
			string(et.Label), et.Description); err != nil {
			return fmt.Errorf("seed edge type %s: %w", et.Label, err)
		}
	}
	for _, label := range domain.SeverityLabels {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO flag (namespace, label, description) VALUES (?, ?, ?)
			 ON CONFLICT(namespace, label) DO NOTHING`,
			domain.SeverityNamespace, label, "severity "+label); err != nil {
			return fmt.Errorf("seed flag %s: %w", label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}
	return nil
}

// Init migrates and seeds the catalog behind writeDB.
func Init(ctx context.Context, writeDB *sql.DB) error {
	if err := RunMigrations(writeDB); err != nil {
		return err
	}
	return Seed(ctx, writeDB)
}
