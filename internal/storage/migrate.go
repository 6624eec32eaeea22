package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ApplyMigrations runs every .sql file in dir in name order. The scripts are
// expected to be idempotent (CREATE ... IF NOT EXISTS).
func (p *PostgresStore) ApplyMigrations(ctx context.Context, dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	applied := make([]string, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return applied, err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("migration %s: %w", filepath.Base(f), err)
		}
		applied = append(applied, filepath.Base(f))
	}
	return applied, nil
}
