package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	UnitCode string
	UnitName string
}

// SeedDev makes sure the configured unit exists so a fresh dev database
// can take queries straight away. It never touches people or templates.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	code := strings.TrimSpace(opt.UnitCode)
	if code == "" {
		return nil
	}
	name := strings.TrimSpace(opt.UnitName)
	if name == "" {
		name = "Default Unit"
	}
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT INTO units(unit_code, name, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(unit_code) DO NOTHING;
`, code, name, now, now); err != nil {
		return fmt.Errorf("seed unit %s: %w", code, err)
	}
	return nil
}
