package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/apex/log"
)

//go:embed schema.sql
var schema string

// InitSchema creates the report tables when they do not exist yet.
func InitSchema(ctx context.Context, db *sql.DB) error {
	log.Info("verifying report schema")
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	log.Info("report schema verified")
	return nil
}
