package pgscans

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/ScanBox/internal/models"
	"github.com/pkg/errors"
)

// carrierCheck перечисляет всех известных перевозчиков, а не только тех,
// у кого есть правило: таблица классификатора меняется конфигом без миграций.
func carrierCheck() string {
	quoted := make([]string, 0, len(models.KnownCarriers()))
	for _, c := range models.KnownCarriers() {
		quoted = append(quoted, "'"+string(c)+"'")
	}
	return fmt.Sprintf("CHECK (carrier IN (%s))", strings.Join(quoted, ", "))
}

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS scans (
  id TEXT PRIMARY KEY,
  tracking_number TEXT NOT NULL CHECK (tracking_number ~ '^[0-9]+$'),
  carrier TEXT NOT NULL,
  serial_number TEXT NOT NULL CHECK (serial_number <> ''),
  scanned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_scans_tracking_serial UNIQUE (tracking_number, serial_number)
)`,
		`ALTER TABLE scans DROP CONSTRAINT IF EXISTS chk_scans_carrier`,
		`ALTER TABLE scans ADD CONSTRAINT chk_scans_carrier ` + carrierCheck(),
		`CREATE INDEX IF NOT EXISTS idx_scans_scanned_at ON scans(scanned_at DESC)`,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "init schema: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range stmts {
		if _, err := tx.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return errors.Wrap(tx.Commit(ctx), "init schema: commit")
}
