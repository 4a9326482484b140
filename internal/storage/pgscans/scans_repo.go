package pgscans

import (
	"context"

	"github.com/BearBump/ScanBox/internal/models"
	"github.com/BearBump/ScanBox/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const pgErrUniqueViolation = "23505"

// InsertUnique вставляет запись одной командой. При конфликте по
// (tracking_number, serial_number) строка не возвращается, это и есть дубль.
// Отдельной проверки существования перед вставкой нет.
func (s *Storage) InsertUnique(ctx context.Context, rec *models.ScanRecord) (*models.ScanRecord, error) {
	var out models.ScanRecord
	err := s.db.QueryRow(ctx, `
INSERT INTO scans (id, tracking_number, carrier, serial_number, scanned_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (tracking_number, serial_number) DO NOTHING
RETURNING id, tracking_number, carrier, serial_number, scanned_at
`, rec.ID, rec.TrackingNumber, string(rec.Carrier), rec.SerialNumber, rec.ScannedAt.UTC()).
		Scan(&out.ID, &out.TrackingNumber, &out.Carrier, &out.SerialNumber, &out.ScannedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, errors.Wrap(err, "insert scan")
	}
	out.ScannedAt = out.ScannedAt.UTC()
	return &out, nil
}

func (s *Storage) GetByID(ctx context.Context, id string) (*models.ScanRecord, error) {
	var out models.ScanRecord
	err := s.db.QueryRow(ctx, `
SELECT id, tracking_number, carrier, serial_number, scanned_at
FROM scans
WHERE id = $1
`, id).Scan(&out.ID, &out.TrackingNumber, &out.Carrier, &out.SerialNumber, &out.ScannedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "select scan")
	}
	out.ScannedAt = out.ScannedAt.UTC()
	return &out, nil
}

func (s *Storage) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete scan")
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// isUniqueViolation ловит 23505. Коллизия id дала бы тот же код, но uuid её исключает.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
