// Package memscans — хранилище записей в памяти процесса. Проверка ключа и
// вставка выполняются под одной блокировкой записи, поэтому InsertUnique
// атомарен так же, как уникальный индекс в Postgres.
package memscans

import (
	"context"
	"sync"

	"github.com/BearBump/ScanBox/internal/models"
	"github.com/BearBump/ScanBox/internal/storage"
)

type Storage struct {
	mu    sync.RWMutex
	byID  map[string]*models.ScanRecord
	byKey map[models.ScanKey]string
}

func New() *Storage {
	return &Storage{
		byID:  make(map[string]*models.ScanRecord),
		byKey: make(map[models.ScanKey]string),
	}
}

func (s *Storage) InsertUnique(ctx context.Context, rec *models.ScanRecord) (*models.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.byKey[key]; ok {
		return nil, storage.ErrDuplicateKey
	}
	stored := *rec
	s.byID[stored.ID] = &stored
	s.byKey[key] = stored.ID

	out := stored
	return &out, nil
}

func (s *Storage) GetByID(ctx context.Context, id string) (*models.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *Storage) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byKey, rec.Key())
	delete(s.byID, id)
	return nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Storage) Close() {}
