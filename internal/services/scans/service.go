package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ScanBox/internal/broker/messages"
	"github.com/BearBump/ScanBox/internal/cache"
	"github.com/BearBump/ScanBox/internal/carrier"
	"github.com/BearBump/ScanBox/internal/models"
	"github.com/BearBump/ScanBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Repository хранит записи. InsertUnique обязан атомарно
// отказывать с storage.ErrDuplicateKey, если пара уже есть.
type Repository interface {
	InsertUnique(ctx context.Context, rec *models.ScanRecord) (*models.ScanRecord, error)
	GetByID(ctx context.Context, id string) (*models.ScanRecord, error)
	DeleteByID(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const publishTimeout = 5 * time.Second

type Service struct {
	repo       Repository
	classifier *carrier.Classifier
	cache      cache.BytesCache
	cacheTTL   time.Duration

	publisher Publisher
	topic     string

	now   func() time.Time
	newID func() string
}

func New(repo Repository, classifier *carrier.Classifier, c cache.BytesCache, cacheTTL time.Duration) *Service {
	if classifier == nil {
		classifier = carrier.Default()
	}
	return &Service{
		repo:       repo,
		classifier: classifier,
		cache:      c,
		cacheTTL:   cacheTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithPublisher включает публикацию событий в топик. Без него события не шлются.
func (s *Service) WithPublisher(p Publisher, topic string) *Service {
	s.publisher = p
	s.topic = topic
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Classifier() *carrier.Classifier {
	return s.classifier
}

// Submit принимает сырой скан. Существование пары заранее не проверяется:
// решает только атомарная вставка в хранилище.
func (s *Service) Submit(ctx context.Context, in models.ScanSubmitInput) (*models.ScanRecord, error) {
	tracking := strings.TrimSpace(in.TrackingNumber)
	serial := strings.TrimSpace(in.SerialNumber)
	if tracking == "" {
		return nil, &MissingFieldError{Field: "trackingNumber"}
	}
	if serial == "" {
		return nil, &MissingFieldError{Field: "serialNumber"}
	}

	cl, err := s.classifier.Classify(tracking)
	if err != nil {
		return nil, err
	}

	rec := &models.ScanRecord{
		ID:             s.newID(),
		TrackingNumber: cl.TrackingNumber,
		Carrier:        cl.Carrier,
		SerialNumber:   serial,
		// postgres хранит микросекунды
		ScannedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	stored, err := s.repo.InsertUnique(ctx, rec)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			slog.Info("duplicate scan rejected", "tracking_number", rec.TrackingNumber, "serial_number", rec.SerialNumber)
			return nil, ErrDuplicateScan
		}
		slog.Error("scan insert failed", "tracking_number", rec.TrackingNumber, "err", err)
		return nil, &StorageError{Op: "insert scan", Err: err}
	}

	s.cachePut(ctx, stored)
	s.publish(ctx, newRegisteredEvent(stored))

	slog.Info("scan registered", "id", stored.ID, "carrier", stored.Carrier, "tracking_number", stored.TrackingNumber)
	return stored, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.ScanRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &MissingFieldError{Field: "id"}
	}

	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, recordKey(id))
		if err != nil {
			slog.Warn("scan cache get failed", "id", id, "err", err)
		}
		if err == nil && ok {
			var rec models.ScanRecord
			if json.Unmarshal(b, &rec) == nil {
				return &rec, nil
			}
		}
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		slog.Error("scan select failed", "id", id, "err", err)
		return nil, &StorageError{Op: "get scan", Err: err}
	}
	// Промах кэш не заполняет: Delete мог пройти между чтением из базы
	// и записью в кэш, и тогда удалённая запись вернулась бы из кэша.
	return rec, nil
}

// Delete удаляет запись. После удаления ту же пару можно принять снова.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &MissingFieldError{Field: "id"}
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		slog.Error("scan delete failed", "id", id, "err", err)
		return &StorageError{Op: "delete scan", Err: err}
	}

	if s.cacheEnabled() {
		if err := s.cache.Del(ctx, recordKey(id)); err != nil {
			slog.Warn("scan cache del failed", "id", id, "err", err)
		}
	}
	s.publish(ctx, messages.ScanEvent{
		Type:       messages.ScanEventDeleted,
		ScanID:     id,
		OccurredAt: s.now().UTC(),
	})

	slog.Info("scan deleted", "id", id)
	return nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}

func (s *Service) cachePut(ctx context.Context, rec *models.ScanRecord) {
	if !s.cacheEnabled() {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, recordKey(rec.ID), b, s.cacheTTL); err != nil {
		slog.Warn("scan cache set failed", "id", rec.ID, "err", err)
	}
}

// publish: запись уже зафиксирована, ошибку только логируем.
func (s *Service) publish(ctx context.Context, ev messages.ScanEvent) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("scan event marshal failed", "id", ev.ScanID, "err", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, s.topic, []byte(ev.ScanID), b); err != nil {
		slog.Warn("scan event publish failed", "id", ev.ScanID, "type", ev.Type, "err", err)
	}
}

func newRegisteredEvent(rec *models.ScanRecord) messages.ScanEvent {
	scannedAt := rec.ScannedAt
	return messages.ScanEvent{
		Type:           messages.ScanEventRegistered,
		ScanID:         rec.ID,
		OccurredAt:     rec.ScannedAt,
		TrackingNumber: rec.TrackingNumber,
		Carrier:        string(rec.Carrier),
		SerialNumber:   rec.SerialNumber,
		ScannedAt:      &scannedAt,
	}
}

func recordKey(id string) string {
	return fmt.Sprintf("scan:%s", id)
}
