package scans_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/ScanBox/internal/carrier"
	"github.com/BearBump/ScanBox/internal/models"
	"github.com/BearBump/ScanBox/internal/services/scans"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// RateLimiter ограничивает частоту отправок по станции сканирования.
// retryAfter равен остатку текущего окна.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

type ScansAPI struct {
	svc *scans.Service

	token string

	rl          RateLimiter
	submitLimit int64

	// X-Station-ID учитывается только за доверенным прокси склада
	trustStationHeader bool
}

func New(svc *scans.Service, token string) *ScansAPI {
	return &ScansAPI{svc: svc, token: token}
}

// WithSubmitRateLimit включает лимит отправок в минуту на станцию. При limit <= 0 лимита нет.
func (a *ScansAPI) WithSubmitRateLimit(rl RateLimiter, limit int64) *ScansAPI {
	a.rl = rl
	a.submitLimit = limit
	return a
}

// WithTrustedStationHeader включает лимит по заголовку X-Station-ID.
// По умолчанию лимит считается по адресу клиента.
func (a *ScansAPI) WithTrustedStationHeader(trust bool) *ScansAPI {
	a.trustStationHeader = trust
	return a
}

// Routes монтирует /api. Все маршруты требуют общий токен оператора.
func (a *ScansAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(a.requireToken)

	r.With(a.limitSubmits).Post("/scans", a.submitScan)
	r.Get("/scans/{id}", a.getScan)
	r.Delete("/scans/{id}", a.deleteScan)

	r.Get("/carriers", a.listCarriers)
	r.Post("/carriers/classify", a.classify)
	return r
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`

	AcceptedLengths []carrier.Rule `json:"acceptedLengths,omitempty"`
}

type submitRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	SerialNumber   string `json:"serialNumber"`
}

type classifyRequest struct {
	TrackingNumber string `json:"trackingNumber"`
}

type classifyResponse struct {
	TrackingNumber string         `json:"trackingNumber"`
	Carrier        models.Carrier `json:"carrier"`
}

func (a *ScansAPI) submitScan(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid JSON body", Kind: "BadRequest"})
		return
	}

	rec, err := a.svc.Submit(r.Context(), models.ScanSubmitInput{
		TrackingNumber: req.TrackingNumber,
		SerialNumber:   req.SerialNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: rec})
}

func (a *ScansAPI) getScan(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rec})
}

func (a *ScansAPI) deleteScan(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: struct{}{}})
}

func (a *ScansAPI) listCarriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: a.svc.Classifier().Rules()})
}

// classify нужен станции для предпросмотра и ничего не сохраняет.
func (a *ScansAPI) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid JSON body", Kind: "BadRequest"})
		return
	}
	cl, err := a.svc.Classifier().Classify(req.TrackingNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: classifyResponse{
		TrackingNumber: cl.TrackingNumber,
		Carrier:        cl.Carrier,
	}})
}

func writeError(w http.ResponseWriter, err error) {
	var ce *carrier.ClassificationError
	switch {
	case errors.Is(err, scans.ErrMissingField):
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error(), Kind: "MissingField"})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error(), Kind: "InvalidTrackingNumber", AcceptedLengths: ce.Rules})
	case errors.Is(err, scans.ErrDuplicateScan):
		writeJSON(w, http.StatusConflict, envelope{Error: err.Error(), Kind: "DuplicateScan"})
	case errors.Is(err, scans.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Error: err.Error(), Kind: "NotFound"})
	case errors.Is(err, scans.ErrStorageFailure):
		// детали хранилища наружу не отдаём
		writeJSON(w, http.StatusServiceUnavailable, envelope{Error: "storage unavailable, retry later", Kind: "StorageFailure"})
	default:
		slog.Error("unhandled api error", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
