package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ScanBox/internal/broker/kafka"
	"github.com/BearBump/ScanBox/internal/broker/messages"
	"github.com/pkg/errors"
)

// Auditor пишет одну строку журнала на каждое событие scan.events и ведёт счётчики.
// Битые сообщения считаются ошибками и пропускаются, чтобы не блокировать партицию.
type Auditor struct {
	log *slog.Logger

	startedAtUnixNano int64
	lastEventUnixNano atomic.Int64
	totalProcessed    atomic.Int64
	totalRegistered   atomic.Int64
	totalDeleted      atomic.Int64
	totalErrors       atomic.Int64

	mu        sync.Mutex
	byCarrier map[string]int64
	lastError string
}

func New(log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{
		log:               log.With("component", "audit"),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
		byCarrier:         map[string]int64{},
	}
}

// Handle подходит как kafka.Handler.
func (a *Auditor) Handle(ctx context.Context, msg kafka.Message) error {
	var ev messages.ScanEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		a.fail(ctx, errors.Wrap(err, "decode scan event"), msg)
		return nil
	}
	if ev.ScanID == "" {
		ev.ScanID = string(msg.Key)
	}
	pos := []any{"partition", msg.Partition, "offset", msg.Offset}

	switch ev.Type {
	case messages.ScanEventRegistered:
		a.totalRegistered.Add(1)
		a.mu.Lock()
		a.byCarrier[ev.Carrier]++
		a.mu.Unlock()
		a.log.InfoContext(ctx, "scan registered", append([]any{
			"scan_id", ev.ScanID,
			"tracking_number", ev.TrackingNumber,
			"carrier", ev.Carrier,
			"serial_number", ev.SerialNumber,
			"occurred_at", ev.OccurredAt,
		}, pos...)...)
	case messages.ScanEventDeleted:
		a.totalDeleted.Add(1)
		a.log.InfoContext(ctx, "scan deleted", append([]any{
			"scan_id", ev.ScanID,
			"occurred_at", ev.OccurredAt,
		}, pos...)...)
	default:
		a.fail(ctx, errors.Errorf("unknown scan event type %q", ev.Type), msg)
		return nil
	}

	a.totalProcessed.Add(1)
	a.lastEventUnixNano.Store(time.Now().UTC().UnixNano())
	return nil
}

func (a *Auditor) fail(ctx context.Context, err error, msg kafka.Message) {
	a.totalErrors.Add(1)
	a.mu.Lock()
	a.lastError = err.Error()
	a.mu.Unlock()
	a.log.WarnContext(ctx, "skip scan event",
		"key", string(msg.Key), "partition", msg.Partition, "offset", msg.Offset, "err", err)
}

type CarrierCount struct {
	Carrier    string `json:"carrier"`
	Registered int64  `json:"registered"`
}

type Stats struct {
	StartedAt       time.Time      `json:"startedAt"`
	LastEventAt     *time.Time     `json:"lastEventAt,omitempty"`
	TotalProcessed  int64          `json:"totalProcessed"`
	TotalRegistered int64          `json:"totalRegistered"`
	TotalDeleted    int64          `json:"totalDeleted"`
	TotalErrors     int64          `json:"totalErrors"`
	ByCarrier       []CarrierCount `json:"byCarrier"`
	LastError       string         `json:"lastError,omitempty"`
}

func (a *Auditor) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, a.startedAtUnixNano).UTC(),
		TotalProcessed:  a.totalProcessed.Load(),
		TotalRegistered: a.totalRegistered.Load(),
		TotalDeleted:    a.totalDeleted.Load(),
		TotalErrors:     a.totalErrors.Load(),
		ByCarrier:       []CarrierCount{},
	}
	if n := a.lastEventUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastEventAt = &t
	}

	a.mu.Lock()
	for c, n := range a.byCarrier {
		st.ByCarrier = append(st.ByCarrier, CarrierCount{Carrier: c, Registered: n})
	}
	st.LastError = a.lastError
	a.mu.Unlock()

	sort.Slice(st.ByCarrier, func(i, j int) bool { return st.ByCarrier[i].Carrier < st.ByCarrier[j].Carrier })
	return st
}
