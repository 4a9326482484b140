package messages

import "time"

const (
	ScanEventRegistered = "registered"
	ScanEventDeleted    = "deleted"
)

// ScanEvent публикуется в топик scan.events после фиксации изменения в БД.
// Ключ сообщения — id записи.
type ScanEvent struct {
	Type       string    `json:"type"`
	ScanID     string    `json:"scan_id"`
	OccurredAt time.Time `json:"occurred_at"`

	TrackingNumber string     `json:"tracking_number,omitempty"`
	Carrier        string     `json:"carrier,omitempty"`
	SerialNumber   string     `json:"serial_number,omitempty"`
	ScannedAt      *time.Time `json:"scanned_at,omitempty"`
}
