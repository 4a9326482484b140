package models

import "time"

// Carrier определяется по длине трек-номера.
type Carrier string

// Закрытый список перевозчиков.
const (
	CarrierMercadoLibre Carrier = "MercadoLibre"
	CarrierDeprisa      Carrier = "Deprisa"
	// Servientrega встречается только во фронтенде (10 цифр) и в таблицу
	// классификатора по умолчанию не входит.
	CarrierServientrega Carrier = "Servientrega"
)

// KnownCarriers возвращает все перевозчики в стабильном порядке.
func KnownCarriers() []Carrier {
	return []Carrier{CarrierMercadoLibre, CarrierDeprisa, CarrierServientrega}
}

func (c Carrier) Valid() bool {
	switch c {
	case CarrierMercadoLibre, CarrierDeprisa, CarrierServientrega:
		return true
	}
	return false
}

// ScanRecord описывает одну принятую на складе пару (трек-номер, серийный номер).
// После создания не меняется.
type ScanRecord struct {
	ID             string    `json:"id"`
	TrackingNumber string    `json:"trackingNumber"`
	Carrier        Carrier   `json:"carrier"`
	SerialNumber   string    `json:"serialNumber"`
	ScannedAt      time.Time `json:"scannedAt"`
}

// ScanKey: составной ключ уникальности.
type ScanKey struct {
	TrackingNumber string
	SerialNumber   string
}

func (r *ScanRecord) Key() ScanKey {
	return ScanKey{TrackingNumber: r.TrackingNumber, SerialNumber: r.SerialNumber}
}

type ScanSubmitInput struct {
	TrackingNumber string
	SerialNumber   string
}
