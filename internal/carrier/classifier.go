// Package carrier определяет перевозчика по отсканированному трек-номеру.
// Решение принимается только по количеству цифр после нормализации.
package carrier

import (
	"fmt"
	"strings"

	"github.com/BearBump/ScanBox/internal/models"
	"github.com/pkg/errors"
)

var ErrInvalidTrackingNumber = errors.New("invalid tracking number")

// Rule сопоставляет длину цифровой строки перевозчику.
type Rule struct {
	Digits  int            `json:"digits" yaml:"digits"`
	Carrier models.Carrier `json:"carrier" yaml:"carrier"`
}

// DefaultRules возвращает таблицу, с которой работает сохранение в БД.
func DefaultRules() []Rule {
	return []Rule{
		{Digits: 11, Carrier: models.CarrierMercadoLibre},
		{Digits: 12, Carrier: models.CarrierDeprisa},
	}
}

type Classification struct {
	TrackingNumber string
	Carrier        models.Carrier
}

// ClassificationError несёт фактическое число цифр и допустимые варианты.
type ClassificationError struct {
	Digits int
	Rules  []Rule
}

func (e *ClassificationError) Error() string {
	parts := make([]string, 0, len(e.Rules))
	for _, r := range e.Rules {
		parts = append(parts, fmt.Sprintf("%d digits (%s)", r.Digits, r.Carrier))
	}
	return fmt.Sprintf("invalid tracking number: got %d digits, expected %s", e.Digits, strings.Join(parts, " or "))
}

func (e *ClassificationError) Unwrap() error { return ErrInvalidTrackingNumber }

type Classifier struct {
	rules []Rule
	byLen map[int]models.Carrier
}

// NewClassifier проверяет таблицу: длины положительные и не повторяются,
// перевозчики из закрытого списка.
func NewClassifier(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, errors.New("carrier rules are empty")
	}
	byLen := make(map[int]models.Carrier, len(rules))
	for _, r := range rules {
		if r.Digits <= 0 {
			return nil, errors.Errorf("carrier %q: digits must be positive, got %d", r.Carrier, r.Digits)
		}
		if !r.Carrier.Valid() {
			return nil, errors.Errorf("unknown carrier %q", r.Carrier)
		}
		if prev, ok := byLen[r.Digits]; ok {
			return nil, errors.Errorf("digits %d assigned to both %s and %s", r.Digits, prev, r.Carrier)
		}
		byLen[r.Digits] = r.Carrier
	}
	return &Classifier{rules: append([]Rule(nil), rules...), byLen: byLen}, nil
}

// Default строит классификатор с таблицей по умолчанию.
func Default() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Normalize оставляет только десятичные цифры ASCII, сохраняя их порядок.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (c *Classifier) Classify(raw string) (Classification, error) {
	digits := Normalize(raw)
	carrier, ok := c.byLen[len(digits)]
	if !ok {
		return Classification{}, &ClassificationError{Digits: len(digits), Rules: c.Rules()}
	}
	return Classification{TrackingNumber: digits, Carrier: carrier}, nil
}

func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Unrouted возвращает известных перевозчиков, для которых нет правила.
// Сейчас это Servientrega: фронтенд его показывает, бэкенд не принимает.
func (c *Classifier) Unrouted() []models.Carrier {
	routed := make(map[models.Carrier]struct{}, len(c.rules))
	for _, r := range c.rules {
		routed[r.Carrier] = struct{}{}
	}
	var out []models.Carrier
	for _, k := range models.KnownCarriers() {
		if _, ok := routed[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
