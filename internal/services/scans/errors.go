package scans

import (
	"fmt"

	"github.com/BearBump/ScanBox/internal/carrier"
	"github.com/pkg/errors"
)

// Виды ошибок приёма. Вызывающий слой различает их через errors.Is.
var (
	ErrMissingField          = errors.New("missing field")
	ErrInvalidTrackingNumber = carrier.ErrInvalidTrackingNumber
	ErrDuplicateScan         = errors.New("this tracking/serial combination is already registered")
	ErrStorageFailure        = errors.New("storage failure")
	ErrNotFound              = errors.New("scan not found")
)

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s is required", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// StorageError: сбой хранилища, не связанный с уникальностью. Можно повторить.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageFailure, e.Err} }
