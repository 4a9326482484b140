// Package storage задаёт общий контракт хранилищ записей сканирования.
// Уникальность пары (трек-номер, серийный номер) обеспечивает само хранилище:
// вставка либо проходит, либо возвращает ErrDuplicateKey.
package storage

import "github.com/pkg/errors"

var (
	ErrDuplicateKey = errors.New("scan key already exists")
	ErrNotFound     = errors.New("scan not found")
)
