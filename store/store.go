// Package store provides the durable key-value repositories inspoflow
// mirrors its collections to.
package store

import (
	"errors"
	"fmt"
)

// Fixed keys under which the collections are persisted.
const (
	KeyPersonas    = "personas"
	KeyFeedContent = "feedContent"
)

// ErrNotFound is returned by Load when a key has never been saved.
var ErrNotFound = errors.New("key not found")

// Repository is a synchronous, process-local key-value store. Values are
// opaque serialized documents; Save replaces the whole value for a key.
type Repository interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Close() error
}

// Supported drivers for Open.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// Open creates a repository for the given driver and path.
// The path is ignored by the memory driver.
func Open(driver, path string) (Repository, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLite(path)
	case DriverBolt:
		return NewBolt(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
