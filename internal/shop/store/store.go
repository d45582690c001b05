package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
)

var (
	// ErrNotFound aliases the SDK sentinel so drivers and callers share one value.
	ErrNotFound = shopsdk.ErrStateNotFound

	// ErrCorruptState is returned when a stored record exists but cannot be
	// read back. The token manager treats it like a missing record.
	ErrCorruptState = errors.New("store: corrupt token state")
)

// Kind names a storage driver.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Store is the durable home of one shop's token state. Concrete drivers
// (file, sqlite) implement this.
type Store interface {
	shopsdk.TokenStore

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
}
