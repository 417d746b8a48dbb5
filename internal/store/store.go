// Package store defines the persisted session state contract: a narrow
// key-value capability over exactly three fixed keys. Absence of any one
// key means "not authenticated". Only the auth service writes entries;
// readers treat a missing or invalid entry as unauthenticated rather than
// erroring, so an external clear (another tab logging out) is always safe.
package store

import (
	"context"
	"errors"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyAccount      = "account"
)

var ErrNotFound = errors.New("store entry not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every entry. Used both for logout and to recover from
	// a partially written session.
	Clear(ctx context.Context) error
}
