package domain

import (
	"context"
	"errors"
)

// MaxIn is the largest identifier set a single live order query accepts.
const MaxIn = 10

var (
	ErrTooManyIDs      = errors.New("too_many_ids")
	ErrEmptyIDs        = errors.New("empty_ids")
	ErrInvalidOwner    = errors.New("invalid_owner")
	ErrInvalidOrderID  = errors.New("invalid_order_id")
	ErrProfileNotFound = errors.New("profile_not_found")
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrStoreClosed     = errors.New("store_closed")
)

// Subscription delivers live snapshots until Close is called. After Close
// returns no further values are sent and the channel is closed.
type Subscription[T any] interface {
	Updates() <-chan T
	Close()
}

// ProfileSnapshot is one delivery of the profile watch. Err is set when the
// underlying query failed; Profile is then meaningless.
type ProfileSnapshot struct {
	Profile Profile
	Exists  bool
	Err     error
}

// OrdersSnapshot always carries the complete document set for the watched
// ids, never a delta.
type OrdersSnapshot struct {
	Documents []OrderDocument
	Err       error
}

type DocumentStore interface {
	GetProfile(ctx context.Context, ownerID string) (Profile, error)
	WatchProfile(ctx context.Context, ownerID string) (Subscription[ProfileSnapshot], error)
	WatchOrders(ctx context.Context, ids []string) (Subscription[OrdersSnapshot], error)
}

// IdentityProvider publishes the current session owner. An empty string
// means nobody is signed in.
type IdentityProvider interface {
	Owners(ctx context.Context) <-chan string
}
