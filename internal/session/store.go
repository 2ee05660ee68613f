// Package session holds short-lived per-player state that lives outside the
// database: transition receipts for retried requests and the lock that keeps
// one transition in flight per player.
package session

import "context"

type Store[T any] interface {
	Get(ctx context.Context, id string) (T, bool, error)
	Put(ctx context.Context, id string, v T) error
	Delete(ctx context.Context, id string) error
}
