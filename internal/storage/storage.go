// Package storage persists players, their position in the story, stat values
// and the choice log. Every operation runs inside Store.WithTx so a caller can
// make "apply effects, advance position" a single unit.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"novel/internal/game"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateUser is returned by CreateUser when the telegram id is taken,
	// typically by a concurrent first request for the same player.
	ErrDuplicateUser = errors.New("user with this telegram id already exists")
)

type User struct {
	ID          uuid.UUID
	TelegramID  string
	Balance     int
	CreatedAt   time.Time
	LastSeen    time.Time
	LastBonusAt *time.Time
}

// Session is a player's position in the story.
type Session struct {
	UserID         uuid.UUID
	CurrentSceneID string
	UpdatedAt      time.Time
}

type UserStat struct {
	UserID uuid.UUID
	StatID int64
	Code   string
	Value  int
}

// ChoiceLog records one completed transition.
type ChoiceLog struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	FromScene  string
	ToScene    string
	ChoiceText string
	Cost       int
	CreatedAt  time.Time
}

// Tx is the set of operations available inside a transaction. It satisfies
// game.StatRegistry so the engine can resolve stats through it.
type Tx interface {
	game.StatRegistry

	// UserByTelegramID locks the user row for the rest of the transaction.
	UserByTelegramID(ctx context.Context, telegramID string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// UpdateUser stores Balance, LastSeen and LastBonusAt.
	UpdateUser(ctx context.Context, u *User) error

	SessionByUser(ctx context.Context, userID uuid.UUID) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error

	// EnsureStat registers a stat unless (code, story) exists. It returns the
	// stored stat and whether it was created.
	EnsureStat(ctx context.Context, s game.Stat) (game.Stat, bool, error)
	IncrementUserStat(ctx context.Context, userID uuid.UUID, statID int64, delta int) (int, error)
	UserStats(ctx context.Context, userID uuid.UUID, storyID string) ([]UserStat, error)
	ResetUserStats(ctx context.Context, userID uuid.UUID) error

	LogChoice(ctx context.Context, c *ChoiceLog) error
	// ChoiceLogs returns a user's transitions oldest first.
	ChoiceLogs(ctx context.Context, userID uuid.UUID) ([]ChoiceLog, error)
}

// Store runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}
