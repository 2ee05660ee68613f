// Package service composes the transition engine with persistence: it
// validates a move, applies its stat effects, logs it and advances the
// player, all inside one storage transaction. It also carries the account
// operations (balance, daily bonus, progress reset).
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"novel/internal/game"
	"novel/internal/session"
	"novel/internal/storage"
)

type Options struct {
	InitialBalance int
	DailyBonus     int
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

type Service struct {
	store    storage.Store
	engine   *game.Engine
	locker   session.Locker
	receipts session.Store[TransitionResult]
	logger   *zap.Logger
	opts     Options
}

func New(store storage.Store, engine *game.Engine, locker session.Locker, receipts session.Store[TransitionResult], logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		engine:   engine,
		locker:   locker,
		receipts: receipts,
		logger:   logger.Named("GameService"),
		opts:     opts,
	}
}

// StoryID is the story every operation is scoped to.
func (s *Service) StoryID() string { return s.engine.Story.ID }

func (s *Service) StartSceneID() string { return s.engine.Story.Start }

func (s *Service) Graph() game.Graph { return s.engine.Story.Graph }

// SceneView is a scene in cache format with the player's balance alongside.
type SceneView struct {
	*game.Scene
	Balance int `json:"balance"`
}

// Position is where a player stands after start or reset.
type Position struct {
	SceneID string `json:"scene_id"`
	Balance int    `json:"balance"`
}

// TransitionResult is what a completed go_to returns. It is also the
// receipt replayed for a retried request id.
type TransitionResult struct {
	SceneView
	From    string        `json:"from_scene_id"`
	Effects []game.Effect `json:"effects"`
}

type BonusResult struct {
	Received bool `json:"received"`
	Balance  int  `json:"balance"`
}

// Journey is the ordered list of distinct scenes a player has stood on.
type Journey struct {
	Visited []string
	Current string
}

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

// loadUser maps storage.ErrNotFound to ErrUserNotFound.
func loadUser(ctx context.Context, tx storage.Tx, telegramID string) (*storage.User, error) {
	u, err := tx.UserByTelegramID(ctx, telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", telegramID, err)
	}
	return u, nil
}

// loadSession maps storage.ErrNotFound to ErrSessionNotFound.
func loadSession(ctx context.Context, tx storage.Tx, userID uuid.UUID) (*storage.Session, error) {
	sess, err := tx.SessionByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", userID, err)
	}
	return sess, nil
}
