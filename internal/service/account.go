package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"novel/internal/storage"
)

// InitUser registers telegramID with the initial balance. An existing user
// is left untouched.
func (s *Service) InitUser(ctx context.Context, telegramID string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, _, err := s.ensureUser(ctx, tx, telegramID)
		return err
	})
}

func (s *Service) ensureUser(ctx context.Context, tx storage.Tx, telegramID string) (*storage.User, bool, error) {
	u, err := loadUser(ctx, tx, telegramID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}
	now := s.now()
	u = &storage.User{TelegramID: telegramID, Balance: s.opts.InitialBalance, CreatedAt: now, LastSeen: now}
	if err := tx.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, storage.ErrDuplicateUser) {
			return nil, false, fmt.Errorf("create user %s: %w", telegramID, err)
		}
		// Lost the race to a concurrent first request; use its row.
		s.logger.Debug("User created concurrently", zap.String("telegram_id", telegramID))
		u, err = loadUser(ctx, tx, telegramID)
		if err != nil {
			return nil, false, err
		}
		return u, false, nil
	}
	usersCreatedTotal.Inc()
	s.logger.Info("User created", zap.String("telegram_id", telegramID), zap.String("user_id", u.ID.String()))
	return u, true, nil
}

// Start creates the user and their session at the start scene when either
// is missing. An existing session keeps its position.
func (s *Service) Start(ctx context.Context, telegramID string) (Position, error) {
	var pos Position
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, _, err := s.ensureUser(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		sess, err := loadSession(ctx, tx, u.ID)
		if errors.Is(err, ErrSessionNotFound) {
			sess = &storage.Session{UserID: u.ID, CurrentSceneID: s.StartSceneID()}
			if err := tx.SaveSession(ctx, sess); err != nil {
				return fmt.Errorf("create session: %w", err)
			}
		} else if err != nil {
			return err
		}
		pos = Position{SceneID: sess.CurrentSceneID, Balance: u.Balance}
		return nil
	})
	return pos, err
}

// Progress returns the scene the player stands on.
func (s *Service) Progress(ctx context.Context, telegramID string) (SceneView, error) {
	var view SceneView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := loadUser(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		sess, err := loadSession(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		sc, err := s.engine.CurrentScene(sess.CurrentSceneID)
		if err != nil {
			s.logger.Error("Session points at a missing scene",
				zap.String("telegram_id", telegramID), zap.String("scene_id", sess.CurrentSceneID))
			return err
		}
		view = SceneView{Scene: sc, Balance: u.Balance}
		return nil
	})
	return view, err
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// DailyBonus credits the configured bonus once per UTC calendar day.
func (s *Service) DailyBonus(ctx context.Context, telegramID string) (BonusResult, error) {
	var res BonusResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := loadUser(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		now := s.now()
		if u.LastBonusAt != nil && sameUTCDay(*u.LastBonusAt, now) {
			res = BonusResult{Received: false, Balance: u.Balance}
			return nil
		}
		u.Balance += s.opts.DailyBonus
		u.LastBonusAt = &now
		u.LastSeen = now
		if err := tx.UpdateUser(ctx, u); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		res = BonusResult{Received: true, Balance: u.Balance}
		return nil
	})
	if err == nil && res.Received {
		dailyBonusesTotal.Inc()
	}
	return res, err
}

// Spend debits amount and returns the new balance.
func (s *Service) Spend(ctx context.Context, telegramID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := loadUser(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		if u.Balance < amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, u.Balance, amount)
		}
		u.Balance -= amount
		u.LastSeen = s.now()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		balance = u.Balance
		return nil
	})
	if err == nil {
		spentTotal.Add(float64(amount))
	}
	return balance, err
}

// ResetProgress moves the player back to the start scene and zeroes every
// stat value. The choice log is kept.
func (s *Service) ResetProgress(ctx context.Context, telegramID string) (Position, error) {
	var pos Position
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := loadUser(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		sess := &storage.Session{UserID: u.ID, CurrentSceneID: s.StartSceneID()}
		if err := tx.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		if err := tx.ResetUserStats(ctx, u.ID); err != nil {
			return fmt.Errorf("reset stats: %w", err)
		}
		pos = Position{SceneID: sess.CurrentSceneID, Balance: u.Balance}
		return nil
	})
	if err == nil {
		s.logger.Info("Progress reset", zap.String("telegram_id", telegramID))
	}
	return pos, err
}

// Stats returns the player's stat values for the service's story.
func (s *Service) Stats(ctx context.Context, telegramID string) (map[string]int, error) {
	out := map[string]int{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := loadUser(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		stats, err := tx.UserStats(ctx, u.ID, s.StoryID())
		if err != nil {
			return fmt.Errorf("load stats: %w", err)
		}
		for _, st := range stats {
			out[st.Code] = st.Value
		}
		return nil
	})
	return out, err
}

// Journey rebuilds the scenes a player has passed through from the choice
// log, in first-visit order, ending with the current scene.
func (s *Service) Journey(ctx context.Context, telegramID string) (Journey, error) {
	var j Journey
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := loadUser(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		sess, err := loadSession(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		logs, err := tx.ChoiceLogs(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("load choice log: %w", err)
		}
		seen := map[string]bool{}
		add := func(id string) {
			if id != "" && !seen[id] {
				seen[id] = true
				j.Visited = append(j.Visited, id)
			}
		}
		add(s.StartSceneID())
		for _, l := range logs {
			add(l.FromScene)
			add(l.ToScene)
		}
		add(sess.CurrentSceneID)
		j.Current = sess.CurrentSceneID
		return nil
	})
	return j, err
}
