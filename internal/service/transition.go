package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"novel/internal/game"
	"novel/internal/storage"
)

type GoToRequest struct {
	TelegramID    string
	TargetSceneID string
	// RequestID de-duplicates retries: a repeated id returns the first
	// result without applying effects again. Empty disables de-duplication.
	RequestID string
}

func receiptKey(telegramID, requestID string) string {
	return telegramID + ":" + requestID
}

// GoTo moves the player to req.TargetSceneID if the move is legal. Stat
// increments, the choice log entry and the new position are committed
// together or not at all. Only one GoTo per player runs at a time; a
// concurrent call fails with ErrTransitionInProgress.
func (s *Service) GoTo(ctx context.Context, req GoToRequest) (TransitionResult, error) {
	log := s.logger.With(zap.String("telegram_id", req.TelegramID), zap.String("target", req.TargetSceneID))

	if res, ok := s.replay(ctx, req); ok {
		transitionsTotal.WithLabelValues(outcomeReplayed).Inc()
		return res, nil
	}

	release, ok, err := s.locker.TryLock(ctx, req.TelegramID)
	if err != nil {
		transitionsTotal.WithLabelValues(outcomeError).Inc()
		return TransitionResult{}, fmt.Errorf("acquire player lock: %w", err)
	}
	if !ok {
		transitionsTotal.WithLabelValues(outcomeBusy).Inc()
		return TransitionResult{}, ErrTransitionInProgress
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release player lock", zap.Error(err))
		}
	}()

	// A retry may have finished while we waited for the lock holder.
	if res, ok := s.replay(ctx, req); ok {
		transitionsTotal.WithLabelValues(outcomeReplayed).Inc()
		return res, nil
	}

	var res TransitionResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := loadUser(ctx, tx, req.TelegramID)
		if err != nil {
			return err
		}
		sess, err := loadSession(ctx, tx, u.ID)
		if err != nil {
			return err
		}

		tr, err := s.engine.AttemptTransition(ctx, tx, sess.CurrentSceneID, req.TargetSceneID)
		if err != nil {
			return err
		}

		for _, eff := range tr.Effects {
			if _, err := tx.IncrementUserStat(ctx, u.ID, eff.StatID, eff.Delta); err != nil {
				return fmt.Errorf("increment stat %s: %w", eff.StatCode, err)
			}
		}

		entry := &storage.ChoiceLog{
			UserID:    u.ID,
			FromScene: tr.From.ID,
			ToScene:   tr.Scene.ID,
			CreatedAt: s.now(),
		}
		if tr.Choice != nil {
			entry.ChoiceText = tr.Choice.Text
			entry.Cost = tr.Choice.CostValue()
		}
		if err := tx.LogChoice(ctx, entry); err != nil {
			return fmt.Errorf("log choice: %w", err)
		}

		sess.CurrentSceneID = tr.Scene.ID
		if err := tx.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		u.LastSeen = s.now()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		effects := tr.Effects
		if effects == nil {
			effects = []game.Effect{}
		}
		res = TransitionResult{
			SceneView: SceneView{Scene: tr.Scene, Balance: u.Balance},
			From:      tr.From.ID,
			Effects:   effects,
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, game.ErrInvalidChoice):
			transitionsTotal.WithLabelValues(outcomeInvalid).Inc()
		case errors.Is(err, game.ErrSceneNotFound):
			transitionsTotal.WithLabelValues(outcomeBrokenStory).Inc()
			log.Error("Transition hit a missing scene", zap.Error(err))
		default:
			transitionsTotal.WithLabelValues(outcomeError).Inc()
		}
		return TransitionResult{}, err
	}

	transitionsTotal.WithLabelValues(outcomeOK).Inc()
	for _, eff := range res.Effects {
		statIncrementsTotal.WithLabelValues(eff.StatCode).Inc()
	}
	log.Debug("Transition committed", zap.String("from", res.From), zap.Int("effects", len(res.Effects)))

	if req.RequestID != "" {
		if err := s.receipts.Put(ctx, receiptKey(req.TelegramID, req.RequestID), res); err != nil {
			log.Warn("Failed to store transition receipt", zap.String("request_id", req.RequestID), zap.Error(err))
		}
	}
	return res, nil
}

func (s *Service) replay(ctx context.Context, req GoToRequest) (TransitionResult, bool) {
	if req.RequestID == "" {
		return TransitionResult{}, false
	}
	res, ok, err := s.receipts.Get(ctx, receiptKey(req.TelegramID, req.RequestID))
	if err != nil {
		s.logger.Warn("Failed to read transition receipt", zap.String("request_id", req.RequestID), zap.Error(err))
		return TransitionResult{}, false
	}
	return res, ok
}
