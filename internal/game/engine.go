package game

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Engine walks a story's scene graph. It holds no per-player state: the
// caller passes the current scene id in and persists what comes out.
type Engine struct {
	Story  *Story
	Logger *zap.Logger
}

// Transition is the outcome of a legal move.
type Transition struct {
	From  *Scene
	Scene *Scene
	// Choice is the matching choice, nil when the move followed autonext.
	Choice  *Choice
	Effects []Effect
	// UnknownStats lists stat codes that had no registry entry and were skipped.
	UnknownStats []string
}

// ViaAutonext reports whether the move followed the scene's autonext.
func (t Transition) ViaAutonext() bool { return t.Choice == nil }

func NewEngine(story *Story, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Story: story, Logger: logger.Named("Engine")}
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// CurrentScene resolves the scene a player is on.
func (e *Engine) CurrentScene(id string) (*Scene, error) {
	s, ok := e.Story.Graph.Scene(id)
	if !ok {
		return nil, &SceneError{SceneID: id, Role: RoleCurrent}
	}
	return s, nil
}

// MatchChoice returns the first choice of s whose target is targetID.
// Earlier choices win when several share a target.
func MatchChoice(s *Scene, targetID string) (Choice, bool) {
	for _, ch := range s.Choices {
		if ch.Target == targetID {
			return ch, true
		}
	}
	return Choice{}, false
}

// AttemptTransition validates a move from currentID to targetID and computes
// its effects. stats is consulted only when the matching choice names a stat;
// unknown codes are logged and skipped. Nothing is mutated.
func (e *Engine) AttemptTransition(ctx context.Context, stats StatRegistry, currentID, targetID string) (Transition, error) {
	cur, err := e.CurrentScene(currentID)
	if err != nil {
		return Transition{}, err
	}

	res := Transition{From: cur, Effects: []Effect{}}
	if ch, ok := MatchChoice(cur, targetID); ok {
		res.Choice = &ch
	} else if cur.Autonext == "" || cur.Autonext != targetID {
		return Transition{}, fmt.Errorf("%w: %q is not reachable from %q", ErrInvalidChoice, targetID, currentID)
	} else {
		e.logger().Debug("Following autonext",
			zap.String("from", currentID), zap.String("to", targetID))
	}

	if res.Choice != nil && res.Choice.Stat != "" {
		code := res.Choice.Stat
		st, found, err := e.lookupStat(ctx, stats, code)
		if err != nil {
			return Transition{}, fmt.Errorf("find stat %q: %w", code, err)
		}
		if found {
			res.Effects = append(res.Effects, Effect{StatID: st.ID, StatCode: st.Code, Delta: 1})
		} else {
			e.logger().Warn("Stat not registered, skipping effect",
				zap.String("stat", code),
				zap.String("storyID", e.Story.ID),
				zap.String("from", currentID),
				zap.String("to", targetID),
				zap.Error(ErrUnknownStat))
			res.UnknownStats = append(res.UnknownStats, code)
		}
	}

	next, ok := e.Story.Graph.Scene(targetID)
	if !ok {
		return Transition{}, &SceneError{SceneID: targetID, Role: RoleTarget}
	}
	res.Scene = next
	return res, nil
}

func (e *Engine) lookupStat(ctx context.Context, stats StatRegistry, code string) (Stat, bool, error) {
	if stats == nil {
		return Stat{}, false, nil
	}
	return stats.FindStat(ctx, code, e.Story.ID)
}
