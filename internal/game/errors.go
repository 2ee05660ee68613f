package game

import (
	"errors"
	"fmt"
)

var (
	// ErrSceneNotFound: a scene id is not a key of the graph.
	ErrSceneNotFound = errors.New("scene not found")
	// ErrInvalidChoice: the target is neither a choice nor the autonext of the current scene.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrUnknownStat: a choice names a stat code the registry does not know.
	ErrUnknownStat = errors.New("unknown stat")
)

// SceneRole says which side of a lookup failed.
type SceneRole string

const (
	RoleStart   SceneRole = "start"
	RoleCurrent SceneRole = "current"
	RoleTarget  SceneRole = "target"
)

// SceneError reports a missing scene. A missing current scene means the
// player's saved position is stale; a missing target is a content bug.
type SceneError struct {
	SceneID string
	Role    SceneRole
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("%s scene %q not found", e.Role, e.SceneID)
}

func (e *SceneError) Unwrap() error { return ErrSceneNotFound }
