package game

import (
	"context"
	"sync"
)

// StatRegistry resolves stat codes within a story.
type StatRegistry interface {
	FindStat(ctx context.Context, code, storyID string) (Stat, bool, error)
}

// StatCatalog is an in-memory StatRegistry.
type StatCatalog struct {
	mu     sync.RWMutex
	nextID int64
	stats  map[catalogKey]Stat
}

type catalogKey struct{ storyID, code string }

func NewStatCatalog() *StatCatalog {
	return &StatCatalog{stats: map[catalogKey]Stat{}}
}

// Register adds a stat if (code, story) is new and returns the stored value.
// An ID of 0 is replaced with the next free one.
func (c *StatCatalog) Register(s Stat) Stat {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := catalogKey{s.StoryID, s.Code}
	if cur, ok := c.stats[k]; ok {
		return cur
	}
	if s.ID == 0 {
		c.nextID++
		s.ID = c.nextID
	} else if s.ID > c.nextID {
		c.nextID = s.ID
	}
	c.stats[k] = s
	return s
}

func (c *StatCatalog) FindStat(_ context.Context, code, storyID string) (Stat, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stats[catalogKey{storyID, code}]
	return s, ok, nil
}
