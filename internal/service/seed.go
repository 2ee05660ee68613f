package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"novel/internal/game"
	"novel/internal/storage"
)

// DefaultStats is the catalogue seeded when no stats file is configured.
var DefaultStats = []game.Stat{
	{Code: "quiet", Name: "Quiet"},
	{Code: "rebel", Name: "Rebel"},
	{Code: "reputation", Name: "Reputation"},
}

type statsFile struct {
	Stats []struct {
		Code string `yaml:"code"`
		Name string `yaml:"name"`
	} `yaml:"stats"`
}

// LoadStatCatalogue reads a YAML file of the form
//
//	stats:
//	  - code: rebel
//	    name: Rebel
//
// An empty path returns DefaultStats.
func LoadStatCatalogue(path string) ([]game.Stat, error) {
	if path == "" {
		return DefaultStats, nil
	}
	b, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from server config
	if err != nil {
		return nil, err
	}
	var f statsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]game.Stat, 0, len(f.Stats))
	for i, st := range f.Stats {
		if st.Code == "" {
			return nil, fmt.Errorf("%s: stat %d has no code", path, i)
		}
		name := st.Name
		if name == "" {
			name = st.Code
		}
		out = append(out, game.Stat{Code: st.Code, Name: name})
	}
	return out, nil
}

// SeedStats ensures every stat in catalogue exists for storyID. Existing
// stats are left as they are.
func SeedStats(ctx context.Context, store storage.Store, storyID string, catalogue []game.Stat, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, st := range catalogue {
			st.ID = 0
			st.StoryID = storyID
			got, created, err := tx.EnsureStat(ctx, st)
			if err != nil {
				return fmt.Errorf("ensure stat %s: %w", st.Code, err)
			}
			if created {
				logger.Info("Stat registered", zap.String("stat", got.Code), zap.String("story_id", storyID), zap.Int64("stat_id", got.ID))
			}
		}
		return nil
	})
}
