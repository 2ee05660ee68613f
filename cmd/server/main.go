package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"novel/internal/config"
	"novel/internal/game"
	"novel/internal/logger"
	"novel/internal/markup"
	"novel/internal/service"
	"novel/internal/session"
	"novel/internal/storage"
	"novel/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	story, title, err := loadStory(cfg, lg)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer store.Close()

	catalogue, err := service.LoadStatCatalogue(cfg.StatsPath)
	if err != nil {
		return fmt.Errorf("load stats catalogue: %w", err)
	}
	if err := service.SeedStats(ctx, store, story.ID, catalogue, lg); err != nil {
		return err
	}

	locker, receipts, closeSessions, err := openSessions(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeSessions()

	svc := service.New(store, game.NewEngine(story, lg), locker, receipts, lg,
		service.Options{InitialBalance: cfg.InitialBalance, DailyBonus: cfg.DailyBonus})

	srv := &web.Server{
		Service:        svc,
		Health:         store,
		Logger:         lg.Named("HTTP"),
		AssetsDir:      cfg.AssetsDir,
		AllowedOrigins: cfg.AllowedOrigins(),
		Title:          title,
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("Listening", zap.String("addr", httpServer.Addr), zap.String("story_id", story.ID),
			zap.Int("scenes", len(story.Graph)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// loadStory reads the graph from STORY_PATH. A Twine .html export is
// compiled on the spot; .json and .yaml files are graph caches.
func loadStory(cfg *config.Config, lg *zap.Logger) (*game.Story, string, error) {
	var (
		g          game.Graph
		title      string
		twineStart string
	)
	if strings.EqualFold(filepath.Ext(cfg.StoryPath), ".html") {
		tw, err := markup.LoadTwineHTML(cfg.StoryPath)
		if err != nil {
			return nil, "", fmt.Errorf("read story %s: %w", cfg.StoryPath, err)
		}
		var report markup.Report
		g, report, err = markup.Compile(tw.Passages, markup.Options{Strict: cfg.StoryStrict})
		if err != nil {
			return nil, "", fmt.Errorf("compile story %s: %w", cfg.StoryPath, err)
		}
		for _, name := range report.Duplicates {
			lg.Warn("Duplicate passage name, later passage kept", zap.String("passage", name))
		}
		for _, name := range report.Recovered {
			lg.Error("Passage markup could not be fully compiled", zap.String("passage", name))
		}
		lg.Info("Story compiled", zap.String("path", cfg.StoryPath), zap.Int("scenes", report.Scenes))
		title, twineStart = tw.Name, tw.StartPassage
	} else {
		var err error
		g, err = game.LoadGraph(cfg.StoryPath)
		if err != nil {
			return nil, "", fmt.Errorf("load story %s: %w", cfg.StoryPath, err)
		}
	}

	for _, ref := range g.DanglingTargets() {
		lg.Warn("Scene refers to a missing scene", zap.String("from", ref.From), zap.String("target", ref.Target))
	}

	start := cfg.StartSceneID
	if _, ok := g.Scene(start); !ok && twineStart != "" {
		lg.Warn("Configured start scene not in story, using the export's start passage",
			zap.String("configured", start), zap.String("start", twineStart))
		start = twineStart
	}
	story, err := game.NewStory(cfg.StoryID, start, g)
	if err != nil {
		return nil, "", err
	}
	return story, title, nil
}

func openStorage(ctx context.Context, cfg *config.Config, lg *zap.Logger) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		lg.Warn("DATABASE_URL not set, progress is kept in memory only")
		return storage.NewMemoryStore(), nil
	}
	pool, err := storage.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBConnectRetry, cfg.DBRetryInterval, lg)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(cfg.DatabaseURL, lg); err != nil {
		pool.Close()
		return nil, err
	}
	return storage.NewPostgresStore(pool, lg), nil
}

func openSessions(ctx context.Context, cfg *config.Config, lg *zap.Logger) (session.Locker, session.Store[service.TransitionResult], func(), error) {
	if cfg.RedisAddr == "" {
		return session.NewMemoryLocker(cfg.LockTTL),
			session.NewMemoryStore[service.TransitionResult](cfg.ReceiptTTL),
			func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	lg.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	prefix := "novel:" + cfg.StoryID + ":"
	return session.NewRedisLocker(client, prefix+"lock:", cfg.LockTTL),
		session.NewRedisStore[service.TransitionResult](client, prefix+"receipt:", cfg.ReceiptTTL, lg),
		func() { _ = client.Close() }, nil
}
