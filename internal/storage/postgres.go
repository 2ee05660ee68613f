package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"novel/internal/game"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// ConnectPostgres opens a pool and pings it, retrying while the database
// is still starting up.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int32, retries int, interval time.Duration, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for i := 1; i <= retries; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("Database not ready, waiting", zap.Int("attempt", i), zap.Int("maxAttempts", retries), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("database not available after %d attempts: %w", retries, lastErr)
}

func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger.Named("PostgresStore")}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error("Failed to rollback transaction after panic", zap.Error(rbErr), zap.Any("panic", p))
			}
			panic(p)
		}
	}()

	if err := fn(ctx, &pgTx{db: tx, logger: s.logger}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Error("Failed to rollback transaction", zap.Error(rbErr), zap.NamedError("original_error", err))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() { s.pool.Close() }

type pgTx struct {
	db     DBTX
	logger *zap.Logger
}

const (
	selectUserByTelegramIDQuery = `
SELECT id, telegram_id, balance, created_at, last_seen, last_bonus_at
FROM users
WHERE telegram_id = $1
FOR UPDATE`

	uniqueViolation = "23505"

	insertUserQuery = `
INSERT INTO users (id, telegram_id, balance, created_at, last_seen, last_bonus_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (telegram_id) DO NOTHING`

	updateUserQuery = `
UPDATE users SET balance = $2, last_seen = $3, last_bonus_at = $4
WHERE id = $1`

	selectSessionQuery = `
SELECT user_id, current_scene_id, updated_at
FROM sessions
WHERE user_id = $1`

	upsertSessionQuery = `
INSERT INTO sessions (user_id, current_scene_id, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
    current_scene_id = EXCLUDED.current_scene_id,
    updated_at = EXCLUDED.updated_at`

	selectStatQuery = `
SELECT id, code, name, story_id
FROM stats
WHERE code = $1 AND story_id = $2`

	insertStatQuery = `
INSERT INTO stats (code, name, story_id)
VALUES ($1, $2, $3)
ON CONFLICT (story_id, code) DO NOTHING
RETURNING id`

	incrementUserStatQuery = `
INSERT INTO user_stats (user_id, stat_id, value)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, stat_id) DO UPDATE SET value = user_stats.value + EXCLUDED.value
RETURNING value`

	selectUserStatsQuery = `
SELECT us.user_id, s.id, s.code, us.value
FROM user_stats us
JOIN stats s ON s.id = us.stat_id
WHERE us.user_id = $1 AND s.story_id = $2
ORDER BY s.code`

	resetUserStatsQuery = `UPDATE user_stats SET value = 0 WHERE user_id = $1`

	insertChoiceLogQuery = `
INSERT INTO choices_log (id, user_id, from_scene, to_scene, choice_text, cost, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectChoiceLogsQuery = `
SELECT id, user_id, from_scene, to_scene, choice_text, cost, created_at
FROM choices_log
WHERE user_id = $1
ORDER BY created_at, id`
)

func (t *pgTx) UserByTelegramID(ctx context.Context, telegramID string) (*User, error) {
	u := &User{}
	err := t.db.QueryRow(ctx, selectUserByTelegramIDQuery, telegramID).Scan(
		&u.ID, &u.TelegramID, &u.Balance, &u.CreatedAt, &u.LastSeen, &u.LastBonusAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		t.logger.Error("Failed to get user", zap.String("telegramID", telegramID), zap.Error(err))
		return nil, err
	}
	return u, nil
}

func (t *pgTx) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastSeen.IsZero() {
		u.LastSeen = now
	}
	tag, err := t.db.Exec(ctx, insertUserQuery, u.ID, u.TelegramID, u.Balance, u.CreatedAt, u.LastSeen, u.LastBonusAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateUser
		}
		t.logger.Error("Failed to create user", zap.String("telegramID", u.TelegramID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	// ON CONFLICT DO NOTHING keeps the transaction usable for a re-read.
	if tag.RowsAffected() == 0 {
		return ErrDuplicateUser
	}
	return nil
}

func (t *pgTx) UpdateUser(ctx context.Context, u *User) error {
	tag, err := t.db.Exec(ctx, updateUserQuery, u.ID, u.Balance, u.LastSeen, u.LastBonusAt)
	if err != nil {
		t.logger.Error("Failed to update user", zap.Stringer("userID", u.ID), zap.Error(err))
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) SessionByUser(ctx context.Context, userID uuid.UUID) (*Session, error) {
	s := &Session{}
	err := t.db.QueryRow(ctx, selectSessionQuery, userID).Scan(&s.UserID, &s.CurrentSceneID, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		t.logger.Error("Failed to get session", zap.Stringer("userID", userID), zap.Error(err))
		return nil, err
	}
	return s, nil
}

func (t *pgTx) SaveSession(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	if _, err := t.db.Exec(ctx, upsertSessionQuery, s.UserID, s.CurrentSceneID, s.UpdatedAt); err != nil {
		t.logger.Error("Failed to save session", zap.Stringer("userID", s.UserID), zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (t *pgTx) FindStat(ctx context.Context, code, storyID string) (game.Stat, bool, error) {
	var st game.Stat
	err := t.db.QueryRow(ctx, selectStatQuery, code, storyID).Scan(&st.ID, &st.Code, &st.Name, &st.StoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Stat{}, false, nil
		}
		return game.Stat{}, false, fmt.Errorf("failed to find stat: %w", err)
	}
	return st, true, nil
}

func (t *pgTx) EnsureStat(ctx context.Context, s game.Stat) (game.Stat, bool, error) {
	err := t.db.QueryRow(ctx, insertStatQuery, s.Code, s.Name, s.StoryID).Scan(&s.ID)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return game.Stat{}, false, fmt.Errorf("failed to insert stat: %w", err)
	}
	existing, ok, err := t.FindStat(ctx, s.Code, s.StoryID)
	if err != nil {
		return game.Stat{}, false, err
	}
	if !ok {
		return game.Stat{}, false, fmt.Errorf("stat %q vanished after conflict", s.Code)
	}
	return existing, false, nil
}

func (t *pgTx) IncrementUserStat(ctx context.Context, userID uuid.UUID, statID int64, delta int) (int, error) {
	var v int
	if err := t.db.QueryRow(ctx, incrementUserStatQuery, userID, statID, delta).Scan(&v); err != nil {
		t.logger.Error("Failed to increment user stat", zap.Stringer("userID", userID), zap.Int64("statID", statID), zap.Error(err))
		return 0, fmt.Errorf("failed to increment user stat: %w", err)
	}
	return v, nil
}

func (t *pgTx) UserStats(ctx context.Context, userID uuid.UUID, storyID string) ([]UserStat, error) {
	rows, err := t.db.Query(ctx, selectUserStatsQuery, userID, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user stats: %w", err)
	}
	defer rows.Close()

	var out []UserStat
	for rows.Next() {
		var us UserStat
		if err := rows.Scan(&us.UserID, &us.StatID, &us.Code, &us.Value); err != nil {
			return nil, fmt.Errorf("failed to scan user stat: %w", err)
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func (t *pgTx) ResetUserStats(ctx context.Context, userID uuid.UUID) error {
	if _, err := t.db.Exec(ctx, resetUserStatsQuery, userID); err != nil {
		return fmt.Errorf("failed to reset user stats: %w", err)
	}
	return nil
}

func (t *pgTx) LogChoice(ctx context.Context, c *ChoiceLog) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.Exec(ctx, insertChoiceLogQuery, c.ID, c.UserID, c.FromScene, c.ToScene, c.ChoiceText, c.Cost, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log choice: %w", err)
	}
	return nil
}

func (t *pgTx) ChoiceLogs(ctx context.Context, userID uuid.UUID) ([]ChoiceLog, error) {
	rows, err := t.db.Query(ctx, selectChoiceLogsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query choice log: %w", err)
	}
	defer rows.Close()

	var out []ChoiceLog
	for rows.Next() {
		var c ChoiceLog
		if err := rows.Scan(&c.ID, &c.UserID, &c.FromScene, &c.ToScene, &c.ChoiceText, &c.Cost, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan choice log: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
