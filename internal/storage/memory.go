package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"novel/internal/game"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. WithTx runs fn against a
// copy of the data and swaps it in on success, so a failed fn leaves no trace.
// Transactions are serialized.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	users      map[uuid.UUID]User
	byTelegram map[string]uuid.UUID
	sessions   map[uuid.UUID]Session
	stats      map[int64]game.Stat
	nextStatID int64
	userStats  map[uuid.UUID]map[int64]int
	choices    map[uuid.UUID][]ChoiceLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		users:      map[uuid.UUID]User{},
		byTelegram: map[string]uuid.UUID{},
		sessions:   map[uuid.UUID]Session{},
		stats:      map[int64]game.Stat{},
		userStats:  map[uuid.UUID]map[int64]int{},
		choices:    map[uuid.UUID][]ChoiceLog{},
	}}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(ctx, &memTx{d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func (d *memData) clone() *memData {
	c := &memData{
		users:      make(map[uuid.UUID]User, len(d.users)),
		byTelegram: make(map[string]uuid.UUID, len(d.byTelegram)),
		sessions:   make(map[uuid.UUID]Session, len(d.sessions)),
		stats:      make(map[int64]game.Stat, len(d.stats)),
		nextStatID: d.nextStatID,
		userStats:  make(map[uuid.UUID]map[int64]int, len(d.userStats)),
		choices:    make(map[uuid.UUID][]ChoiceLog, len(d.choices)),
	}
	for k, v := range d.users {
		if v.LastBonusAt != nil {
			t := *v.LastBonusAt
			v.LastBonusAt = &t
		}
		c.users[k] = v
	}
	for k, v := range d.byTelegram {
		c.byTelegram[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	for k, v := range d.stats {
		c.stats[k] = v
	}
	for k, m := range d.userStats {
		cm := make(map[int64]int, len(m))
		for sk, sv := range m {
			cm[sk] = sv
		}
		c.userStats[k] = cm
	}
	for k, v := range d.choices {
		c.choices[k] = append([]ChoiceLog(nil), v...)
	}
	return c
}

type memTx struct {
	d *memData
}

func (t *memTx) UserByTelegramID(_ context.Context, telegramID string) (*User, error) {
	id, ok := t.d.byTelegram[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	u := t.d.users[id]
	return &u, nil
}

func (t *memTx) CreateUser(_ context.Context, u *User) error {
	if _, exists := t.d.byTelegram[u.TelegramID]; exists {
		return ErrDuplicateUser
	}
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
	t.d.users[u.ID] = *u
	t.d.byTelegram[u.TelegramID] = u.ID
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u *User) error {
	cur, ok := t.d.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Balance = u.Balance
	cur.LastSeen = u.LastSeen
	cur.LastBonusAt = u.LastBonusAt
	t.d.users[u.ID] = cur
	return nil
}

func (t *memTx) SessionByUser(_ context.Context, userID uuid.UUID) (*Session, error) {
	s, ok := t.d.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) SaveSession(_ context.Context, s *Session) error {
	if _, ok := t.d.users[s.UserID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	t.d.sessions[s.UserID] = *s
	return nil
}

func (t *memTx) FindStat(_ context.Context, code, storyID string) (game.Stat, bool, error) {
	for _, st := range t.d.stats {
		if st.Code == code && st.StoryID == storyID {
			return st, true, nil
		}
	}
	return game.Stat{}, false, nil
}

func (t *memTx) EnsureStat(ctx context.Context, s game.Stat) (game.Stat, bool, error) {
	if existing, ok, _ := t.FindStat(ctx, s.Code, s.StoryID); ok {
		return existing, false, nil
	}
	t.d.nextStatID++
	s.ID = t.d.nextStatID
	t.d.stats[s.ID] = s
	return s, true, nil
}

func (t *memTx) IncrementUserStat(_ context.Context, userID uuid.UUID, statID int64, delta int) (int, error) {
	if _, ok := t.d.users[userID]; !ok {
		return 0, ErrNotFound
	}
	if _, ok := t.d.stats[statID]; !ok {
		return 0, ErrNotFound
	}
	m := t.d.userStats[userID]
	if m == nil {
		m = map[int64]int{}
		t.d.userStats[userID] = m
	}
	m[statID] += delta
	return m[statID], nil
}

func (t *memTx) UserStats(_ context.Context, userID uuid.UUID, storyID string) ([]UserStat, error) {
	var out []UserStat
	for statID, v := range t.d.userStats[userID] {
		st := t.d.stats[statID]
		if st.StoryID != storyID {
			continue
		}
		out = append(out, UserStat{UserID: userID, StatID: statID, Code: st.Code, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *memTx) ResetUserStats(_ context.Context, userID uuid.UUID) error {
	for statID := range t.d.userStats[userID] {
		t.d.userStats[userID][statID] = 0
	}
	return nil
}

func (t *memTx) LogChoice(_ context.Context, c *ChoiceLog) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.d.choices[c.UserID] = append(t.d.choices[c.UserID], *c)
	return nil
}

func (t *memTx) ChoiceLogs(_ context.Context, userID uuid.UUID) ([]ChoiceLog, error) {
	return append([]ChoiceLog(nil), t.d.choices[userID]...), nil
}
