package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"novel/internal/game"
	"novel/internal/service"
	"novel/internal/session"
	"novel/internal/storage"
)

const (
	testStoryID = "default"
	testPlayer  = "777"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func cost(v int) *int { return &v }

func testGraph() game.Graph {
	return game.Graph{
		"scene1": {
			ID: "scene1", Text: "Hello.", Autonext: "room3", Background: "park",
			Choices: []game.Choice{{Text: "Go", Target: "room2", Cost: cost(1), Stat: "rebel"}},
		},
		"room2": {ID: "room2", Text: "Room two.", Choices: []game.Choice{{Text: "Lost", Target: "void"}}},
		"room3": {ID: "room3", Text: "Room three.", Choices: []game.Choice{}},
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, service.SeedStats(ctx, store, testStoryID, service.DefaultStats, nil))

	story, err := game.NewStory(testStoryID, "scene1", testGraph())
	require.NoError(t, err)
	svc := service.New(store, game.NewEngine(story, nil),
		session.NewMemoryLocker(time.Minute),
		session.NewMemoryStore[service.TransitionResult](time.Minute),
		nil, service.Options{InitialBalance: 10, DailyBonus: 5})

	return &Server{Service: svc, Health: store, AssetsDir: t.TempDir()}, store
}

func doJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.Health = fakePinger{err: errors.New("db down")}
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Routes()
	doJSON(t, h, "/start", map[string]any{"telegram_id": testPlayer})
	doJSON(t, h, "/go_to", map[string]any{"telegram_id": testPlayer, "target_scene_id": "room2"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "novel_transitions_total")
}

func TestPlayFlow(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, "/init_user", map[string]any{"telegram_id": 777})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = doJSON(t, h, "/start", map[string]any{"telegram_id": testPlayer})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"scene_id": "scene1", "balance": float64(10)}, decode(t, rec))

	rec = doJSON(t, h, "/progress", map[string]any{"telegram_id": testPlayer})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "scene1", body["scene_id"])
	assert.Equal(t, "Hello.", body["text"])
	assert.Equal(t, "room3", body["autonext"])
	assert.Equal(t, "park", body["background"])
	assert.Equal(t, float64(10), body["balance"])
	choices := body["choices"].([]any)
	require.Len(t, choices, 1)
	assert.Equal(t, map[string]any{"text": "Go", "target": "room2", "cost": float64(1), "stat": "rebel"}, choices[0])

	rec = doJSON(t, h, "/go_to", map[string]any{"telegram_id": testPlayer, "target_scene_id": "room2", "request_id": "abc"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "room2", body["scene_id"])
	assert.Equal(t, "scene1", body["from_scene_id"])
	effects := body["effects"].([]any)
	require.Len(t, effects, 1)
	assert.Equal(t, "rebel", effects[0].(map[string]any)["stat"])

	// Replaying the same request id does not double count.
	rec = doJSON(t, h, "/go_to", map[string]any{"telegram_id": testPlayer, "target_scene_id": "room2", "request_id": "abc"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, "/stats", map[string]any{"telegram_id": testPlayer})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"stats": map[string]any{"rebel": float64(1)}}, decode(t, rec))

	rec = doJSON(t, h, "/daily_bonus", map[string]any{"telegram_id": testPlayer})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"received": true, "balance": float64(15)}, decode(t, rec))
	rec = doJSON(t, h, "/daily_bonus", map[string]any{"telegram_id": testPlayer})
	assert.Equal(t, map[string]any{"received": false, "balance": float64(15)}, decode(t, rec))

	rec = doJSON(t, h, "/spend", map[string]any{"telegram_id": testPlayer, "amount": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"balance": float64(11)}, decode(t, rec))

	rec = doJSON(t, h, "/reset_progress", map[string]any{"telegram_id": testPlayer})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"scene_id": "scene1", "balance": float64(11)}, decode(t, rec))
}

func TestErrorMapping(t *testing.T) {
	srv, store := testServer(t)
	h := srv.Routes()

	tests := []struct {
		name   string
		setup  func()
		path   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing telegram id", nil, "/progress", map[string]any{}, http.StatusBadRequest, ErrCodeBadRequest},
		{"malformed telegram id", nil, "/progress", map[string]any{"telegram_id": 1.5}, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown user", nil, "/progress", map[string]any{"telegram_id": "nobody"}, http.StatusNotFound, ErrCodeUserNotFound},
		{"no session", func() { doJSON(t, h, "/init_user", map[string]any{"telegram_id": "u1"}) },
			"/progress", map[string]any{"telegram_id": "u1"}, http.StatusNotFound, ErrCodeSessionNotFound},
		{"invalid choice", func() { doJSON(t, h, "/start", map[string]any{"telegram_id": "u2"}) },
			"/go_to", map[string]any{"telegram_id": "u2", "target_scene_id": "room9"}, http.StatusBadRequest, ErrCodeInvalidChoice},
		{"empty target", nil, "/go_to", map[string]any{"telegram_id": "u2"}, http.StatusBadRequest, ErrCodeInvalidChoice},
		{"zero amount", nil, "/spend", map[string]any{"telegram_id": "u2", "amount": 0}, http.StatusBadRequest, ErrCodeInvalidAmount},
		{"insufficient", nil, "/spend", map[string]any{"telegram_id": "u2", "amount": 100}, http.StatusBadRequest, ErrCodeInsufficientBalance},
		{"dangling target", func() {
			doJSON(t, h, "/start", map[string]any{"telegram_id": "u3"})
			doJSON(t, h, "/go_to", map[string]any{"telegram_id": "u3", "target_scene_id": "room2"})
		}, "/go_to", map[string]any{"telegram_id": "u3", "target_scene_id": "void"}, http.StatusInternalServerError, ErrCodeSceneNotFound},
		{"vanished current scene", func() {
			doJSON(t, h, "/start", map[string]any{"telegram_id": "u4"})
			require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				u, err := tx.UserByTelegramID(ctx, "u4")
				if err != nil {
					return err
				}
				return tx.SaveSession(ctx, &storage.Session{UserID: u.ID, CurrentSceneID: "gone"})
			}))
		}, "/progress", map[string]any{"telegram_id": "u4"}, http.StatusInternalServerError, ErrCodeSceneNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			rec := doJSON(t, h, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode(t, rec)["code"])
		})
	}
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

func TestGoTo_Conflict(t *testing.T) {
	store := storage.NewMemoryStore()
	story, err := game.NewStory(testStoryID, "scene1", testGraph())
	require.NoError(t, err)
	svc := service.New(store, game.NewEngine(story, nil), busyLocker{},
		session.NewMemoryStore[service.TransitionResult](0), nil, service.Options{InitialBalance: 10})
	h := (&Server{Service: svc}).Routes()

	doJSON(t, h, "/start", map[string]any{"telegram_id": testPlayer})
	rec := doJSON(t, h, "/go_to", map[string]any{"telegram_id": testPlayer, "target_scene_id": "room2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrCodeTransitionInProgress, decode(t, rec)["code"])
}

func TestMap(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map?telegram_id="+testPlayer, http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doJSON(t, h, "/start", map[string]any{"telegram_id": testPlayer})
	doJSON(t, h, "/go_to", map[string]any{"telegram_id": testPlayer, "target_scene_id": "room3"})

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map?telegram_id="+testPlayer, http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestAssets(t *testing.T) {
	srv, _ := testServer(t)
	bg := filepath.Join(srv.AssetsDir, "backgrounds")
	require.NoError(t, os.MkdirAll(bg, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(bg, "park.png"), []byte("png-bytes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(srv.AssetsDir, "secret.txt"), []byte("x"), 0o600))
	h := srv.Routes()

	tests := []struct {
		path   string
		status int
	}{
		{"/assets/backgrounds/park.png", http.StatusOK},
		{"/assets/backgrounds/park", http.StatusOK},
		{"/assets/backgrounds/missing.png", http.StatusNotFound},
		{"/assets/characters/park.png", http.StatusNotFound},
		{"/assets/audio/park.png", http.StatusNotFound},
		{"/assets/backgrounds/..%2Fsecret.txt", http.StatusNotFound},
		{"/assets/backgrounds/..", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
				assert.Equal(t, assetCacheControl, rec.Header().Get("Cache-Control"))
				assert.Equal(t, "png-bytes", rec.Body.String())
			}
		})
	}
}

func TestGinZapLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv, _ := testServer(t)
	srv.Logger = zap.New(core)
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, 0, logs.Len(), "health checks are not logged")

	req := httptest.NewRequest(http.MethodPost, "/progress", strings.NewReader(`{"telegram_id":"nobody"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, "req-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))

	entries := logs.FilterMessage("Client error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, int64(http.StatusNotFound), entries[0].ContextMap()["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/backgrounds/none.png", http.NoBody))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestTelegramID_Unmarshal(t *testing.T) {
	var req userRequest
	require.NoError(t, json.Unmarshal([]byte(`{"telegram_id": 123456789}`), &req))
	assert.Equal(t, TelegramID("123456789"), req.TelegramID)
	require.NoError(t, json.Unmarshal([]byte(`{"telegram_id": "abc"}`), &req))
	assert.Equal(t, TelegramID("abc"), req.TelegramID)
	assert.Error(t, json.Unmarshal([]byte(`{"telegram_id": true}`), &req))
}
