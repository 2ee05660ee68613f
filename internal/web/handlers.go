// Package web exposes the game service over HTTP.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"novel/internal/service"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Service        *service.Service
	Health         Pinger
	Logger         *zap.Logger
	AssetsDir      string
	AllowedOrigins []string
	// Title is printed on the journey map.
	Title string
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(GinZapLogger(s.logger()))
	r.Use(cors.New(s.corsConfig()))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/init_user", s.handleInitUser)
	r.POST("/start", s.handleStart)
	r.POST("/progress", s.handleProgress)
	r.POST("/go_to", s.handleGoTo)
	r.POST("/daily_bonus", s.handleDailyBonus)
	r.POST("/spend", s.handleSpend)
	r.POST("/reset_progress", s.handleResetProgress)
	r.POST("/stats", s.handleStats)

	r.GET("/map", s.handleMap)
	r.GET("/assets/:kind/:file", s.handleAsset)
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	origins := s.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.Health != nil {
		if err := s.Health.Ping(c.Request.Context()); err != nil {
			s.logger().Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// TelegramID accepts both JSON strings and numbers, since bot clients send
// the numeric chat id as is.
type TelegramID string

func (t *TelegramID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = TelegramID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*t = TelegramID(n.String())
	return nil
}

type userRequest struct {
	TelegramID TelegramID `json:"telegram_id" binding:"required"`
}

type goToRequest struct {
	TelegramID    TelegramID `json:"telegram_id" binding:"required"`
	TargetSceneID string     `json:"target_scene_id"`
	RequestID     string     `json:"request_id"`
}

type spendRequest struct {
	TelegramID TelegramID `json:"telegram_id" binding:"required"`
	Amount     int        `json:"amount"`
}

// bindJSON binds the body into req or writes a 400 and returns false.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleInitUser(c *gin.Context) {
	var req userRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.Service.InitUser(c.Request.Context(), string(req.TelegramID)); err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStart(c *gin.Context) {
	var req userRequest
	if !bindJSON(c, &req) {
		return
	}
	pos, err := s.Service.Start(c.Request.Context(), string(req.TelegramID))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleProgress(c *gin.Context) {
	var req userRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := s.Service.Progress(c.Request.Context(), string(req.TelegramID))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleGoTo(c *gin.Context) {
	var req goToRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.Service.GoTo(c.Request.Context(), service.GoToRequest{
		TelegramID:    string(req.TelegramID),
		TargetSceneID: req.TargetSceneID,
		RequestID:     req.RequestID,
	})
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDailyBonus(c *gin.Context) {
	var req userRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.Service.DailyBonus(c.Request.Context(), string(req.TelegramID))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSpend(c *gin.Context) {
	var req spendRequest
	if !bindJSON(c, &req) {
		return
	}
	balance, err := s.Service.Spend(c.Request.Context(), string(req.TelegramID), req.Amount)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) handleResetProgress(c *gin.Context) {
	var req userRequest
	if !bindJSON(c, &req) {
		return
	}
	pos, err := s.Service.ResetProgress(c.Request.Context(), string(req.TelegramID))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleStats(c *gin.Context) {
	var req userRequest
	if !bindJSON(c, &req) {
		return
	}
	stats, err := s.Service.Stats(c.Request.Context(), string(req.TelegramID))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
