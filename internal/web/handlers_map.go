package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"novel/internal/mapgen"
)

// GET /map?telegram_id=...
func (s *Server) handleMap(c *gin.Context) {
	telegramID := c.Query("telegram_id")
	if telegramID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "telegram_id is required"})
		return
	}
	journey, err := s.Service.Journey(c.Request.Context(), telegramID)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	title := s.Title
	if title == "" {
		title = s.Service.StoryID()
	}
	pdf, err := mapgen.Generate(s.Service.Graph(), journey.Visited, journey.Current, title, s.AssetsDir)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="story-map.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
