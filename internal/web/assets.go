package web

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const assetCacheControl = "public, max-age=3600"

// assetKinds maps the URL segment to the subdirectory of AssetsDir.
var assetKinds = map[string]string{
	"backgrounds": "backgrounds",
	"characters":  "characters",
}

// imageExtensions are tried when the scene refers to an image without one.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// assetCandidates validates kind and filename and returns the paths to try.
func (s *Server) assetCandidates(kind, filename string) ([]string, bool) {
	subdir, ok := assetKinds[kind]
	if !ok || s.AssetsDir == "" {
		return nil, false
	}

	safeFilename := filepath.Clean(filename)
	if safeFilename == "" || safeFilename == "." || strings.Contains(safeFilename, "..") ||
		filepath.IsAbs(safeFilename) || strings.ContainsAny(safeFilename, `/\`) {
		return nil, false
	}

	baseDir := filepath.Join(s.AssetsDir, subdir)
	resolved := filepath.Join(baseDir, safeFilename)
	rel, err := filepath.Rel(baseDir, resolved)
	if err != nil || strings.Contains(rel, "..") {
		return nil, false
	}

	candidates := []string{resolved}
	if filepath.Ext(safeFilename) == "" {
		for _, ext := range imageExtensions {
			candidates = append(candidates, resolved+ext)
		}
	}
	return candidates, true
}

// GET /assets/:kind/:file serves background and character images.
func (s *Server) handleAsset(c *gin.Context) {
	candidates, ok := s.assetCandidates(c.Param("kind"), c.Param("file"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	for _, p := range candidates {
		f, err := os.Open(p) // #nosec G304 -- p is under the validated asset dir
		if err != nil {
			continue
		}
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			_ = f.Close()
			continue
		}
		defer f.Close()
		if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p))); ct != "" {
			c.Header("Content-Type", ct)
		}
		c.Header("Cache-Control", assetCacheControl)
		http.ServeContent(c.Writer, c.Request, filepath.Base(p), info.ModTime(), f)
		return
	}
	c.Status(http.StatusNotFound)
}
