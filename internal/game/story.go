package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the on-disk encoding of a compiled graph.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the cache format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported graph cache extension: %q", filepath.Ext(path))
	}
}

// NewStory checks that start names a scene of g.
func NewStory(id, start string, g Graph) (*Story, error) {
	if _, ok := g.Scene(start); !ok {
		return nil, &SceneError{SceneID: start, Role: RoleStart}
	}
	return &Story{ID: id, Start: start, Graph: g}, nil
}

// DecodeGraph reads a graph cache. Scene ids missing from the entries are
// filled in from their keys and nil choice lists become empty ones.
func DecodeGraph(r io.Reader, f Format) (Graph, error) {
	var g Graph
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&g); err != nil {
			return nil, fmt.Errorf("decode graph json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&g); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode graph yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown graph format %q", f)
	}
	if g == nil {
		g = Graph{}
	}
	for id, s := range g {
		if s == nil {
			delete(g, id)
			continue
		}
		if s.ID == "" {
			s.ID = id
		}
		if s.Choices == nil {
			s.Choices = []Choice{}
		}
	}
	return g, nil
}

// EncodeGraph writes g in the given format.
func EncodeGraph(w io.Writer, g Graph, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown graph format %q", f)
	}
}

// LoadGraph loads a graph cache file; the format follows the extension.
func LoadGraph(path string) (Graph, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	cleanPath := filepath.Clean(path)
	b, err := os.ReadFile(cleanPath) //nolint:gosec // path is cleaned and validated
	if err != nil {
		return nil, err
	}
	return DecodeGraph(bytes.NewReader(b), f)
}

// SaveGraph writes g to path in the format implied by its extension.
func SaveGraph(path string, g Graph) error {
	f, err := FormatForPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := EncodeGraph(&buf, g, f); err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), buf.Bytes(), 0o644) //nolint:gosec // cache files are world readable
}
