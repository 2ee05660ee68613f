package markup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// TwineStory is the passage data of a Twine 2 HTML export.
type TwineStory struct {
	Name string
	// StartPassage is the name of the passage the story data marks as
	// start node, empty when the export does not say.
	StartPassage string
	Passages     []Passage
}

// ReadTwineHTML collects the tw-passagedata elements of an export in document
// order. Entities in passage text are decoded and the text is trimmed.
func ReadTwineHTML(r io.Reader) (*TwineStory, error) {
	z := html.NewTokenizer(r)
	story := &TwineStory{}
	var (
		startPID string
		pids     = map[string]string{}
		inside   bool
		cur      Passage
		curPID   string
		buf      strings.Builder
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read twine html: %w", err)
			}
			if inside {
				cur.Text = strings.TrimSpace(buf.String())
				story.Passages = append(story.Passages, cur)
			}
			if startPID != "" {
				story.StartPassage = pids[startPID]
			}
			return story, nil
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "tw-storydata":
				attrs := readAttrs(z, hasAttr)
				story.Name = attrs["name"]
				startPID = attrs["startnode"]
			case "tw-passagedata":
				attrs := readAttrs(z, hasAttr)
				inside = true
				cur = Passage{Name: attrs["name"]}
				curPID = attrs["pid"]
				buf.Reset()
			}
		case html.TextToken:
			if inside {
				buf.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inside && string(name) == "tw-passagedata" {
				cur.Text = strings.TrimSpace(buf.String())
				story.Passages = append(story.Passages, cur)
				if curPID != "" {
					pids[curPID] = cur.Name
				}
				inside = false
			}
		}
	}
}

// LoadTwineHTML reads an export from disk.
func LoadTwineHTML(path string) (*TwineStory, error) {
	f, err := os.Open(filepath.Clean(path)) //nolint:gosec // path is cleaned
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTwineHTML(f)
}

func readAttrs(z *html.Tokenizer, more bool) map[string]string {
	attrs := map[string]string{}
	for more {
		var k, v []byte
		k, v, more = z.TagAttr()
		attrs[string(k)] = string(v)
	}
	return attrs
}
