package markup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twineExport = `<!DOCTYPE html>
<html><head><title>Private Club</title></head>
<body>
<tw-storydata name="Private Club" startnode="2" format="Harlowe" ifid="ABC">
<style role="stylesheet" id="twine-user-stylesheet" type="text/twine-css"></style>
<tw-passagedata pid="1" name="scene2" tags="" position="100,100">Inside &amp; warm.
[[Order a drink-&gt;bar, cost:2]]</tw-passagedata>
<tw-passagedata pid="2" name="scene1" tags="" position="200,100">
  [background:club.png]
  Hello &quot;stranger&quot;. [[Go in-&gt;scene2, stat:rebel]]
  -&gt; scene2
</tw-passagedata>
<tw-passagedata pid="3" name="bar" tags=""></tw-passagedata>
</tw-storydata>
</body></html>`

func TestReadTwineHTML(t *testing.T) {
	story, err := ReadTwineHTML(strings.NewReader(twineExport))
	require.NoError(t, err)

	assert.Equal(t, "Private Club", story.Name)
	assert.Equal(t, "scene1", story.StartPassage)
	require.Len(t, story.Passages, 3)
	assert.Equal(t, "scene2", story.Passages[0].Name)
	assert.Equal(t, "Inside & warm.\n[[Order a drink->bar, cost:2]]", story.Passages[0].Text)
	assert.Equal(t, "scene1", story.Passages[1].Name)
	assert.True(t, strings.HasPrefix(story.Passages[1].Text, "[background:club.png]"))
	assert.Equal(t, "bar", story.Passages[2].Name)
	assert.Empty(t, story.Passages[2].Text)
}

func TestReadTwineHTML_CompilesToGraph(t *testing.T) {
	story, err := ReadTwineHTML(strings.NewReader(twineExport))
	require.NoError(t, err)

	g, rep, err := Compile(story.Passages, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Scenes)

	s1 := g["scene1"]
	require.NotNil(t, s1)
	assert.Equal(t, "club.png", s1.Background)
	assert.Equal(t, "scene2", s1.Autonext)
	assert.Equal(t, `Hello "stranger".`, s1.Text)
	require.Len(t, s1.Choices, 1)
	assert.Equal(t, "rebel", s1.Choices[0].Stat)

	s2 := g["scene2"]
	require.NotNil(t, s2)
	require.Len(t, s2.Choices, 1)
	assert.Equal(t, 2, s2.Choices[0].CostValue())
	assert.Equal(t, "Inside & warm.", s2.Text)
	assert.Empty(t, g.DanglingTargets())
}

func TestReadTwineHTML_NoPassages(t *testing.T) {
	story, err := ReadTwineHTML(strings.NewReader("<html><body>nothing here</body></html>"))
	require.NoError(t, err)
	assert.Empty(t, story.Passages)
	assert.Empty(t, story.StartPassage)
}

func TestLoadTwineHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.html")
	require.NoError(t, os.WriteFile(path, []byte(twineExport), 0o600))

	story, err := LoadTwineHTML(path)
	require.NoError(t, err)
	assert.Len(t, story.Passages, 3)

	_, err = LoadTwineHTML(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}
