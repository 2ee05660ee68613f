// Package markup compiles authored story passages into a scene graph.
//
// A passage is free text with a handful of non-nesting directives:
//
//	-> scene_id                                  auto-advance (own line, or trailing a line)
//	[background:forest.png]                      background asset
//	[character:anna.png, name:Anna]              character portrait
//	[[Label -> target, cost:2, stat:rebel]]      choice, cost and stat optional
//
// Each directive kind has its own scanner. The scanners run in a fixed order,
// each one recording what it found on the scene and removing its matches from
// the prose before the next one runs. Malformed directives are left alone and
// the corresponding scene field stays unset; compiling never fails because of
// a single passage.
package markup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"novel/internal/game"
)

// Passage is one named block of authored text.
type Passage struct {
	Name string
	Text string
}

// Options tune Compile.
type Options struct {
	// Strict turns duplicate passage names into an error instead of letting
	// the later passage replace the earlier one.
	Strict bool
}

// Report describes what Compile noticed while building the graph.
type Report struct {
	Scenes     int
	Duplicates []string
	// Recovered lists passages where a scanner panicked; the rest of the
	// passage was still compiled.
	Recovered []string
}

// DuplicatePassageError is returned in strict mode.
type DuplicatePassageError struct {
	Names []string
}

func (e *DuplicatePassageError) Error() string {
	return fmt.Sprintf("duplicate passage names: %s", strings.Join(e.Names, ", "))
}

// Identifiers are Unicode words: letters, digits and underscore in any script.
var (
	autonextRe   = regexp.MustCompile(`(?m)(?:^|[ \t]+)->[ \t]*([\p{L}\p{N}_]+)[ \t\r]*$`)
	backgroundRe = regexp.MustCompile(`\[background:(.*?)\]`)
	characterRe  = regexp.MustCompile(`\[character:(.*?),\s*name:(.*?)\]`)
	choiceRe     = regexp.MustCompile(`\[\[(.*?)->(.*?)(?:,\s*cost:(\d+))?(?:,\s*stat:([\p{L}\p{N}_]+))?\]\]`)
)

// scanner extracts one directive kind into sc and returns text without it.
type scanner struct {
	name string
	scan func(text string, sc *game.Scene) string
}

// pipeline order only affects leftover whitespace; the directive syntaxes do
// not overlap.
var pipeline = []scanner{
	{"autonext", scanAutonext},
	{"background", scanBackground},
	{"character", scanCharacter},
	{"choices", scanChoices},
}

// Compile builds a graph from passages in order. A later passage with an
// already seen name replaces the earlier one unless opts.Strict is set.
func Compile(passages []Passage, opts Options) (game.Graph, Report, error) {
	g := make(game.Graph, len(passages))
	var rep Report
	for _, p := range passages {
		sc, recovered := compilePassage(p)
		if recovered {
			rep.Recovered = append(rep.Recovered, p.Name)
		}
		if _, dup := g[p.Name]; dup {
			rep.Duplicates = append(rep.Duplicates, p.Name)
		}
		g[p.Name] = sc
	}
	rep.Scenes = len(g)
	if opts.Strict && len(rep.Duplicates) > 0 {
		return nil, rep, &DuplicatePassageError{Names: rep.Duplicates}
	}
	return g, rep, nil
}

// CompilePassage turns a single passage into a scene.
func CompilePassage(p Passage) *game.Scene {
	sc, _ := compilePassage(p)
	return sc
}

func compilePassage(p Passage) (*game.Scene, bool) {
	sc := &game.Scene{ID: p.Name, Choices: []game.Choice{}}
	text := strings.TrimSpace(p.Text)
	recovered := false
	for _, s := range pipeline {
		var ok bool
		text, ok = runScanner(s, text, sc)
		if !ok {
			recovered = true
		}
	}
	sc.Text = strings.TrimSpace(text)
	return sc, recovered
}

func runScanner(s scanner, text string, sc *game.Scene) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = text, false
		}
	}()
	return s.scan(text, sc), true
}

// scanAutonext honours the first "-> id" and strips all of them.
func scanAutonext(text string, sc *game.Scene) string {
	m := autonextRe.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	sc.Autonext = m[1]
	return autonextRe.ReplaceAllString(text, "")
}

func scanBackground(text string, sc *game.Scene) string {
	m := backgroundRe.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	sc.Background = strings.TrimSpace(m[1])
	return backgroundRe.ReplaceAllString(text, "")
}

func scanCharacter(text string, sc *game.Scene) string {
	m := characterRe.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	image, name := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if image != "" || name != "" {
		sc.Character = &game.Character{
			Image:    image,
			Name:     name,
			Position: game.DefaultCharacterPosition,
		}
	}
	return characterRe.ReplaceAllString(text, "")
}

// scanChoices keeps source order; it is the order offered to the player and
// the order that breaks ties between choices sharing a target.
func scanChoices(text string, sc *game.Scene) string {
	for _, m := range choiceRe.FindAllStringSubmatch(text, -1) {
		ch := game.Choice{
			Text:   strings.TrimSpace(m[1]),
			Target: strings.TrimSpace(m[2]),
			Stat:   m[4],
		}
		if m[3] != "" {
			if n, err := strconv.Atoi(m[3]); err == nil {
				ch.Cost = &n
			}
		}
		sc.Choices = append(sc.Choices, ch)
	}
	return choiceRe.ReplaceAllString(text, "")
}
