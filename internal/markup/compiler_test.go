package markup

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel/internal/game"
)

func intPtr(v int) *int { return &v }

func TestCompilePassage_EndToEndExample(t *testing.T) {
	sc := CompilePassage(Passage{Name: "start", Text: "Hello. [[Go->room2, cost:1, stat:rebel]] -> room3"})

	assert.Equal(t, "start", sc.ID)
	assert.Equal(t, "Hello.", sc.Text)
	assert.Equal(t, "room3", sc.Autonext)
	require.Len(t, sc.Choices, 1)
	ch := sc.Choices[0]
	assert.Equal(t, "Go", ch.Text)
	assert.Equal(t, "room2", ch.Target)
	require.NotNil(t, ch.Cost)
	assert.Equal(t, 1, *ch.Cost)
	assert.Equal(t, "rebel", ch.Stat)
}

func TestCompilePassage_AllDirectives(t *testing.T) {
	text := `[background: club_night.png ]
[character:anna_smile.png, name: Anna]
Anna waves at you from the bar.
[[ Walk over -> bar ]]
[[Ignore her->door, stat:quiet]]
-> bar`
	sc := CompilePassage(Passage{Name: "scene1", Text: text})

	assert.Equal(t, "club_night.png", sc.Background)
	require.NotNil(t, sc.Character)
	assert.Equal(t, game.Character{Image: "anna_smile.png", Name: "Anna", Position: "center"}, *sc.Character)
	assert.Equal(t, "bar", sc.Autonext)
	assert.Equal(t, []game.Choice{
		{Text: "Walk over", Target: "bar"},
		{Text: "Ignore her", Target: "door", Stat: "quiet"},
	}, sc.Choices)
	assert.Equal(t, "Anna waves at you from the bar.", sc.Text)
}

func TestCompilePassage_NoDirectives(t *testing.T) {
	sc := CompilePassage(Passage{Name: "end", Text: "  The end.  "})

	assert.Equal(t, "The end.", sc.Text)
	assert.Empty(t, sc.Autonext)
	assert.Empty(t, sc.Background)
	assert.Nil(t, sc.Character)
	assert.NotNil(t, sc.Choices)
	assert.Empty(t, sc.Choices)
}

func TestCompilePassage_ChoiceOrderPreserved(t *testing.T) {
	sc := CompilePassage(Passage{Name: "p", Text: "[[A->x]] [[B->y]]"})

	require.Len(t, sc.Choices, 2)
	assert.Equal(t, "A", sc.Choices[0].Text)
	assert.Equal(t, "B", sc.Choices[1].Text)
}

func TestCompilePassage_FirstDirectiveWins(t *testing.T) {
	text := "[background:a.png] [background:b.png]\n-> one\n-> two\n[character:x.png, name:X][character:y.png, name:Y]"
	sc := CompilePassage(Passage{Name: "p", Text: text})

	assert.Equal(t, "a.png", sc.Background)
	assert.Equal(t, "one", sc.Autonext)
	require.NotNil(t, sc.Character)
	assert.Equal(t, "X", sc.Character.Name)
	assert.Empty(t, sc.Text)
}

func TestCompilePassage_StripsDirectives(t *testing.T) {
	texts := []string{
		"Intro [[Go->a, cost:3]] middle [background:bg.png] end\n-> a",
		"[character:c.png, name:C]\n[[One -> a, stat:rebel]]\n[[Two -> b, cost:0, stat:quiet]]",
		"Before\n  ->  next_scene  \nAfter",
	}
	for _, text := range texts {
		sc := CompilePassage(Passage{Name: "p", Text: text})
		for _, marker := range []string{"[[", "]]", "[background:", "[character:", "->"} {
			assert.NotContains(t, sc.Text, marker, "text %q", text)
		}
	}
}

func TestCompilePassage_AutonextOwnLine(t *testing.T) {
	sc := CompilePassage(Passage{Name: "p", Text: "Before\n  ->  next_scene  \nAfter"})

	assert.Equal(t, "next_scene", sc.Autonext)
	assert.Equal(t, "Before\n\nAfter", sc.Text)
}

func TestCompilePassage_AutonextCRLF(t *testing.T) {
	sc := CompilePassage(Passage{Name: "p", Text: "Hi.\r\n-> room3\r\nBye."})

	assert.Equal(t, "room3", sc.Autonext)
	assert.NotContains(t, sc.Text, "->")
	assert.Contains(t, sc.Text, "Hi.")
	assert.Contains(t, sc.Text, "Bye.")
}

func TestCompilePassage_CyrillicIdentifiers(t *testing.T) {
	sc := CompilePassage(Passage{Name: "начало", Text: "Привет.\n-> сцена2"})

	assert.Equal(t, "сцена2", sc.Autonext)
	assert.Equal(t, "Привет.", sc.Text)

	sc = CompilePassage(Passage{Name: "p", Text: "Hi [[Go -> room2, stat:бунт]] [[Пойти -> комната_3, cost:2, stat:тихий]]"})

	assert.Equal(t, []game.Choice{
		{Text: "Go", Target: "room2", Stat: "бунт"},
		{Text: "Пойти", Target: "комната_3", Cost: intPtr(2), Stat: "тихий"},
	}, sc.Choices)
	assert.Equal(t, "Hi", sc.Text)
}

func TestCompilePassage_ArrowInsideChoiceIsNotAutonext(t *testing.T) {
	sc := CompilePassage(Passage{Name: "p", Text: "Pick one.\n[[Back -> start]]"})

	assert.Empty(t, sc.Autonext)
	require.Len(t, sc.Choices, 1)
	assert.Equal(t, "start", sc.Choices[0].Target)
}

func TestCompilePassage_MalformedDegrades(t *testing.T) {
	cases := []struct {
		name string
		text string
		chk  func(t *testing.T, sc *game.Scene)
	}{
		{
			name: "character without name",
			text: "[character:lonely.png] hi",
			chk: func(t *testing.T, sc *game.Scene) {
				assert.Nil(t, sc.Character)
			},
		},
		{
			name: "autonext with bad id",
			text: "hi\n-> not valid",
			chk: func(t *testing.T, sc *game.Scene) {
				assert.Empty(t, sc.Autonext)
			},
		},
		{
			name: "choice without arrow",
			text: "[[Just a link]] text",
			chk: func(t *testing.T, sc *game.Scene) {
				assert.Empty(t, sc.Choices)
			},
		},
		{
			name: "empty background",
			text: "[background:] text",
			chk: func(t *testing.T, sc *game.Scene) {
				assert.Empty(t, sc.Background)
				assert.Equal(t, "text", sc.Text)
			},
		},
		{
			name: "cost overflow",
			text: "[[Go->a, cost:99999999999999999999999]]",
			chk: func(t *testing.T, sc *game.Scene) {
				require.Len(t, sc.Choices, 1)
				assert.Nil(t, sc.Choices[0].Cost)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.chk(t, CompilePassage(Passage{Name: "p", Text: tc.text}))
		})
	}
}

func TestCompile_Graph(t *testing.T) {
	g, rep, err := Compile([]Passage{
		{Name: "start", Text: "Hello. [[Go->room2]]"},
		{Name: "room2", Text: "Room two."},
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scenes)
	assert.Empty(t, rep.Duplicates)
	assert.ElementsMatch(t, []string{"room2", "start"}, g.IDs())
}

func TestCompile_DuplicateNamesLenient(t *testing.T) {
	g, rep, err := Compile([]Passage{
		{Name: "a", Text: "first"},
		{Name: "a", Text: "second"},
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rep.Duplicates)
	assert.Equal(t, "second", g["a"].Text)
}

func TestCompile_DuplicateNamesStrict(t *testing.T) {
	_, rep, err := Compile([]Passage{
		{Name: "a", Text: "first"},
		{Name: "a", Text: "second"},
	}, Options{Strict: true})

	var dup *DuplicatePassageError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"a"}, dup.Names)
	assert.Equal(t, rep.Duplicates, dup.Names)
}

func TestCompile_DanglingTargetsAllowed(t *testing.T) {
	g, _, err := Compile([]Passage{{Name: "a", Text: "[[Go->nowhere]]"}}, Options{})

	require.NoError(t, err)
	assert.Equal(t, []game.DanglingRef{{From: "a", Target: "nowhere"}}, g.DanglingTargets())
}

func TestCompile_LargeStoryNeverFails(t *testing.T) {
	var passages []Passage
	for i := 0; i < 50; i++ {
		passages = append(passages, Passage{Name: strings.Repeat("x", i+1), Text: "[[[[->]]]] [background: -> [character:, name:]"})
	}
	_, rep, err := Compile(passages, Options{})
	require.NoError(t, err)
	assert.Equal(t, 50, rep.Scenes)
	assert.Empty(t, rep.Recovered)
}
