package game

// DefaultCharacterPosition is where a character is displayed when the markup
// does not say otherwise.
const DefaultCharacterPosition = "center"

// Scene is a compiled passage: prose with directives removed plus the
// directives themselves.
type Scene struct {
	ID         string     `json:"scene_id" yaml:"scene_id"`
	Text       string     `json:"text" yaml:"text"`
	Autonext   string     `json:"autonext,omitempty" yaml:"autonext,omitempty"`
	Background string     `json:"background,omitempty" yaml:"background,omitempty"`
	Character  *Character `json:"character,omitempty" yaml:"character,omitempty"`
	Choices    []Choice   `json:"choices" yaml:"choices"`
}

// Character describes the portrait shown with a scene.
type Character struct {
	Image    string `json:"image" yaml:"image"`
	Name     string `json:"name" yaml:"name"`
	Position string `json:"position" yaml:"position"`
}

// Choice is a player action offered by a scene. Target is not required to
// exist in the graph; that is checked when the choice is taken.
type Choice struct {
	Text   string `json:"text" yaml:"text"`
	Target string `json:"target" yaml:"target"`
	Cost   *int   `json:"cost,omitempty" yaml:"cost,omitempty"`
	Stat   string `json:"stat,omitempty" yaml:"stat,omitempty"`
}

// HasCost reports whether the choice carries a price.
func (c Choice) HasCost() bool { return c.Cost != nil }

// CostValue returns the price of the choice, 0 when it has none.
func (c Choice) CostValue() int {
	if c.Cost == nil {
		return 0
	}
	return *c.Cost
}

// Stat is a registered statistic scoped to a story.
type Stat struct {
	ID      int64  `json:"id" yaml:"id"`
	Code    string `json:"code" yaml:"code"`
	Name    string `json:"name" yaml:"name"`
	StoryID string `json:"story_id" yaml:"story_id"`
}

// Effect is a stat increment produced by a transition. The caller persists it.
type Effect struct {
	StatID   int64  `json:"stat_id"`
	StatCode string `json:"stat"`
	Delta    int    `json:"delta"`
}

// Story binds a compiled graph to the id that scopes its stats and to the
// scene new players begin at.
type Story struct {
	ID    string
	Start string
	Graph Graph
}
