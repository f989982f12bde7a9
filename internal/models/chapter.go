package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ChapterKind discriminates the chapter variants.
type ChapterKind string

const (
	KindLinear    ChapterKind = "linear"
	KindChallenge ChapterKind = "challenge"
	KindBranching ChapterKind = "branching"
)

// Chapter is the unit of narrative content. The shared fields are common to
// all variants; kind-specific data lives in the Challenge / Branching payloads
// and exactly one of them is non-nil for non-linear chapters. Chapters are
// immutable once loaded into the registry.
type Chapter struct {
	ID          ChapterID
	Title       string
	Description string
	Kind        ChapterKind
	Phase       string
	Background  string

	Dialogues []DialogueStep
	// Choices is the chapter-level fallback choice set, used when the current
	// dialogue step carries no choices of its own.
	Choices []Choice

	// NextChapter is the plain fallthrough transition, kept in its authored
	// form because it may lack a year prefix.
	NextChapter     string
	ConditionalNext *ConditionalNext

	CompletionExp  int
	CompletionTUSD int

	Challenge *ChallengeSpec
	Branching *BranchingSpec
}

// ChallengeSpec carries the challenge-chapter payload: a success/failure
// outcome with distinct reward and penalty tables.
type ChallengeSpec struct {
	ChallengeType       string              `json:"challenge_type"`
	Difficulty          int                 `json:"difficulty"`
	Rewards             Rewards             `json:"rewards"`
	FailureConsequences FailureConsequences `json:"failure_consequences"`
}

// BranchingSpec carries the branching-chapter payload: scene-local choice
// trees and the ordered rule table resolving the next chapter.
type BranchingSpec struct {
	Branches []Branch `json:"branches"`
	Scenes   []Scene  `json:"scenes"`
}

// DialogueStep is a single beat of authored dialogue.
type DialogueStep struct {
	NPC     string   `json:"npc"`
	Text    string   `json:"text"`
	Choices []Choice `json:"choices,omitempty"`
}

// Scene is a named sub-graph of a branching chapter. Choices inside a scene
// may jump to another scene by id.
type Scene struct {
	ID        string         `json:"id"`
	Dialogues []DialogueStep `json:"dialogues"`
	Choices   []Choice       `json:"choices"`
}

// Choice is a single player-facing option.
type Choice struct {
	Text string `json:"text"`
	// Key overrides the recorded choice key; when empty the engine derives one
	// from the cursor position.
	Key          string            `json:"key,omitempty"`
	Effects      *ChoiceEffects    `json:"effects,omitempty"`
	NextScene    string            `json:"next_scene,omitempty"`
	NextDialogue *int              `json:"next_dialogue,omitempty"`
	NextChapter  string            `json:"next_chapter,omitempty"`
	Requirements map[string]int    `json:"requirements,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ChoiceEffects are the deltas a choice applies to the player record.
type ChoiceEffects struct {
	Attributes    map[string]int `json:"attributes,omitempty"`
	Factions      map[string]int `json:"factions,omitempty"`
	Relationships map[string]int `json:"relationships,omitempty"`
}

// Branch maps a predicate set onto a next-chapter identifier. Branches are
// evaluated in declaration order; the first branch whose conditions are all
// satisfied wins.
type Branch struct {
	Conditions  []Condition
	NextChapter string
}

// branchDoc is the authored on-disk form: conditions are a JSON object.
type branchDoc struct {
	Conditions  map[string]json.RawMessage `json:"conditions"`
	NextChapter string                     `json:"next_chapter"`
}

// UnmarshalJSON parses a branch from its authored form. Condition keys are
// sorted so the parsed slice is deterministic; ordering inside a single branch
// has no semantic weight since conditions are conjunctive.
func (b *Branch) UnmarshalJSON(data []byte) error {
	var doc branchDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	keys := make([]string, 0, len(doc.Conditions))
	for k := range doc.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.Conditions = b.Conditions[:0]
	for _, k := range keys {
		b.Conditions = append(b.Conditions, ParseCondition(k, doc.Conditions[k]))
	}
	b.NextChapter = doc.NextChapter
	return nil
}

// ConditionalNext is the pair of keyed next-chapter tables consulted before
// branches. Each table may carry a "default" entry.
type ConditionalNext struct {
	ByChallengeResult map[string]string `json:"challenge_result,omitempty"`
	ByClub            map[string]string `json:"club,omitempty"`
}

// Rewards is a challenge chapter's success table. Each kind is applied exactly
// once per completion.
type Rewards struct {
	Exp             int      `json:"exp"`
	TUSD            int      `json:"tusd"`
	HierarchyPoints int      `json:"hierarchy_points"`
	SpecialItems    []string `json:"special_items,omitempty"`
	UnlockSecrets   []string `json:"unlock_secrets,omitempty"`
}

// FailureConsequences is a challenge chapter's penalty table. Losses floor at
// zero when applied.
type FailureConsequences struct {
	ExpLoss             int    `json:"exp_loss"`
	TUSDLoss            int    `json:"tusd_loss"`
	HierarchyPointsLoss int    `json:"hierarchy_points_loss"`
	BlockArc            string `json:"block_arc,omitempty"`
	UnlockSecret        string `json:"unlock_secret,omitempty"`
}

// chapterDoc is the flat authored chapter file format. The loader decodes it
// and folds kind-specific fields into the variant payloads.
type chapterDoc struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Type            string               `json:"type"`
	Phase           string               `json:"phase"`
	Background      string               `json:"background"`
	Dialogues       []DialogueStep       `json:"dialogues"`
	Choices         []Choice             `json:"choices"`
	NextChapter     string               `json:"next_chapter"`
	ConditionalNext *ConditionalNext     `json:"conditional_next_chapter"`
	CompletionExp   int                  `json:"completion_exp"`
	CompletionTUSD  int                  `json:"completion_tusd"`
	ChallengeType   string               `json:"challenge_type"`
	Difficulty      int                  `json:"difficulty"`
	Rewards         *Rewards             `json:"rewards"`
	Failure         *FailureConsequences `json:"failure_consequences"`
	Branches        []Branch             `json:"branches"`
	Scenes          []Scene              `json:"scenes"`
}

// UnmarshalJSON decodes the flat authored document into the tagged-variant
// form. An unrecognized or empty type defaults to linear.
func (c *Chapter) UnmarshalJSON(data []byte) error {
	var doc chapterDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	id, err := ParseChapterID(doc.ID)
	if err != nil {
		return fmt.Errorf("chapter %q: %w", doc.ID, err)
	}
	*c = Chapter{
		ID:              id,
		Title:           doc.Title,
		Description:     doc.Description,
		Kind:            KindLinear,
		Phase:           doc.Phase,
		Background:      doc.Background,
		Dialogues:       doc.Dialogues,
		Choices:         doc.Choices,
		NextChapter:     doc.NextChapter,
		ConditionalNext: doc.ConditionalNext,
		CompletionExp:   doc.CompletionExp,
		CompletionTUSD:  doc.CompletionTUSD,
	}
	switch ChapterKind(doc.Type) {
	case KindChallenge:
		c.Kind = KindChallenge
		spec := &ChallengeSpec{ChallengeType: doc.ChallengeType, Difficulty: doc.Difficulty}
		if doc.Rewards != nil {
			spec.Rewards = *doc.Rewards
		}
		if doc.Failure != nil {
			spec.FailureConsequences = *doc.Failure
		}
		c.Challenge = spec
	case KindBranching:
		c.Kind = KindBranching
		c.Branching = &BranchingSpec{Branches: doc.Branches, Scenes: doc.Scenes}
	}
	return nil
}

// SceneByID returns the scene with the given id, or nil.
func (c *Chapter) SceneByID(id string) *Scene {
	if c.Branching == nil {
		return nil
	}
	for i := range c.Branching.Scenes {
		if c.Branching.Scenes[i].ID == id {
			return &c.Branching.Scenes[i]
		}
	}
	return nil
}

// HasScenes reports whether the chapter navigates scene-by-scene rather than
// dialogue-by-dialogue.
func (c *Chapter) HasScenes() bool {
	return c.Branching != nil && len(c.Branching.Scenes) > 0
}
