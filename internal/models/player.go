package models

import "time"

// progressSchemaVersion is bumped whenever StoryProgress grows new fields.
// Normalize migrates older persisted records forward at load time.
const progressSchemaVersion = 2

// Hierarchy tier breakpoints. Tier is always a pure function of accumulated
// points; it is never stored independently of a points change.
var hierarchyBreakpoints = []int{100, 500, 1000}

// TierForPoints maps an accumulated point total onto a hierarchy tier.
func TierForPoints(points int) int {
	tier := 0
	for _, bp := range hierarchyBreakpoints {
		if points >= bp {
			tier++
		}
	}
	return tier
}

// Player is the persisted per-player document: the attribute/economy totals
// the feature modules mutate, plus the narrative StoryProgress owned by the
// progress manager. The store persists it as a single JSON document.
type Player struct {
	UserID       string         `json:"user_id"`
	Exp          int            `json:"exp"`
	TUSD         int            `json:"tusd"`
	Club         string         `json:"club,omitempty"`
	Phase        string         `json:"phase,omitempty"`
	Attributes   map[string]int `json:"attributes"`
	Companions   []string       `json:"companions,omitempty"`
	Achievements []string       `json:"achievements,omitempty"`
	Story        *StoryProgress `json:"story_progress"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// StoryProgress is the per-player narrative state record. It is mutated only
// through the progress manager and written back as a whole document.
type StoryProgress struct {
	SchemaVersion int `json:"schema_version"`

	CurrentYear          int       `json:"current_year"`
	CurrentChapter       ChapterID `json:"current_chapter"`
	CurrentChapterNumber int       `json:"current_chapter_number"`

	// Cursor inside the current chapter. CurrentScene is set only for
	// branching chapters with authored scenes.
	CurrentDialogueIndex int    `json:"current_dialogue_index"`
	CurrentScene         string `json:"current_scene,omitempty"`

	CurrentChallengeChapter *ChapterID `json:"current_challenge_chapter,omitempty"`

	// CompletedChapters is append-only and duplicate-free.
	CompletedChapters []ChapterID `json:"completed_chapters"`
	// A challenge identifier appears in at most one of the two lists below.
	CompletedChallengeChapters []ChapterID `json:"completed_challenge_chapters"`
	FailedChallengeChapters    []ChapterID `json:"failed_challenge_chapters"`

	BlockedChapterArcs []ChapterID `json:"blocked_chapter_arcs"`

	HierarchyTier   int `json:"hierarchy_tier"`
	HierarchyPoints int `json:"hierarchy_points"`

	SpecialItems           []string       `json:"special_items"`
	CharacterRelationships map[string]int `json:"character_relationships"`
	FactionReputation      map[string]int `json:"faction_reputation"`

	// StoryChoices records picks per chapter: chapter id -> choice key ->
	// recorded value. Later writes to the same key overwrite.
	StoryChoices map[string]map[string]string `json:"story_choices"`

	DiscoveredSecrets []string `json:"discovered_secrets"`
}

// NewPlayer returns a fresh player record with initialized story progress.
func NewPlayer(userID string) *Player {
	p := &Player{
		UserID:     userID,
		Attributes: make(map[string]int),
		Story:      NewStoryProgress(),
		UpdatedAt:  time.Now().UTC(),
	}
	return p
}

// NewStoryProgress returns the default narrative state for first contact with
// the engine.
func NewStoryProgress() *StoryProgress {
	return &StoryProgress{
		SchemaVersion:              progressSchemaVersion,
		CurrentYear:                1,
		CompletedChapters:          []ChapterID{},
		CompletedChallengeChapters: []ChapterID{},
		FailedChallengeChapters:    []ChapterID{},
		BlockedChapterArcs:         []ChapterID{},
		SpecialItems:               []string{},
		CharacterRelationships:     make(map[string]int),
		FactionReputation:          make(map[string]int),
		StoryChoices:               make(map[string]map[string]string),
		DiscoveredSecrets:          []string{},
	}
}

// Normalize fills in fields missing from records persisted under an older
// schema and recomputes derived state. Called on every load.
func (p *Player) Normalize() {
	if p.Attributes == nil {
		p.Attributes = make(map[string]int)
	}
	if p.Story == nil {
		p.Story = NewStoryProgress()
		return
	}
	s := p.Story
	if s.CurrentYear == 0 {
		s.CurrentYear = 1
	}
	if s.CompletedChapters == nil {
		s.CompletedChapters = []ChapterID{}
	}
	if s.CompletedChallengeChapters == nil {
		s.CompletedChallengeChapters = []ChapterID{}
	}
	if s.FailedChallengeChapters == nil {
		s.FailedChallengeChapters = []ChapterID{}
	}
	if s.BlockedChapterArcs == nil {
		s.BlockedChapterArcs = []ChapterID{}
	}
	if s.SpecialItems == nil {
		s.SpecialItems = []string{}
	}
	if s.CharacterRelationships == nil {
		s.CharacterRelationships = make(map[string]int)
	}
	if s.FactionReputation == nil {
		s.FactionReputation = make(map[string]int)
	}
	if s.StoryChoices == nil {
		s.StoryChoices = make(map[string]map[string]string)
	}
	if s.DiscoveredSecrets == nil {
		s.DiscoveredSecrets = []string{}
	}
	// Tier is derived state; recomputing repairs records written before the
	// breakpoints changed.
	s.HierarchyTier = TierForPoints(s.HierarchyPoints)
	s.SchemaVersion = progressSchemaVersion
}

// RecordChoice stores value under the chapter's choice map, creating it on
// first write.
func (s *StoryProgress) RecordChoice(chapter ChapterID, key, value string) {
	if s.StoryChoices == nil {
		s.StoryChoices = make(map[string]map[string]string)
	}
	m, ok := s.StoryChoices[chapter.String()]
	if !ok {
		m = make(map[string]string)
		s.StoryChoices[chapter.String()] = m
	}
	m[key] = value
}

// ChoiceAt returns the recorded choice value for a chapter/key pair.
func (s *StoryProgress) ChoiceAt(chapter ChapterID, key string) (string, bool) {
	m, ok := s.StoryChoices[chapter.String()]
	if !ok {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// AddHierarchyPoints adds delta (floored so the total never goes negative) and
// recomputes the tier from the fixed breakpoints.
func (s *StoryProgress) AddHierarchyPoints(delta int) {
	s.HierarchyPoints += delta
	if s.HierarchyPoints < 0 {
		s.HierarchyPoints = 0
	}
	s.HierarchyTier = TierForPoints(s.HierarchyPoints)
}

// AddSpecialItem appends item if absent.
func (s *StoryProgress) AddSpecialItem(item string) {
	for _, v := range s.SpecialItems {
		if v == item {
			return
		}
	}
	s.SpecialItems = append(s.SpecialItems, item)
}

// AddSecret appends secret if absent.
func (s *StoryProgress) AddSecret(secret string) {
	for _, v := range s.DiscoveredSecrets {
		if v == secret {
			return
		}
	}
	s.DiscoveredSecrets = append(s.DiscoveredSecrets, secret)
}
