package narrative

import (
	"fmt"
	"strconv"

	"narrative-server/internal/models"

	"go.uber.org/zap"
)

// Engine drives the chapter state machine. It is stateless itself: every
// operation takes the chapter content and the player record, mutates the
// record in memory and returns a rendering payload. Persisting the mutated
// record is the caller's job.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a chapter state machine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("NarrativeEngine")}
}

// Start enters the chapter: it initializes progress defaults if absent, makes
// the chapter current, resets the dialogue/scene cursor and returns the first
// position's choices. Re-entering a challenge chapter that is already resolved
// is a no-op flagged through AlreadyCompleted / AlreadyFailed.
func (e *Engine) Start(ch *models.Chapter, p *models.Player) *models.StoryUpdate {
	p.Normalize()
	s := p.Story

	if ch.Challenge != nil {
		if models.ContainsChapterID(s.CompletedChallengeChapters, ch.ID) {
			return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), AlreadyCompleted: true}
		}
		if models.ContainsChapterID(s.FailedChallengeChapters, ch.ID) {
			return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), AlreadyFailed: true}
		}
	}

	s.CurrentChapter = ch.ID
	s.CurrentYear = ch.ID.Year
	s.CurrentChapterNumber = ch.ID.Index
	s.CurrentDialogueIndex = 0
	s.CurrentScene = ""
	if ch.HasScenes() {
		s.CurrentScene = ch.Branching.Scenes[0].ID
	}
	if ch.Challenge != nil {
		id := ch.ID
		s.CurrentChallengeChapter = &id
	}

	update := &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p)}
	update.Finished = cursorExhausted(ch, s)
	return update
}

// Snapshot returns the rendering payload for the player's current position in
// ch without mutating anything. Used to resume an in-progress chapter.
func (e *Engine) Snapshot(ch *models.Chapter, p *models.Player) *models.StoryUpdate {
	p.Normalize()
	return &models.StoryUpdate{
		Player:   p,
		Chapter:  e.chapterData(ch, p),
		Finished: cursorExhausted(ch, p.Story),
	}
}

// ProcessChoice applies the choice at index against the currently active
// choice set. An out-of-range index or unmet requirements reject the call
// without mutating the player record.
func (e *Engine) ProcessChoice(ch *models.Chapter, p *models.Player, index int) (*models.StoryUpdate, error) {
	p.Normalize()
	s := p.Story

	choices, synthesized := activeChoices(ch, s)
	if index < 0 || index >= len(choices) {
		return nil, fmt.Errorf("%w: index %d out of range (%d options)", models.ErrInvalidChoice, index, len(choices))
	}
	choice := choices[index]
	for stat, min := range choice.Requirements {
		if p.Attributes[stat] < min {
			return nil, fmt.Errorf("%w: requires %s >= %d", models.ErrInvalidChoice, stat, min)
		}
	}

	update := &models.StoryUpdate{Player: p}

	if !synthesized {
		applyEffects(choice.Effects, p)
		key := choice.Key
		if key == "" {
			if ch.HasScenes() {
				key = choiceKeyForScene(s.CurrentScene)
			} else {
				key = choiceKeyForDialogue(s.CurrentDialogueIndex)
			}
		}
		s.RecordChoice(ch.ID, key, strconv.Itoa(index))
	}

	switch {
	case choice.NextScene != "" && ch.HasScenes():
		if ch.SceneByID(choice.NextScene) == nil {
			e.logger.Warn("Choice jumps to undeclared scene",
				zap.String("chapterID", ch.ID.String()),
				zap.String("scene", choice.NextScene))
		}
		s.CurrentScene = choice.NextScene
		s.CurrentDialogueIndex = 0
	case choice.NextDialogue != nil:
		s.CurrentDialogueIndex = *choice.NextDialogue
	case choice.NextChapter != "":
		next, err := models.QualifyChapterID(choice.NextChapter, ch.ID.Year)
		if err != nil {
			e.logger.Warn("Choice declares malformed next chapter",
				zap.String("chapterID", ch.ID.String()),
				zap.String("next", choice.NextChapter),
				zap.Error(err))
		} else {
			update.Transition = &next
			update.Finished = true
		}
		s.CurrentDialogueIndex++
	default:
		s.CurrentDialogueIndex++
	}

	update.Chapter = e.chapterData(ch, p)
	if cursorExhausted(ch, s) {
		update.Finished = true
	}
	return update, nil
}

// Complete records the chapter as finished and applies completion payouts.
// Calling it again for the same chapter is a no-op: the completed list never
// grows a duplicate and payouts are never applied twice.
func (e *Engine) Complete(ch *models.Chapter, p *models.Player) *models.StoryUpdate {
	p.Normalize()
	s := p.Story

	if models.ContainsChapterID(s.CompletedChapters, ch.ID) {
		return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), AlreadyCompleted: true}
	}
	if ch.Challenge != nil && models.ContainsChapterID(s.FailedChallengeChapters, ch.ID) {
		// No modeled retry transition: a failed challenge stays failed.
		return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), AlreadyFailed: true}
	}

	s.CompletedChapters = models.AppendChapterID(s.CompletedChapters, ch.ID)
	p.Exp += ch.CompletionExp
	p.TUSD += ch.CompletionTUSD

	if ch.Challenge != nil {
		s.CompletedChallengeChapters = models.AppendChapterID(s.CompletedChallengeChapters, ch.ID)
		s.CurrentChallengeChapter = nil
		e.applyRewards(ch.Challenge.Rewards, p)
	}

	return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), Finished: true}
}

// Fail records a challenge failure and applies the penalty table. Only
// challenge chapters can fail; re-failing or failing a completed challenge is
// a flagged no-op, preserving the mutual exclusion of the two result lists.
func (e *Engine) Fail(ch *models.Chapter, p *models.Player) (*models.StoryUpdate, error) {
	if ch.Challenge == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotChallengeChapter, ch.ID)
	}
	p.Normalize()
	s := p.Story

	if models.ContainsChapterID(s.CompletedChallengeChapters, ch.ID) {
		return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), AlreadyCompleted: true}, nil
	}
	if models.ContainsChapterID(s.FailedChallengeChapters, ch.ID) {
		return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), AlreadyFailed: true}, nil
	}

	s.FailedChallengeChapters = models.AppendChapterID(s.FailedChallengeChapters, ch.ID)
	s.CurrentChallengeChapter = nil
	e.applyFailure(ch, ch.Challenge.FailureConsequences, p)

	return &models.StoryUpdate{Player: p, Chapter: e.chapterData(ch, p), Finished: true}, nil
}

// NextChapter resolves the chapter that follows ch for this player. Rules are
// consulted in order: the challenge-result table, the club table, branching
// rules in declaration order, then the plain next_chapter fallthrough.
// Identifiers lacking a year prefix are qualified with the chapter's year.
func (e *Engine) NextChapter(ch *models.Chapter, p *models.Player) (models.ChapterID, bool) {
	p.Normalize()
	s := p.Story

	if ch.ConditionalNext != nil {
		if len(ch.ConditionalNext.ByChallengeResult) > 0 {
			key := "default"
			switch {
			case models.ContainsChapterID(s.CompletedChallengeChapters, ch.ID):
				key = "success"
			case models.ContainsChapterID(s.FailedChallengeChapters, ch.ID):
				key = "failure"
			}
			if id, ok := e.lookupNext(ch, ch.ConditionalNext.ByChallengeResult, key); ok {
				return id, true
			}
		}
		if len(ch.ConditionalNext.ByClub) > 0 {
			if id, ok := e.lookupNext(ch, ch.ConditionalNext.ByClub, p.Club); ok {
				return id, true
			}
		}
	}

	if ch.Branching != nil {
		for _, branch := range ch.Branching.Branches {
			if branch.NextChapter == "" {
				continue
			}
			if e.branchSatisfied(branch, ch, p) {
				if id, err := models.QualifyChapterID(branch.NextChapter, ch.ID.Year); err == nil {
					return id, true
				}
				e.logger.Warn("Branch declares malformed next chapter",
					zap.String("chapterID", ch.ID.String()),
					zap.String("next", branch.NextChapter))
			}
		}
	}

	if ch.NextChapter != "" {
		if id, err := models.QualifyChapterID(ch.NextChapter, ch.ID.Year); err == nil {
			return id, true
		}
		e.logger.Warn("Chapter declares malformed next chapter",
			zap.String("chapterID", ch.ID.String()),
			zap.String("next", ch.NextChapter))
	}

	return models.ChapterID{}, false
}

// lookupNext resolves a keyed conditional table entry, falling back to the
// table's "default" entry.
func (e *Engine) lookupNext(ch *models.Chapter, table map[string]string, key string) (models.ChapterID, bool) {
	raw, ok := table[key]
	if !ok || raw == "" {
		raw, ok = table["default"]
	}
	if !ok || raw == "" {
		return models.ChapterID{}, false
	}
	id, err := models.QualifyChapterID(raw, ch.ID.Year)
	if err != nil {
		e.logger.Warn("Conditional table declares malformed next chapter",
			zap.String("chapterID", ch.ID.String()),
			zap.String("next", raw))
		return models.ChapterID{}, false
	}
	return id, true
}

// applyRewards applies a challenge success table. An unknown reward kind
// cannot occur here: the table is a closed struct, so each kind is applied
// exactly once per call.
func (e *Engine) applyRewards(r models.Rewards, p *models.Player) {
	p.Exp += r.Exp
	p.TUSD += r.TUSD
	if r.HierarchyPoints != 0 {
		p.Story.AddHierarchyPoints(r.HierarchyPoints)
	}
	for _, item := range r.SpecialItems {
		p.Story.AddSpecialItem(item)
	}
	for _, secret := range r.UnlockSecrets {
		p.Story.AddSecret(secret)
	}
}

// applyFailure applies a challenge penalty table. Currency and experience
// losses floor at zero.
func (e *Engine) applyFailure(ch *models.Chapter, f models.FailureConsequences, p *models.Player) {
	p.Exp -= f.ExpLoss
	if p.Exp < 0 {
		p.Exp = 0
	}
	p.TUSD -= f.TUSDLoss
	if p.TUSD < 0 {
		p.TUSD = 0
	}
	if f.HierarchyPointsLoss != 0 {
		p.Story.AddHierarchyPoints(-f.HierarchyPointsLoss)
	}
	if f.BlockArc != "" {
		if id, err := models.QualifyChapterID(f.BlockArc, ch.ID.Year); err == nil {
			p.Story.BlockedChapterArcs = models.AppendChapterID(p.Story.BlockedChapterArcs, id)
		} else {
			e.logger.Warn("Failure consequence blocks malformed arc id",
				zap.String("chapterID", ch.ID.String()),
				zap.String("arc", f.BlockArc))
		}
	}
	if f.UnlockSecret != "" {
		p.Story.AddSecret(f.UnlockSecret)
	}
}

// applyEffects applies a choice's declared deltas to the player record.
func applyEffects(effects *models.ChoiceEffects, p *models.Player) {
	if effects == nil {
		return
	}
	for name, delta := range effects.Attributes {
		p.Attributes[name] += delta
	}
	for name, delta := range effects.Factions {
		p.Story.FactionReputation[name] += delta
	}
	for name, delta := range effects.Relationships {
		p.Story.CharacterRelationships[name] += delta
	}
}

// activeChoices returns the choice set for the player's current position. The
// second result reports that the set was synthesized because nothing is
// authored there; the presentation layer always gets at least one affordance.
func activeChoices(ch *models.Chapter, s *models.StoryProgress) ([]models.Choice, bool) {
	if ch.HasScenes() {
		scene := ch.SceneByID(s.CurrentScene)
		if scene == nil {
			return fallbackChoices(), true
		}
		if s.CurrentDialogueIndex < len(scene.Dialogues) {
			if opts := scene.Dialogues[s.CurrentDialogueIndex].Choices; len(opts) > 0 {
				return opts, false
			}
			return fallbackChoices(), true
		}
		if len(scene.Choices) > 0 {
			return scene.Choices, false
		}
		return fallbackChoices(), true
	}

	if s.CurrentDialogueIndex < len(ch.Dialogues) {
		if opts := ch.Dialogues[s.CurrentDialogueIndex].Choices; len(opts) > 0 {
			return opts, false
		}
		if len(ch.Choices) > 0 {
			return ch.Choices, false
		}
	}
	return fallbackChoices(), true
}

func fallbackChoices() []models.Choice {
	return []models.Choice{{Text: models.FallbackContinueText}}
}

// cursorExhausted reports that the chapter's dialogue/scene graph has no
// authored content left at the cursor.
func cursorExhausted(ch *models.Chapter, s *models.StoryProgress) bool {
	if ch.HasScenes() {
		scene := ch.SceneByID(s.CurrentScene)
		if scene == nil {
			return true
		}
		return s.CurrentDialogueIndex >= len(scene.Dialogues) && len(scene.Choices) == 0
	}
	return s.CurrentDialogueIndex >= len(ch.Dialogues)
}

// currentDialogue returns the dialogue step at the cursor, or nil.
func currentDialogue(ch *models.Chapter, s *models.StoryProgress) *models.DialogueStep {
	if ch.HasScenes() {
		scene := ch.SceneByID(s.CurrentScene)
		if scene == nil || s.CurrentDialogueIndex >= len(scene.Dialogues) {
			return nil
		}
		return &scene.Dialogues[s.CurrentDialogueIndex]
	}
	if s.CurrentDialogueIndex >= len(ch.Dialogues) {
		return nil
	}
	return &ch.Dialogues[s.CurrentDialogueIndex]
}

// chapterData assembles the rendering payload for the player's position in ch.
func (e *Engine) chapterData(ch *models.Chapter, p *models.Player) *models.ChapterData {
	choices, synthesized := activeChoices(ch, p.Story)
	options := make([]models.ChoiceOption, 0, len(choices))
	for i, c := range choices {
		options = append(options, models.ChoiceOption{Index: i, Text: c.Text, Fallback: synthesized})
	}
	return &models.ChapterData{
		ID:              ch.ID.String(),
		Title:           ch.Title,
		Description:     ch.Description,
		CurrentDialogue: currentDialogue(ch, p.Story),
		Choices:         options,
	}
}
