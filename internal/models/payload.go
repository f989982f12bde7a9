package models

// ChoiceOption is a single player-facing affordance in a rendering payload.
type ChoiceOption struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	// Fallback marks the synthesized "continue" option returned when a
	// chapter position has no authored choices. The presentation layer must
	// always have at least one affordance to render.
	Fallback bool `json:"fallback,omitempty"`
}

// FallbackContinueText is the label of the synthesized continue option.
const FallbackContinueText = "Continue"

// ChapterData is the chapter half of a rendering payload.
type ChapterData struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	CurrentDialogue *DialogueStep  `json:"current_dialogue,omitempty"`
	Choices         []ChoiceOption `json:"choices"`
}

// StoryUpdate is the payload every chapter operation returns to the
// presentation layer.
type StoryUpdate struct {
	Player  *Player      `json:"player_data"`
	Chapter *ChapterData `json:"chapter_data,omitempty"`

	// AlreadyCompleted / AlreadyFailed flag re-entry into a resolved
	// challenge chapter; the operation was a no-op.
	AlreadyCompleted bool `json:"already_completed,omitempty"`
	AlreadyFailed    bool `json:"already_failed,omitempty"`

	// Finished is set when the chapter's dialogue/scene graph has been
	// exhausted and the caller should complete the chapter.
	Finished bool `json:"finished,omitempty"`

	// EndOfStory is set when no transition rule produced a next chapter; the
	// arc is exhausted.
	EndOfStory bool `json:"end_of_story,omitempty"`

	// Transition is set when the processed choice itself declared a next
	// chapter. Internal to the progress manager.
	Transition *ChapterID `json:"-"`
}
