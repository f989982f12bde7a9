package models_test

import (
	"encoding/json"
	"testing"

	"narrative-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChapterUnmarshalLinear(t *testing.T) {
	doc := `{
		"id": "1_1",
		"title": "Arrival",
		"description": "First day at the academy.",
		"background": "academy_gates",
		"dialogues": [
			{"npc": "narrator", "text": "The gates open."},
			{"npc": "rector", "text": "Welcome.", "choices": [{"text": "Thank you"}]}
		],
		"next_chapter": "1_2",
		"completion_exp": 50,
		"completion_tusd": 10
	}`

	var ch models.Chapter
	require.NoError(t, json.Unmarshal([]byte(doc), &ch))

	assert.Equal(t, models.ChapterID{Year: 1, Index: 1}, ch.ID)
	assert.Equal(t, models.KindLinear, ch.Kind)
	assert.Nil(t, ch.Challenge)
	assert.Nil(t, ch.Branching)
	assert.Len(t, ch.Dialogues, 2)
	assert.Equal(t, "1_2", ch.NextChapter)
	assert.Equal(t, 50, ch.CompletionExp)
	assert.False(t, ch.HasScenes())
}

func TestChapterUnmarshalChallenge(t *testing.T) {
	doc := `{
		"id": "1_3",
		"title": "Entrance Trial",
		"description": "Prove yourself.",
		"type": "challenge",
		"challenge_type": "duel",
		"difficulty": 3,
		"rewards": {
			"exp": 100,
			"tusd": 25,
			"hierarchy_points": 50,
			"special_items": ["duelist_badge"]
		},
		"failure_consequences": {
			"exp_loss": 20,
			"hierarchy_points_loss": 30,
			"block_arc": "2_1"
		}
	}`

	var ch models.Chapter
	require.NoError(t, json.Unmarshal([]byte(doc), &ch))

	assert.Equal(t, models.KindChallenge, ch.Kind)
	require.NotNil(t, ch.Challenge)
	assert.Equal(t, "duel", ch.Challenge.ChallengeType)
	assert.Equal(t, 3, ch.Challenge.Difficulty)
	assert.Equal(t, 100, ch.Challenge.Rewards.Exp)
	assert.Equal(t, []string{"duelist_badge"}, ch.Challenge.Rewards.SpecialItems)
	assert.Equal(t, 30, ch.Challenge.FailureConsequences.HierarchyPointsLoss)
	assert.Equal(t, "2_1", ch.Challenge.FailureConsequences.BlockArc)
	assert.Nil(t, ch.Branching)
}

func TestChapterUnmarshalBranching(t *testing.T) {
	doc := `{
		"id": "1_5",
		"title": "Crossroads",
		"description": "Pick a side.",
		"type": "branching",
		"dialogues": [{"npc": "narrator", "text": "Two doors."}],
		"branches": [
			{"conditions": {"choice_0": "1", "attribute_intelligence": 5}, "next_chapter": "2_1"},
			{"conditions": {}, "next_chapter": "2_0"}
		],
		"scenes": [
			{"id": "hall", "dialogues": [{"npc": "narrator", "text": "A long hall."}],
			 "choices": [{"text": "Enter", "next_scene": "vault"}]},
			{"id": "vault", "dialogues": [], "choices": []}
		]
	}`

	var ch models.Chapter
	require.NoError(t, json.Unmarshal([]byte(doc), &ch))

	assert.Equal(t, models.KindBranching, ch.Kind)
	require.NotNil(t, ch.Branching)
	require.Len(t, ch.Branching.Branches, 2)

	// Condition keys are sorted, so the parsed order is deterministic.
	b := ch.Branching.Branches[0]
	require.Len(t, b.Conditions, 2)
	assert.Equal(t, models.ConditionAttributeAtLeast, b.Conditions[0].Kind)
	assert.Equal(t, "intelligence", b.Conditions[0].Name)
	assert.Equal(t, 5, b.Conditions[0].Threshold)
	assert.Equal(t, models.ConditionChoiceAt, b.Conditions[1].Kind)
	assert.Equal(t, 0, b.Conditions[1].DialogueIndex)
	assert.Equal(t, "1", b.Conditions[1].Value)
	assert.Equal(t, "2_1", b.NextChapter)

	assert.Empty(t, ch.Branching.Branches[1].Conditions)

	assert.True(t, ch.HasScenes())
	require.NotNil(t, ch.SceneByID("vault"))
	assert.Nil(t, ch.SceneByID("basement"))
}

func TestChapterUnmarshalRejectsMalformedID(t *testing.T) {
	var ch models.Chapter
	err := json.Unmarshal([]byte(`{"id": "arrival", "title": "X"}`), &ch)
	assert.ErrorIs(t, err, models.ErrMalformedChapterID)
}

func TestParseCondition(t *testing.T) {
	t.Run("choice with numeric value", func(t *testing.T) {
		c := models.ParseCondition("choice_2", json.RawMessage(`1`))
		assert.Equal(t, models.ConditionChoiceAt, c.Kind)
		assert.Equal(t, 2, c.DialogueIndex)
		assert.Equal(t, "1", c.Value)
	})

	t.Run("choice with string value", func(t *testing.T) {
		c := models.ParseCondition("choice_0", json.RawMessage(`"1"`))
		assert.Equal(t, "1", c.Value)
	})

	t.Run("affinity", func(t *testing.T) {
		c := models.ParseCondition("affinity_elena", json.RawMessage(`40`))
		assert.Equal(t, models.ConditionAffinityAtLeast, c.Kind)
		assert.Equal(t, "elena", c.Name)
		assert.Equal(t, 40, c.Threshold)
	})

	t.Run("unrecognized key", func(t *testing.T) {
		c := models.ParseCondition("moon_phase", json.RawMessage(`"full"`))
		assert.Equal(t, models.ConditionUnknown, c.Kind)
		assert.Equal(t, "moon_phase", c.RawKey)
	})

	t.Run("choice with non-numeric index", func(t *testing.T) {
		c := models.ParseCondition("choice_final", json.RawMessage(`"1"`))
		assert.Equal(t, models.ConditionUnknown, c.Kind)
	})
}
