package models_test

import (
	"testing"

	"narrative-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForPoints(t *testing.T) {
	cases := []struct {
		points int
		tier   int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{150, 1},
		{499, 1},
		{500, 2},
		{999, 2},
		{1000, 3},
		{50000, 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.tier, models.TierForPoints(tc.points), "points=%d", tc.points)
	}
}

func TestAddHierarchyPoints(t *testing.T) {
	t.Run("tier follows points", func(t *testing.T) {
		s := models.NewStoryProgress()
		s.AddHierarchyPoints(150)
		assert.Equal(t, 150, s.HierarchyPoints)
		assert.Equal(t, 1, s.HierarchyTier)

		s.AddHierarchyPoints(400)
		assert.Equal(t, 2, s.HierarchyTier)
	})

	t.Run("total never goes negative", func(t *testing.T) {
		s := models.NewStoryProgress()
		s.AddHierarchyPoints(30)
		s.AddHierarchyPoints(-200)
		assert.Equal(t, 0, s.HierarchyPoints)
		assert.Equal(t, 0, s.HierarchyTier)
	})

	t.Run("order independent", func(t *testing.T) {
		a := models.NewStoryProgress()
		a.AddHierarchyPoints(80)
		a.AddHierarchyPoints(70)

		b := models.NewStoryProgress()
		b.AddHierarchyPoints(70)
		b.AddHierarchyPoints(80)

		assert.Equal(t, a.HierarchyTier, b.HierarchyTier)
		assert.Equal(t, 1, a.HierarchyTier)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("fills missing collections", func(t *testing.T) {
		p := &models.Player{UserID: "u1", Story: &models.StoryProgress{}}
		p.Normalize()

		require.NotNil(t, p.Story)
		assert.Equal(t, 1, p.Story.CurrentYear)
		assert.NotNil(t, p.Attributes)
		assert.NotNil(t, p.Story.CompletedChapters)
		assert.NotNil(t, p.Story.StoryChoices)
		assert.NotNil(t, p.Story.CharacterRelationships)
	})

	t.Run("missing story progress is recreated", func(t *testing.T) {
		p := &models.Player{UserID: "u1"}
		p.Normalize()
		require.NotNil(t, p.Story)
		assert.Equal(t, 1, p.Story.CurrentYear)
	})

	t.Run("tier is recomputed from points", func(t *testing.T) {
		p := models.NewPlayer("u1")
		p.Story.HierarchyPoints = 600
		p.Story.HierarchyTier = 0
		p.Normalize()
		assert.Equal(t, 2, p.Story.HierarchyTier)
	})
}

func TestRecordChoice(t *testing.T) {
	s := models.NewStoryProgress()
	ch := models.ChapterID{Year: 1, Index: 2}

	s.RecordChoice(ch, "choice_0", "1")
	v, ok := s.ChoiceAt(ch, "choice_0")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// Later writes to the same key overwrite.
	s.RecordChoice(ch, "choice_0", "2")
	v, _ = s.ChoiceAt(ch, "choice_0")
	assert.Equal(t, "2", v)

	_, ok = s.ChoiceAt(models.ChapterID{Year: 1, Index: 3}, "choice_0")
	assert.False(t, ok)
}

func TestAddSpecialItemAndSecret(t *testing.T) {
	s := models.NewStoryProgress()
	s.AddSpecialItem("golden_key")
	s.AddSpecialItem("golden_key")
	assert.Equal(t, []string{"golden_key"}, s.SpecialItems)

	s.AddSecret("hidden_passage")
	s.AddSecret("hidden_passage")
	assert.Equal(t, []string{"hidden_passage"}, s.DiscoveredSecrets)
}
