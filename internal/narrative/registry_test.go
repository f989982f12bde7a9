package narrative_test

import (
	"os"
	"path/filepath"
	"testing"

	"narrative-server/internal/models"
	"narrative-server/internal/narrative"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeContentFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadRegistry(t *testing.T) {
	root := t.TempDir()
	mainDir := filepath.Join(root, "main_story")

	writeContentFile(t, mainDir, "1_1.json", `{
		"id": "1_1",
		"title": "Arrival",
		"description": "First day.",
		"dialogues": [{"npc": "narrator", "text": "The gates open."}],
		"next_chapter": "1_2"
	}`)
	writeContentFile(t, mainDir, "1_2.json", `{
		"id": "1_2",
		"title": "Orientation",
		"description": "Finding your feet.",
		"dialogues": [{"npc": "rector", "text": "Listen closely."}]
	}`)
	writeContentFile(t, mainDir, "arc.json", `{
		"name": "Main Story",
		"phase_order": ["early", "late"],
		"chapters": ["1_1", "1_2"]
	}`)

	// An arc directory without a manifest gets chapters sorted by identifier.
	writeContentFile(t, filepath.Join(root, "side_story"), "2_1.json", `{
		"id": "2_1",
		"title": "The Club",
		"description": "An invitation.",
		"dialogues": [{"npc": "captain", "text": "Join us."}]
	}`)

	registry, err := narrative.LoadRegistry(root, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 3, registry.Len())

	ch, ok := registry.Chapter(models.ChapterID{Year: 1, Index: 1})
	require.True(t, ok)
	assert.Equal(t, "Arrival", ch.Title)
	assert.Equal(t, "1_2", ch.NextChapter)

	arcs := registry.Arcs()
	require.Len(t, arcs, 2)
	assert.Equal(t, "Main Story", arcs[0].Name)
	assert.Equal(t, []string{"early", "late"}, arcs[0].PhaseOrder)
	assert.Equal(t, []models.ChapterID{{Year: 1, Index: 1}, {Year: 1, Index: 2}}, arcs[0].Chapters)

	assert.Equal(t, "side_story", arcs[1].Name)
	assert.Equal(t, []models.ChapterID{{Year: 2, Index: 1}}, arcs[1].Chapters)

	assert.Equal(t,
		[]models.ChapterID{{Year: 1, Index: 1}, {Year: 1, Index: 2}, {Year: 2, Index: 1}},
		registry.ChapterIDs())
}

func TestLoadRegistrySkipsBrokenChapter(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "main_story")
	writeContentFile(t, dir, "1_1.json", `{
		"id": "1_1",
		"title": "Arrival",
		"description": "First day.",
		"dialogues": []
	}`)
	writeContentFile(t, dir, "broken.json", `{not json`)
	writeContentFile(t, dir, "bad_id.json", `{"id": "arrival", "title": "X"}`)
	writeContentFile(t, dir, "notes.txt", `not content`)

	registry, err := narrative.LoadRegistry(root, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())
}

func TestLoadRegistryMissingDirectory(t *testing.T) {
	_, err := narrative.LoadRegistry(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	assert.Error(t, err)
}
