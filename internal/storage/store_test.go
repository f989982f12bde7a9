package storage_test

import (
	"context"
	"testing"

	"narrative-server/internal/models"
	"narrative-server/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing record", func(t *testing.T) {
		s := storage.NewMemoryStore()
		_, _, err := s.Get(ctx, "u1")
		assert.ErrorIs(t, err, models.ErrProgressNotFound)
	})

	t.Run("insert and read back", func(t *testing.T) {
		s := storage.NewMemoryStore()
		p := models.NewPlayer("u1")
		p.Exp = 50

		require.NoError(t, s.Put(ctx, "u1", p, 0))

		got, version, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
		assert.Equal(t, 50, got.Exp)
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		s := storage.NewMemoryStore()
		p := models.NewPlayer("u1")
		require.NoError(t, s.Put(ctx, "u1", p, 0))

		// Two readers load version 1; the second writer loses.
		_, v1, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		_, v2, err := s.Get(ctx, "u1")
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, "u1", p, v1))
		err = s.Put(ctx, "u1", p, v2)
		assert.ErrorIs(t, err, models.ErrVersionConflict)
	})

	t.Run("double insert conflicts", func(t *testing.T) {
		s := storage.NewMemoryStore()
		require.NoError(t, s.Put(ctx, "u1", models.NewPlayer("u1"), 0))
		err := s.Put(ctx, "u1", models.NewPlayer("u1"), 0)
		assert.ErrorIs(t, err, models.ErrVersionConflict)
	})

	t.Run("stored record is isolated from caller mutation", func(t *testing.T) {
		s := storage.NewMemoryStore()
		p := models.NewPlayer("u1")
		require.NoError(t, s.Put(ctx, "u1", p, 0))

		p.Exp = 999
		p.Story.AddHierarchyPoints(500)

		got, _, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Exp)
		assert.Equal(t, 0, got.Story.HierarchyPoints)

		// Mutating the returned copy must not leak into the store either.
		got.TUSD = 123
		again, _, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, again.TUSD)
	})

	t.Run("loaded record is normalized", func(t *testing.T) {
		s := storage.NewMemoryStore()
		p := &models.Player{UserID: "u1"}
		require.NoError(t, s.Put(ctx, "u1", p, 0))

		got, _, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got.Story)
		assert.Equal(t, 1, got.Story.CurrentYear)
		assert.NotNil(t, got.Story.StoryChoices)
	})
}
