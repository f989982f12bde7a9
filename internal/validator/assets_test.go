package validator_test

import (
	"os"
	"path/filepath"
	"testing"

	"narrative-server/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirResolver(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "background"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "background", "academy_gates.webp"), []byte("img"), 0o644))

	r := validator.DirResolver{Root: root}

	path, err := r.Resolve("background", "academy_gates")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "background", "academy_gates.webp"), path)

	_, err = r.Resolve("background", "throne_room")
	assert.Error(t, err)

	_, err = r.Resolve("character", "elena")
	assert.Error(t, err)
}
