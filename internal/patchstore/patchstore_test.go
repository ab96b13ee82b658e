package patchstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ghostrelay/controlplane/internal/patchstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_WritesSanitizedFilename(t *testing.T) {
	dir := t.TempDir()
	s, err := patchstore.New(dir)
	require.NoError(t, err)

	desc := patchstore.Descriptor{
		ID:         "team/fix 1",
		Role:       "maintainer",
		TargetFile: "main.go",
		Patch:      patchstore.Patch{Pattern: "foo", Replacement: "bar"},
	}

	path, err := s.Save(desc)
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.Contains(t, base, "team_fix_1_")
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, " ")

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSave_RoundTripsThroughLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := patchstore.New(dir)
	require.NoError(t, err)

	desc := patchstore.Descriptor{
		ID:         "abc",
		Role:       "bot",
		TargetFile: "x.py",
		Patch:      patchstore.Patch{Pattern: "a", Replacement: "b"},
		Metadata:   map[string]any{"force": true},
	}

	path, err := s.Save(desc)
	require.NoError(t, err)

	loaded, err := patchstore.Load(path)
	require.NoError(t, err)
	assert.Equal(t, desc.ID, loaded.ID)
	assert.Equal(t, desc.Patch, loaded.Patch)
	assert.Equal(t, true, loaded.Metadata["force"])
}

func TestValidate_RequiresPatchFields(t *testing.T) {
	err := patchstore.Validate(patchstore.Descriptor{ID: "x", Role: "r", TargetFile: "f"})
	assert.Error(t, err)

	err = patchstore.Validate(patchstore.Descriptor{
		ID: "x", Role: "r", TargetFile: "f",
		Patch: patchstore.Patch{Pattern: "p", Replacement: "rep"},
	})
	assert.NoError(t, err)
}

func TestIsRegexPattern(t *testing.T) {
	assert.True(t, patchstore.IsRegexPattern(`foo.*bar`))
	assert.False(t, patchstore.IsRegexPattern(`foo_bar`))
}

func TestIsDangerous(t *testing.T) {
	assert.True(t, patchstore.IsDangerous(`^.*$`))
	assert.True(t, patchstore.IsDangerous(`.*`))
	assert.False(t, patchstore.IsDangerous(`foo.*bar`))
}
