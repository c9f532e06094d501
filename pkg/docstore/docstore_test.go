package docstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "rules.json"))

	got := doc{Name: "unchanged"}
	require.NoError(t, s.Load(&got))
	assert.Equal(t, "unchanged", got.Name)
}

func TestReplaceThenLoad(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "rules.json"))

	require.NoError(t, s.Replace([]doc{{Name: "welcome", Count: 2}}))

	var got []doc
	require.NoError(t, s.Load(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "welcome", got[0].Name)
	assert.Equal(t, 2, got[0].Count)
}

func TestReplaceOverwritesWholeDocument(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "menus.json"))

	require.NoError(t, s.Replace([]doc{{Name: "a"}, {Name: "b"}}))
	require.NoError(t, s.Replace([]doc{{Name: "c"}}))

	var got []doc
	require.NoError(t, s.Load(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Name)
}

func TestLoadCorruptDocumentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var got doc
	assert.Error(t, New(path).Load(&got))
}
