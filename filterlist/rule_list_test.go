package filterlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRuleList(t *testing.T) {
	t.Parallel()

	l := &StringRuleList{
		ID:        "test",
		RulesText: "||example.org^\n! test\n/banner/",
	}
	assert.Equal(t, "test", l.GetID())

	for range 2 {
		got := scanAll(t, l.NewScanner())
		require.Len(t, got, 2)
		assert.Equal(t, "||example.org^", got[0].Text)
		assert.Equal(t, "/banner/", got[1].Text)
		assert.Equal(t, 3, got[1].Line)
	}

	assert.NoError(t, l.Close())
}

func TestFileRuleList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "list.txt")
	err := os.WriteFile(path, []byte("! Title: file\n||file.example^\r\n/ads/\n"), 0o600)
	require.NoError(t, err)

	l, err := NewFileRuleList("file", path)
	require.NoError(t, err)

	assert.Equal(t, "file", l.GetID())

	// The list must be readable more than once.
	for range 2 {
		sc := l.NewScanner()
		got := scanAll(t, sc)
		require.NoError(t, sc.Err())

		require.Len(t, got, 2)
		assert.Equal(t, "||file.example^", got[0].Text)
		assert.Equal(t, "/ads/", got[1].Text)
		assert.Equal(t, "file", got[1].ListID)
	}

	require.NoError(t, l.Close())

	sc := l.NewScanner()
	assert.False(t, sc.Scan())
	assert.Error(t, sc.Err())
}

func TestNewFileRuleList_notExist(t *testing.T) {
	t.Parallel()

	_, err := NewFileRuleList("none", filepath.Join(t.TempDir(), "none.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
