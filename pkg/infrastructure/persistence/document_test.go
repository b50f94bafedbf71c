package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilldomain "github.com/lucci-labs/luccibot/pkg/domain/skill"
)

type doc struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	f := NewJSONFile[doc](path, 0600)

	_, err := f.Read()
	assert.ErrorIs(t, err, ErrNotExist)
	assert.False(t, f.Exists())

	require.NoError(t, f.Write(&doc{Name: "lucci", Items: []string{"a", "b"}}))
	assert.True(t, f.Exists())

	got, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "lucci", got.Name)
	assert.Equal(t, []string{"a", "b"}, got.Items)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestJSONFileAcceptsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	raw := `{
  // hand edited
  "name": "commented",
  "items": ["x",],
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	got, err := NewJSONFile[doc](path, 0).Read()
	require.NoError(t, err)
	assert.Equal(t, "commented", got.Name)
	assert.Equal(t, []string{"x"}, got.Items)
}

func TestJSONFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": 12}`), 0644))

	_, err := NewJSONFile[doc](path, 0).Read()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExist)
}

func TestSkillMetricsRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skill-metrics.json")
	repo := NewSkillMetricsRepository(path)

	got, err := repo.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.Save(map[string]skilldomain.SkillMetrics{
		"swap": {ExecutionCount: 3, ErrorCount: 1, LastError: "exit status 1"},
	}))

	got, err = NewSkillMetricsRepository(path).Load()
	require.NoError(t, err)
	assert.Equal(t, int64(3), got["swap"].ExecutionCount)
	assert.Equal(t, "exit status 1", got["swap"].LastError)
}
