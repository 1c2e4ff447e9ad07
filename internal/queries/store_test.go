package queries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Simple Name", "simple-name"},
		{"  spaced  ", "spaced"},
		{"with/slash", "with-slash"},
		{"../traversal", "traversal"},
		{"", "query"},
		{"!!!", "query"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	q := Query{
		Name:             "Transformer Surveys",
		ResearchQuestion: "How do transformer architectures scale?",
		RequiredTopics:   []string{"attention"},
	}
	require.NoError(t, store.Put(q))

	got, err := store.Get(q.Name)
	require.NoError(t, err)
	assert.Equal(t, q.ResearchQuestion, got.ResearchQuestion)
	assert.Equal(t, q.RequiredTopics, got.RequiredTopics)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestPut_RejectsEmptyName(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	err = store.Put(Query{})
	assert.Error(t, err)
}

func TestPut_OverwritesOnCollision(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(Query{Name: "dup", Description: "first"}))
	first, err := store.Get("dup")
	require.NoError(t, err)

	require.NoError(t, store.Put(Query{Name: "dup", Description: "second", CreatedAt: first.CreatedAt}))
	second, err := store.Get("dup")
	require.NoError(t, err)

	assert.Equal(t, "second", second.Description)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "CreatedAt should be preserved across an explicit overwrite")
}

func TestList_SortedByName(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(Query{Name: "zebra"}))
	require.NoError(t, store.Put(Query{Name: "alpha"}))
	require.NoError(t, store.Put(Query{Name: "mango"}))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestDelete_RemovesQuery(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(Query{Name: "gone"}))
	require.NoError(t, store.Delete("gone"))

	_, err = store.Get("gone")
	assert.Error(t, err)
}

func TestGet_MissingQueryErrors(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("nonexistent")
	assert.Error(t, err)
}
