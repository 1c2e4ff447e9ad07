package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_ParsesJSONArray(t *testing.T) {
	provider := &fakeChatProvider{reply: `["sub one", "sub two", "sub three"]`}
	got := Decompose(context.Background(), provider, "model", "original question")
	require.Len(t, got, 3)
	assert.Equal(t, "sub one", got[0])
}

func TestDecompose_ErrorFallsBackToOriginalQuery(t *testing.T) {
	provider := &fakeChatProvider{err: assert.AnError}
	got := Decompose(context.Background(), provider, "model", "original question")
	assert.Equal(t, []string{"original question"}, got)
}

func TestDecompose_MalformedJSONFallsBackToOriginalQuery(t *testing.T) {
	provider := &fakeChatProvider{reply: "not json at all"}
	got := Decompose(context.Background(), provider, "model", "original question")
	assert.Equal(t, []string{"original question"}, got)
}

func TestDecompose_EmptyArrayFallsBackToOriginalQuery(t *testing.T) {
	provider := &fakeChatProvider{reply: `[]`}
	got := Decompose(context.Background(), provider, "model", "original question")
	assert.Equal(t, []string{"original question"}, got)
}

func TestDecompose_TruncatesToFour(t *testing.T) {
	provider := &fakeChatProvider{reply: `["a", "b", "c", "d", "e", "f"]`}
	got := Decompose(context.Background(), provider, "model", "q")
	assert.Len(t, got, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}
