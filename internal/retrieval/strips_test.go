package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoth/internal/rag/retrieve"
)

func TestDecomposeStrips_SplitsIntoStatements(t *testing.T) {
	items := []retrieve.RetrievedItem{{DocID: "doc1", Text: "a long passage"}}
	provider := &fakeChatProvider{reply: `["fact one", "fact two"]`}

	strips := DecomposeStrips(context.Background(), provider, "model", items)
	require.Len(t, strips, 2)
	assert.Equal(t, "doc1", strips[0].DocID)
	assert.Equal(t, "fact one", strips[0].Text)
	assert.Equal(t, "fact two", strips[1].Text)
}

func TestDecomposeStrips_ErrorKeepsWholePassage(t *testing.T) {
	items := []retrieve.RetrievedItem{{DocID: "doc1", Text: "a long passage"}}
	provider := &fakeChatProvider{err: assert.AnError}

	strips := DecomposeStrips(context.Background(), provider, "model", items)
	require.Len(t, strips, 1)
	assert.Equal(t, "a long passage", strips[0].Text)
}

func TestDecomposeStrips_MalformedOutputKeepsWholePassage(t *testing.T) {
	items := []retrieve.RetrievedItem{{DocID: "doc1", Text: "whole text"}}
	provider := &fakeChatProvider{reply: "not an array"}

	strips := DecomposeStrips(context.Background(), provider, "model", items)
	require.Len(t, strips, 1)
	assert.Equal(t, "whole text", strips[0].Text)
}

func TestDecomposeStrips_UsesSnippetWhenTextEmpty(t *testing.T) {
	items := []retrieve.RetrievedItem{{DocID: "doc1", Snippet: "snippet text"}}
	provider := &fakeChatProvider{err: assert.AnError}

	strips := DecomposeStrips(context.Background(), provider, "model", items)
	require.Len(t, strips, 1)
	assert.Equal(t, "snippet text", strips[0].Text)
}

func TestGradeStrips_KeepsOnlyRelevantAndJoins(t *testing.T) {
	strips := []Strip{
		{DocID: "a", Text: "pertinent fact"},
		{DocID: "b", Text: "irrelevant fact"},
	}
	provider := &scriptedProvider{byContent: map[string]string{
		"pertinent fact":  "yes",
		"irrelevant fact": "no",
	}}
	got := GradeStrips(context.Background(), provider, "model", "query", strips)
	assert.Equal(t, "pertinent fact", got)
}

func TestGradeStrips_ErrorFailsOpenKeepsStatement(t *testing.T) {
	strips := []Strip{{DocID: "a", Text: "some fact"}}
	provider := &fakeChatProvider{err: assert.AnError}
	got := GradeStrips(context.Background(), provider, "model", "query", strips)
	assert.Equal(t, "some fact", got)
}

func TestGradeStrips_EmptyInputProducesEmptyString(t *testing.T) {
	provider := &fakeChatProvider{reply: "yes"}
	got := GradeStrips(context.Background(), provider, "model", "query", nil)
	assert.Equal(t, "", got)
}
