package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"thoth/internal/rag/retrieve"
)

func TestGenerate_ReturnsAnswerAndContext(t *testing.T) {
	items := []retrieve.RetrievedItem{
		{DocID: "doc1", Text: "first passage"},
		{DocID: "doc2", Snippet: "second passage"},
	}
	provider := &fakeChatProvider{reply: "the answer [1][2]"}
	text, ctx := Generate(context.Background(), provider, "model", "query", items)
	assert.Equal(t, "the answer [1][2]", text)
	assert.Contains(t, ctx, "first passage")
	assert.Contains(t, ctx, "second passage")
}

func TestGenerate_ErrorReturnsEmptyTextButContext(t *testing.T) {
	items := []retrieve.RetrievedItem{{DocID: "doc1", Text: "passage"}}
	provider := &fakeChatProvider{err: assert.AnError}
	text, ctx := Generate(context.Background(), provider, "model", "query", items)
	assert.Equal(t, "", text)
	assert.Contains(t, ctx, "passage")
}

func TestBuildContext_NumbersBlocksAndCollectsSources(t *testing.T) {
	items := []retrieve.RetrievedItem{
		{DocID: "a", Text: "alpha"},
		{DocID: "b", Text: "beta"},
	}
	ctx, sources := buildContext(items)
	assert.Contains(t, ctx, "[1] alpha")
	assert.Contains(t, ctx, "[2] beta")
	assert.Equal(t, []string{"a", "b"}, sources)
}
