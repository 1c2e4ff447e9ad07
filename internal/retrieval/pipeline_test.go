package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoth/internal/llm"
	"thoth/internal/persistence/databases"
	"thoth/internal/rag/retrieve"
	"thoth/internal/rag/service"
)

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	mgr := databases.Manager{
		Search: databases.NewMemorySearch(),
		Vector: databases.NewMemoryVector(),
		Graph:  databases.NewMemoryGraph(),
	}
	ctx := context.Background()
	require.NoError(t, mgr.Search.Index(ctx, "chunk:doc:1:0", "transformers use self attention", map[string]string{"type": "chunk", "doc_id": "doc:1", "lang": "english"}))
	require.NoError(t, mgr.Search.Index(ctx, "chunk:doc:1:1", "attention is the core mechanism", map[string]string{"type": "chunk", "doc_id": "doc:1", "lang": "english"}))
	return service.New(mgr)
}

// roleAwareProvider answers every Chat call by inspecting the system
// message so a single fake can stand in across the classify/grade/answer/
// hallucination-check stages that Pipeline.Answer drives in sequence.
type roleAwareProvider struct{}

func (r *roleAwareProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	system := ""
	if len(msgs) > 0 {
		system = strings.ToLower(msgs[0].Content)
	}
	switch {
	case strings.Contains(system, "you grade whether a passage"):
		return llm.Message{Content: "yes"}, nil
	case strings.Contains(system, "you verify whether an answer is grounded"):
		return llm.Message{Content: "grounded"}, nil
	case strings.Contains(system, "answer the user's question"):
		return llm.Message{Content: "attention lets a model weigh context tokens."}, nil
	default:
		return llm.Message{Content: "standard_rag"}, nil
	}
}

func (r *roleAwareProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return nil
}

func TestPipeline_DirectAnswerSkipsRetrieval(t *testing.T) {
	svc := newTestService(t)
	provider := &fakeChatProvider{reply: "a direct answer"}
	p := &Pipeline{Service: svc, Provider: provider, Model: "model", Router: &Router{}, Thresholds: DefaultThresholds(), Mode: ModeLenient}

	ans := p.Answer(context.Background(), "What is attention?", retrieve.RetrieveOptions{K: 5})
	assert.Equal(t, "a direct answer", ans.Text)
	assert.False(t, ans.NotFound)
}

func TestPipeline_StandardRAGGroundedAnswer(t *testing.T) {
	svc := newTestService(t)
	provider := &roleAwareProvider{}
	p := &Pipeline{Service: svc, Provider: provider, Model: "model", Router: &Router{}, Thresholds: DefaultThresholds(), Mode: ModeLenient}

	ans := p.Answer(context.Background(), "summarize attention mechanisms", retrieve.RetrieveOptions{K: 5})
	require.NotEmpty(t, ans.Text)
	assert.False(t, ans.NotFound)
	assert.Empty(t, ans.Warning)
}

func TestPipeline_NoRelevantItemsReportsNotFound(t *testing.T) {
	mgr := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector(), Graph: databases.NewMemoryGraph()}
	svc := service.New(mgr)
	provider := &fakeChatProvider{reply: "no"}
	p := &Pipeline{Service: svc, Provider: provider, Model: "model", Router: &Router{}, Thresholds: DefaultThresholds(), Mode: ModeLenient}

	ans := p.Answer(context.Background(), "summarize quantum chromodynamics", retrieve.RetrieveOptions{K: 5})
	assert.True(t, ans.NotFound)
}

func TestPipeline_UngroundedAnswerRetriesThenWarns(t *testing.T) {
	svc := newTestService(t)
	provider := &alwaysUngroundedProvider{}
	p := &Pipeline{Service: svc, Provider: provider, Model: "model", Router: &Router{}, Thresholds: DefaultThresholds(), Mode: ModeStrict}

	ans := p.Answer(context.Background(), "summarize attention mechanisms", retrieve.RetrieveOptions{K: 5})
	assert.Equal(t, "answer may contain unsupported claims", ans.Warning)
}

// alwaysUngroundedProvider grades every candidate relevant, answers with a
// fixed string, and always reports the hallucination check as ungrounded,
// exercising the retry-then-warn branch of Pipeline.Answer.
type alwaysUngroundedProvider struct{}

func (a *alwaysUngroundedProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	system := ""
	if len(msgs) > 0 {
		system = strings.ToLower(msgs[0].Content)
	}
	switch {
	case strings.Contains(system, "you grade whether a passage"):
		return llm.Message{Content: "yes"}, nil
	case strings.Contains(system, "you verify whether an answer is grounded"):
		return llm.Message{Content: "ungrounded"}, nil
	case strings.Contains(system, "answer the user's question"):
		return llm.Message{Content: "an unsupported claim"}, nil
	default:
		return llm.Message{Content: "standard_rag"}, nil
	}
}

func (a *alwaysUngroundedProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return nil
}
