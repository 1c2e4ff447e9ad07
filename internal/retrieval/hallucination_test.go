package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckGrounded_GroundedVerdict(t *testing.T) {
	provider := &fakeChatProvider{reply: "grounded"}
	ok := CheckGrounded(context.Background(), provider, "model", ModeStrict, "the answer", "the context")
	assert.True(t, ok)
}

func TestCheckGrounded_UngroundedVerdict(t *testing.T) {
	provider := &fakeChatProvider{reply: "ungrounded"}
	ok := CheckGrounded(context.Background(), provider, "model", ModeStrict, "the answer", "the context")
	assert.False(t, ok)
}

func TestCheckGrounded_ErrorDefaultsToGrounded(t *testing.T) {
	provider := &fakeChatProvider{err: assert.AnError}
	ok := CheckGrounded(context.Background(), provider, "model", ModeLenient, "the answer", "the context")
	assert.True(t, ok, "a failed verdict should default to grounded, not block the answer")
}

func TestCheckGrounded_LenientModeSameParsing(t *testing.T) {
	provider := &fakeChatProvider{reply: "Grounded."}
	ok := CheckGrounded(context.Background(), provider, "model", ModeLenient, "the answer", "the context")
	assert.True(t, ok)
}
