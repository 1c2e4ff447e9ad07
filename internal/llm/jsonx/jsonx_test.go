package jsonx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PlainObject(t *testing.T) {
	raw, err := Extract(`{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, raw)
}

func TestExtract_SurroundingProse(t *testing.T) {
	raw, err := Extract("Sure, here's the result:\n" + `{"relevance": 0.8}` + "\nLet me know if you need more.")
	require.NoError(t, err)
	assert.Equal(t, `{"relevance": 0.8}`, raw)
}

func TestExtract_MarkdownFence(t *testing.T) {
	raw, err := Extract("```json\n" + `{"a": [1, 2, 3]}` + "\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": [1, 2, 3]}`, raw)
}

func TestExtract_NestedBraces(t *testing.T) {
	raw, err := Extract(`prefix {"outer": {"inner": "}"}} suffix`)
	require.NoError(t, err)
	assert.Equal(t, `{"outer": {"inner": "}"}}`, raw)
}

func TestExtract_Array(t *testing.T) {
	raw, err := Extract(`result: [1, 2, {"x": 3}]`)
	require.NoError(t, err)
	assert.Equal(t, `[1, 2, {"x": 3}]`, raw)
}

func TestExtract_NoJSON(t *testing.T) {
	_, err := Extract("just prose, no structure here")
	assert.Error(t, err)
}

func TestExtract_Unbalanced(t *testing.T) {
	_, err := Extract(`{"a": 1`)
	assert.Error(t, err)
}

func TestDecode_Success(t *testing.T) {
	var out struct {
		Relevance float64 `json:"relevance"`
	}
	err := Decode(`here you go: {"relevance": 0.42}`, &out)
	require.NoError(t, err)
	assert.Equal(t, 0.42, out.Relevance)
}

func TestDecode_BadJSONFails(t *testing.T) {
	var out map[string]any
	err := Decode(`{"a": }`, &out)
	assert.Error(t, err)
}

func TestDecodeWithRepair_FirstAttemptSucceeds(t *testing.T) {
	var out map[string]any
	called := false
	err := DecodeWithRepair(`{"ok": true}`, &out, func(string, error) (string, error) {
		called = true
		return "", nil
	})
	require.NoError(t, err)
	assert.False(t, called, "retry should not be invoked when the first decode succeeds")
}

func TestDecodeWithRepair_RetriesOnFailure(t *testing.T) {
	var out map[string]any
	err := DecodeWithRepair(`not json at all`, &out, func(failed string, decodeErr error) (string, error) {
		assert.Equal(t, "not json at all", failed)
		require.Error(t, decodeErr)
		return `{"fixed": true}`, nil
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["fixed"])
}

func TestDecodeWithRepair_NoRetryFnReturnsOriginalError(t *testing.T) {
	var out map[string]any
	err := DecodeWithRepair(`not json`, &out, nil)
	assert.Error(t, err)
}

func TestDecodeWithRepair_RetryFnErrors(t *testing.T) {
	var out map[string]any
	sentinel := errors.New("retry failed")
	err := DecodeWithRepair(`not json`, &out, func(string, error) (string, error) {
		return "", sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
