package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoth/internal/config"
)

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	doc := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Equal(t, "default", doc.ActivePreset)
	assert.Contains(t, doc.Presets, "default")
}

func TestLoad_InvalidYAMLFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	doc := Load(path)
	assert.Equal(t, "default", doc.ActivePreset)
}

func TestLoad_ValidatesActivePresetExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
active_preset: missing
presets:
  other:
    name: other
    fields:
      x:
        type: string
`), 0o644))

	doc := Load(path)
	assert.Equal(t, "default", doc.ActivePreset, "should fall back when active_preset doesn't resolve")
}

func TestLoad_ValidDocumentPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
active_preset: custom
presets:
  custom:
    name: custom
    fields:
      title:
        type: string
        required: true
      authors:
        type: array
        items:
          type: string
`), 0o644))

	doc := Load(path)
	require.Equal(t, "custom", doc.ActivePreset)
	preset := doc.Active()
	assert.Equal(t, "custom", preset.Name)
	assert.ElementsMatch(t, []string{"title"}, preset.RequiredFields())
}

func TestValidate_RejectsUnrecognizedFieldType(t *testing.T) {
	doc := Document{
		ActivePreset: "p",
		Presets: map[string]Preset{
			"p": {Fields: map[string]Field{"x": {Type: "bogus"}}},
		},
	}
	err := Validate(doc)
	require.Error(t, err)
}

func TestValidate_RejectsBadArrayItemType(t *testing.T) {
	doc := Document{
		ActivePreset: "p",
		Presets: map[string]Preset{
			"p": {Fields: map[string]Field{
				"x": {Type: TypeArray, Items: &Field{Type: "bogus"}},
			}},
		},
	}
	require.Error(t, Validate(doc))
}

func TestActive_FallsBackWhenPresetMissing(t *testing.T) {
	doc := Document{ActivePreset: "nope"}
	preset := doc.Active()
	assert.Equal(t, "default", preset.Name)
}

func TestLoadFromConfig_OverridesActivePreset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "presets.yaml"), []byte(`
active_preset: a
presets:
  a:
    name: a
    fields: {}
  b:
    name: b
    fields: {}
`), 0o644))

	doc := LoadFromConfig(config.SchemaConfig{PresetsDir: dir, DefaultPreset: "b"})
	assert.Equal(t, "b", doc.ActivePreset)
}

func TestLoadFromConfig_IgnoresUnknownOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "presets.yaml"), []byte(`
active_preset: a
presets:
  a:
    name: a
    fields: {}
`), 0o644))

	doc := LoadFromConfig(config.SchemaConfig{PresetsDir: dir, DefaultPreset: "nonexistent"})
	assert.Equal(t, "a", doc.ActivePreset)
}
