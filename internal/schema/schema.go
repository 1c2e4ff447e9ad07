// Package schema implements the analysis-schema configuration (§6.3): a
// structured document selecting the active preset and defining its
// fields (type, required, description) and custom instructions, used by
// the ingestion pipeline's analyze step (§4.2 step 3) to build its
// extraction prompt and validate the LLM's structured output.
//
// Grounded on internal/rag/ingest/api.go's typed-options pattern for a
// validated document, generalized per §9's "typed-decoder layer" design
// note; decode/validate/repair-retry mirrors the teacher's structured
// output handling in internal/llm/openai/schema.go.
package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"thoth/internal/config"
	"thoth/internal/logging"
	"thoth/internal/thoth/errs"
)

// FieldType is a recognized preset field type.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeArray, TypeObject:
		return true
	}
	return false
}

// Field describes one extracted field of a preset.
type Field struct {
	Type        FieldType `yaml:"type"`
	Required    bool      `yaml:"required"`
	Description string    `yaml:"description"`
	Items       *Field    `yaml:"items,omitempty"`
}

// Preset is a named, versioned analysis schema.
type Preset struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Fields       map[string]Field `yaml:"fields"`
	Instructions string           `yaml:"instructions"`
}

// Document is the on-disk analysis-schema configuration (§6.3).
type Document struct {
	ActivePreset string            `yaml:"active_preset"`
	Presets      map[string]Preset `yaml:"presets"`
	Version      string            `yaml:"version"`
}

// defaultDocument is the built-in fallback used when the on-disk document
// is missing or fails validation, per §6.3's "never crash" contract.
func defaultDocument() Document {
	return Document{
		ActivePreset: "default",
		Version:      "1",
		Presets: map[string]Preset{
			"default": {
				Name:        "default",
				Description: "Generic paper analysis",
				Fields: map[string]Field{
					"title":       {Type: TypeString, Required: true, Description: "Paper title"},
					"authors":     {Type: TypeArray, Required: true, Description: "Author names", Items: &Field{Type: TypeString}},
					"summary":     {Type: TypeString, Required: true, Description: "One-paragraph summary"},
					"methodology": {Type: TypeString, Required: false, Description: "Methodology description"},
					"key_points":  {Type: TypeArray, Required: false, Description: "Key findings", Items: &Field{Type: TypeString}},
					"tags":        {Type: TypeArray, Required: false, Description: "Topic tags", Items: &Field{Type: TypeString}},
				},
				Instructions: "Extract the structured fields from the paper's markdown text.",
			},
		},
	}
}

// Load reads and validates the document at path. An invalid or missing
// document falls back to the built-in default preset and logs a warning
// rather than failing the caller — mirrors §6.3's ConfigInvalid recovery.
func Load(path string) Document {
	b, err := os.ReadFile(path)
	if err != nil {
		logging.Log.WithError(err).Warn("schema: falling back to default preset (read failed)")
		return defaultDocument()
	}
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		logging.Log.WithError(err).Warn("schema: falling back to default preset (parse failed)")
		return defaultDocument()
	}
	if err := Validate(doc); err != nil {
		logging.Log.WithError(err).Warn("schema: falling back to default preset (validation failed)")
		return defaultDocument()
	}
	return doc
}

// Validate checks that active_preset exists and every field spec declares
// a recognized type.
func Validate(doc Document) error {
	if doc.ActivePreset == "" {
		return errs.New(errs.ConfigInvalid, "schema.validate", fmt.Errorf("active_preset is empty"))
	}
	preset, ok := doc.Presets[doc.ActivePreset]
	if !ok {
		return errs.New(errs.ConfigInvalid, "schema.validate", fmt.Errorf("active_preset %q not found", doc.ActivePreset))
	}
	for name, f := range preset.Fields {
		if err := validateField(name, f); err != nil {
			return errs.New(errs.ConfigInvalid, "schema.validate", err)
		}
	}
	return nil
}

func validateField(name string, f Field) error {
	if !f.Type.valid() {
		return fmt.Errorf("field %q: unrecognized type %q", name, f.Type)
	}
	if f.Type == TypeArray && f.Items != nil && !f.Items.Type.valid() {
		return fmt.Errorf("field %q: items has unrecognized type %q", name, f.Items.Type)
	}
	return nil
}

// LoadFromConfig loads the preset document from cfg.PresetsDir/presets.yaml
// and, when cfg.DefaultPreset is set, overrides active_preset with it
// (falling back to the document's own active_preset when the override
// doesn't resolve to a known preset).
func LoadFromConfig(cfg config.SchemaConfig) Document {
	doc := Load(filepath.Join(cfg.PresetsDir, "presets.yaml"))
	if cfg.DefaultPreset != "" {
		if _, ok := doc.Presets[cfg.DefaultPreset]; ok {
			doc.ActivePreset = cfg.DefaultPreset
		} else {
			logging.Log.Warnf("schema: default preset %q not found, keeping %q", cfg.DefaultPreset, doc.ActivePreset)
		}
	}
	return doc
}

// Active returns the active preset, falling back to the built-in default
// preset if the document's active_preset does not resolve (defensive;
// Load already validates, but callers may construct Documents directly).
func (d Document) Active() Preset {
	if p, ok := d.Presets[d.ActivePreset]; ok {
		return p
	}
	return defaultDocument().Presets["default"]
}

// RequiredFields returns the field names marked required, determined at
// read time from the preset rather than hard-coded (§3.1 AnalysisRecord
// invariant).
func (p Preset) RequiredFields() []string {
	var out []string
	for name, f := range p.Fields {
		if f.Required {
			out = append(out, name)
		}
	}
	return out
}
