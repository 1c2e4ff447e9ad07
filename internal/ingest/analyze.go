package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"thoth/internal/llm"
	"thoth/internal/llm/jsonx"
	"thoth/internal/schema"
	"thoth/internal/thoth/errs"
)

// AnalysisRecord mirrors §3.1's AnalysisRecord entity: a structured
// extraction conforming to the active schema preset's field spec.
type AnalysisRecord struct {
	Preset string
	Fields map[string]any
	Failed bool
}

// Analyze runs step 3 of the DAG: an LLM call that returns a structured
// record conforming to preset. On invalid/partial output it retries once
// with a stricter repair prompt; if that also fails, the step is marked
// failed but does not abort the pipeline (markdown is still persisted;
// §4.2 step 3's "analysis_failed" contract).
//
// Grounded on the teacher's structured-output message adaptation
// (internal/llm/openai/schema.go) generalized via internal/llm/jsonx to
// work against any Provider, since the active preset's field set is only
// known at runtime.
func Analyze(ctx context.Context, provider llm.Provider, model string, preset schema.Preset, markdown string) (AnalysisRecord, error) {
	prompt := analyzePrompt(preset, markdown, false)
	msg, err := provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You extract structured metadata from academic papers. Respond with a single JSON object and nothing else."},
		{Role: "user", Content: prompt},
	}, nil, model)
	if err != nil {
		return AnalysisRecord{Preset: preset.Name, Failed: true}, errs.New(errs.AnalysisFailed, "ingest.analyze", err)
	}

	var fields map[string]any
	err = jsonx.DecodeWithRepair(msg.Content, &fields, func(failed string, decodeErr error) (string, error) {
		repair, rerr := provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: "You extract structured metadata from academic papers. Respond with a single JSON object and nothing else."},
			{Role: "user", Content: analyzePrompt(preset, markdown, true)},
			{Role: "assistant", Content: failed},
			{Role: "user", Content: fmt.Sprintf("That was not valid JSON (%v). Return ONLY the corrected JSON object, no prose, no code fences.", decodeErr)},
		}, nil, model)
		if rerr != nil {
			return "", rerr
		}
		return repair.Content, nil
	})
	if err != nil {
		return AnalysisRecord{Preset: preset.Name, Failed: true}, errs.New(errs.AnalysisFailed, "ingest.analyze.repair", err)
	}

	if missing := missingRequired(preset, fields); len(missing) > 0 {
		return AnalysisRecord{Preset: preset.Name, Fields: fields, Failed: true},
			errs.New(errs.AnalysisFailed, "ingest.analyze.validate", fmt.Errorf("missing required fields: %v", missing))
	}

	return AnalysisRecord{Preset: preset.Name, Fields: fields}, nil
}

func analyzePrompt(preset schema.Preset, markdown string, strict bool) string {
	schemaJSON, _ := json.MarshalIndent(fieldSpecs(preset), "", "  ")
	instr := preset.Instructions
	if strict {
		instr += " Every required field must be present and non-null."
	}
	return fmt.Sprintf(
		"Fields to extract (name -> {type, required, description}):\n%s\n\nInstructions: %s\n\nPaper text:\n%s",
		string(schemaJSON), instr, truncateForContext(markdown, 60000),
	)
}

func fieldSpecs(preset schema.Preset) map[string]any {
	out := make(map[string]any, len(preset.Fields))
	for name, f := range preset.Fields {
		out[name] = map[string]any{
			"type":        f.Type,
			"required":    f.Required,
			"description": f.Description,
		}
	}
	return out
}

func missingRequired(preset schema.Preset, fields map[string]any) []string {
	var missing []string
	for _, name := range preset.RequiredFields() {
		v, ok := fields[name]
		if !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

func truncateForContext(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}
