package workflow

import (
	"bytes"
	"encoding/json"

	"github.com/n8nkit/n8nkit/engine/core"
)

// ParseOptions controls how tolerant Parse is of malformed input.
type ParseOptions struct {
	// Repair enables the syntax-repair pre-pass for near-JSON input
	// (trailing commas, bare keys, single quotes, missing separators).
	Repair bool
}

// ParseResult carries the parsed workflow plus the repair breadcrumbs, if any
// edits were applied.
type ParseResult struct {
	Workflow *Workflow    `json:"workflow"`
	Repairs  []RepairNote `json:"repairs,omitempty"`
}

// Parse decodes workflow JSON. Without opts.Repair the input must be strict
// JSON; with it, common agent and hand-edit mistakes are repaired first and
// every edit is reported back.
func Parse(data []byte, opts ParseOptions) (*ParseResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, core.NewError(core.KindNoInput, core.CodeParseError, "workflow document is empty")
	}
	var repairs []RepairNote
	if opts.Repair {
		repaired, notes := RepairJSON(trimmed)
		trimmed = repaired
		repairs = notes
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, parseError(trimmed, err)
	}
	wf, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	return &ParseResult{Workflow: wf, Repairs: repairs}, nil
}

func parseError(data []byte, err error) error {
	coded := core.WrapError(core.KindData, core.CodeParseError, err, "workflow document is not valid JSON")
	if syn, ok := err.(*json.SyntaxError); ok {
		line, col := lineColumn(data, syn.Offset)
		coded.WithDetails("offset", syn.Offset).
			WithDetails("line", line).
			WithDetails("column", col)
	}
	return coded
}

func lineColumn(data []byte, offset int64) (int, int) {
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// fromRaw builds the typed model out of the decoded JSON document. Scalar
// coercions here are lenient: typeVersion strings become numbers, absent
// containers stay nil until Normalize fills defaults. Structural problems are
// the validator's job, not the parser's.
func fromRaw(raw map[string]any) (*Workflow, error) {
	// Round-trip through the typed decoder for everything json handles
	// natively, with the known loose fields pre-coerced.
	if nodes, ok := raw["nodes"].([]any); ok {
		for _, n := range nodes {
			nodeMap, ok := n.(map[string]any)
			if !ok {
				continue
			}
			coerceNodeScalars(nodeMap)
		}
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, core.CodeInternal, err, "re-encode workflow document")
	}
	var wf Workflow
	if err := json.Unmarshal(buf, &wf); err != nil {
		return nil, core.WrapError(core.KindData, core.CodeInvalidWorkflow, err, "workflow document has an invalid shape")
	}
	return &wf, nil
}

// coerceNodeScalars fixes up node fields that agents commonly emit with the
// wrong scalar type.
func coerceNodeScalars(node map[string]any) {
	if tv, ok := node["typeVersion"]; ok {
		if f, ok := core.ToFloat(tv); ok {
			node["typeVersion"] = f
		} else {
			delete(node, "typeVersion")
		}
	}
	if pos, ok := node["position"].(map[string]any); ok {
		// {"x": 1, "y": 2} form seen in canvas exports
		x, xok := core.ToFloat(pos["x"])
		y, yok := core.ToFloat(pos["y"])
		if xok && yok {
			node["position"] = []any{x, y}
		}
	}
	if mt, ok := node["maxTries"]; ok {
		if n, ok := core.ToInt(mt); ok {
			node["maxTries"] = n
		}
	}
	if wt, ok := node["waitBetweenTries"]; ok {
		if n, ok := core.ToInt(wt); ok {
			node["waitBetweenTries"] = n
		}
	}
}
