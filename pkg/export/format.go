package export

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"
)

// Supported document formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Format serializes an evaluation case. YAML is derived from the JSON form
// so both use the same keys.
func Format(ec *EvalCase, format string) ([]byte, error) {
	if ec == nil {
		return nil, fmt.Errorf("eval case cannot be nil")
	}

	data, err := json.MarshalIndent(ec, "", "  ")
	if err != nil {
		// Arguments or results without a native encoding
		data, err = json.MarshalIndent(ec.normalized(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode eval case: %w", err)
		}
	}

	switch format {
	case "", FormatJSON:
		return data, nil
	case FormatYAML:
		out, err := yaml.JSONToYAML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert eval case to yaml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// Parse reads a document produced by Format in either format
func Parse(data []byte) (*EvalCase, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read eval case: %w", err)
	}
	var ec EvalCase
	if err := json.Unmarshal(jsonData, &ec); err != nil {
		return nil, fmt.Errorf("failed to decode eval case: %w", err)
	}
	return &ec, nil
}

// FileExtension returns the evalset file suffix for a format
func FileExtension(format string) string {
	if format == FormatYAML {
		return ".evalset.yaml"
	}
	return ".evalset.json"
}

func (ec *EvalCase) normalized() *EvalCase {
	out := *ec
	out.Conversation = make([]Invocation, len(ec.Conversation))
	for i, inv := range ec.Conversation {
		if inv.IntermediateData != nil {
			data := &IntermediateData{}
			for _, u := range inv.IntermediateData.ToolUses {
				u.Args = normalizeObject(u.Args)
				data.ToolUses = append(data.ToolUses, u)
			}
			for _, r := range inv.IntermediateData.ToolResponses {
				r.Response = normalizeObject(r.Response)
				data.ToolResponses = append(data.ToolResponses, r)
			}
			inv.IntermediateData = data
		}
		out.Conversation[i] = inv
	}
	return &out
}

func normalizeObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}
