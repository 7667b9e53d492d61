package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/phrazzld/scry-gen/internal/generation"
	"google.golang.org/genai"
)

// ConvertSchema translates a JSON schema document into the subset genai
// understands. Unknown keywords are ignored.
func ConvertSchema(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var node map[string]any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("%w: schema is not a JSON object: %v", generation.ErrInvalidRequest, err)
	}
	return convertNode(node), nil
}

func convertNode(node map[string]any) *genai.Schema {
	s := &genai.Schema{Type: schemaType(node["type"])}

	if desc, ok := node["description"].(string); ok {
		s.Description = desc
	}
	if format, ok := node["format"].(string); ok {
		s.Format = format
	}
	s.Enum = stringList(node["enum"])
	s.Required = stringList(node["required"])

	if props, ok := node["properties"].(map[string]any); ok && len(props) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if child, ok := p.(map[string]any); ok {
				s.Properties[name] = convertNode(child)
			}
		}
		if s.Type == genai.TypeUnspecified {
			s.Type = genai.TypeObject
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		s.Items = convertNode(items)
		if s.Type == genai.TypeUnspecified {
			s.Type = genai.TypeArray
		}
	}
	if s.Type == genai.TypeUnspecified && len(s.Enum) > 0 {
		s.Type = genai.TypeString
	}

	return s
}

// schemaType accepts "string" and union forms such as ["string","null"].
func schemaType(v any) genai.Type {
	switch t := v.(type) {
	case string:
		return mapType(t)
	case []any:
		for _, item := range t {
			if name, ok := item.(string); ok && name != "null" {
				return mapType(name)
			}
		}
	}
	return genai.TypeUnspecified
}

func mapType(name string) genai.Type {
	switch name {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
