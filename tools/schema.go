package tools

import (
	"encoding/json"
	"strconv"

	"github.com/invopop/jsonschema"
)

// ParamsFor derives parameter specs from the exported fields of T.
//
// Fields without `omitempty` are required. Descriptions come from the
// jsonschema_description tag; enum, default, minimum and maximum from the
// jsonschema tag.
func ParamsFor[T any]() map[string]ParamSpec {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	out := make(map[string]ParamSpec)
	if schema.Properties == nil {
		return out
	}
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		spec := ParamSpec{
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[pair.Key],
			Default:     coerce(prop.Type, prop.Default),
		}
		for _, e := range prop.Enum {
			spec.Enum = append(spec.Enum, coerce(prop.Type, e))
		}
		if prop.Items != nil {
			spec.Items = prop.Items.Type
		}
		spec.Minimum = number(prop.Minimum)
		spec.Maximum = number(prop.Maximum)
		out[pair.Key] = spec
	}
	return out
}

// coerce normalises tag-derived values to the parameter's JSON type.
func coerce(typ string, v any) any {
	if v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	default:
		return v
	}
	switch typ {
	case "integer":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return v
}

func number(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
