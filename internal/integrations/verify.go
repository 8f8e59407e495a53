package integrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// paramSchema is a param type list compiled into a JSON schema.
type paramSchema struct {
	types  []ParamType
	schema *jsonschema.Schema
}

// compileParamTypes turns types into a JSON schema object with one
// property per param type. name only labels the schema resource.
func compileParamTypes(name string, types []ParamType) (*paramSchema, error) {
	props := make(map[string]any, len(types))
	for _, pt := range types {
		prop, err := propertySchema(pt)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", pt.ID, err)
		}
		props[pt.ID] = prop
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	loaded, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	url := "mem://params/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, loaded); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &paramSchema{types: types, schema: compiled}, nil
}

func propertySchema(pt ParamType) (map[string]any, error) {
	prop := map[string]any{}
	switch pt.Type {
	case TypeBool:
		prop["type"] = "boolean"
	case TypeInt:
		prop["type"] = "integer"
	case TypeUint:
		prop["type"] = "integer"
		prop["minimum"] = 0
	case TypeDouble:
		prop["type"] = "number"
	case TypeString:
		prop["type"] = "string"
	case TypeColor:
		prop["type"] = "string"
		prop["pattern"] = "^#[0-9a-fA-F]{6}$"
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDescriptor, pt.Type)
	}
	if pt.MinValue != nil {
		prop["minimum"] = pt.MinValue
	}
	if pt.MaxValue != nil {
		prop["maximum"] = pt.MaxValue
	}
	if len(pt.AllowedValues) > 0 {
		prop["enum"] = pt.AllowedValues
	}
	return prop, nil
}

// build fills defaults into given and verifies the result. Unknown
// param ids and values that violate the schema are InvalidParameter; a
// param with neither a value nor a default is MissingParameter.
func (s *paramSchema) build(given ParamList) (ParamList, error) {
	for _, p := range given {
		if !s.has(p.ParamTypeID) {
			return nil, fmt.Errorf("%w: unknown param %s", ErrInvalidParameter, p.ParamTypeID)
		}
	}

	out := make(ParamList, 0, len(s.types))
	values := make(map[string]any, len(s.types))
	for _, pt := range s.types {
		v, ok := given.Value(pt.ID)
		if !ok {
			if pt.DefaultValue == nil {
				return nil, fmt.Errorf("%w: %s", ErrMissingParameter, pt.ID)
			}
			v = pt.DefaultValue
		}
		v = normalizeNumber(v)
		out = append(out, Param{ParamTypeID: pt.ID, Value: v})
		values[pt.ID] = v
	}

	if err := s.schema.Validate(values); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParameter, strings.TrimSpace(firstLine(err.Error())))
	}
	return out, nil
}

func (s *paramSchema) has(id string) bool {
	for _, pt := range s.types {
		if pt.ID == id {
			return true
		}
	}
	return false
}

// normalizeNumber maps every Go numeric type to float64, the type JSON
// decoding produces.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil && !math.IsInf(f, 0) {
			return f
		}
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
