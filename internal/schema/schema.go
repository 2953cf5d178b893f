// Package schema defines the typed output contracts attached to task
// definitions. A contract is compiled once at definition construction time and
// reused for every dispatch, so malformed contracts surface before any
// executor call is made.

package schema

import (
	"fmt"
	"sort"
)

// Type enumerates the value shapes a property may declare.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	TypeAny     Type = "any"
)

var knownTypes = map[Type]struct{}{
	TypeString:  {},
	TypeNumber:  {},
	TypeInteger: {},
	TypeBoolean: {},
	TypeArray:   {},
	TypeObject:  {},
	TypeAny:     {},
}

// Property describes a single field inside an object schema.
type Property struct {
	Type       Type                `json:"type" yaml:"type"`
	Minimum    *float64            `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum    *float64            `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Enum       []string            `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items      *Property           `json:"items,omitempty" yaml:"items,omitempty"`
	Properties map[string]Property `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required   []string            `json:"required,omitempty" yaml:"required,omitempty"`
}

// Schema declares the object shape a task result must satisfy. Unknown fields
// in the result are allowed; declared fields are typed and range-checked.
type Schema struct {
	Required   []string            `json:"required,omitempty" yaml:"required,omitempty"`
	Properties map[string]Property `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Clone returns a deep copy of the schema.
func (s Schema) Clone() Schema {
	clone := Schema{}
	if len(s.Required) > 0 {
		clone.Required = append([]string{}, s.Required...)
	}
	if len(s.Properties) > 0 {
		clone.Properties = make(map[string]Property, len(s.Properties))
		for name, prop := range s.Properties {
			clone.Properties[name] = prop.clone()
		}
	}
	return clone
}

func (p Property) clone() Property {
	clone := p
	if len(p.Enum) > 0 {
		clone.Enum = append([]string{}, p.Enum...)
	}
	if len(p.Required) > 0 {
		clone.Required = append([]string{}, p.Required...)
	}
	if p.Minimum != nil {
		v := *p.Minimum
		clone.Minimum = &v
	}
	if p.Maximum != nil {
		v := *p.Maximum
		clone.Maximum = &v
	}
	if p.Items != nil {
		items := p.Items.clone()
		clone.Items = &items
	}
	if len(p.Properties) > 0 {
		clone.Properties = make(map[string]Property, len(p.Properties))
		for name, nested := range p.Properties {
			clone.Properties[name] = nested.clone()
		}
	}
	return clone
}

// Validator is a compiled schema ready to check result documents.
type Validator struct {
	schema Schema
}

// Compile checks the schema for well-formedness and returns a validator.
func Compile(s Schema) (*Validator, error) {
	if err := validateShape("", Property{Type: TypeObject, Properties: s.Properties, Required: s.Required}); err != nil {
		return nil, err
	}
	return &Validator{schema: s.Clone()}, nil
}

// MustCompile panics on a malformed schema. Intended for definitions built in
// code rather than loaded from user files.
func MustCompile(s Schema) *Validator {
	v, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Schema returns a copy of the compiled schema.
func (v *Validator) Schema() Schema {
	return v.schema.Clone()
}

func validateShape(path string, prop Property) error {
	if prop.Type == "" {
		return fmt.Errorf("schema: type is required at %s", pathOrRoot(path))
	}
	if _, ok := knownTypes[prop.Type]; !ok {
		return fmt.Errorf("schema: unknown type %q at %s", prop.Type, pathOrRoot(path))
	}
	if prop.Minimum != nil && prop.Maximum != nil && *prop.Minimum > *prop.Maximum {
		return fmt.Errorf("schema: minimum exceeds maximum at %s", pathOrRoot(path))
	}
	for _, name := range prop.Required {
		if _, ok := prop.Properties[name]; !ok {
			return fmt.Errorf("schema: required field %q has no property declaration at %s", name, pathOrRoot(path))
		}
	}
	if prop.Items != nil {
		if err := validateShape(path+"[]", *prop.Items); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(prop.Properties))
	for name := range prop.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := validateShape(joinPath(path, name), prop.Properties[name]); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a result document against the compiled schema. It returns
// every violation found rather than stopping at the first.
func (v *Validator) Validate(data map[string]any) []error {
	var errs []error
	root := Property{Type: TypeObject, Properties: v.schema.Properties, Required: v.schema.Required}
	validateValue("", root, data, &errs)
	return errs
}

func validateValue(path string, prop Property, value any, errs *[]error) {
	switch prop.Type {
	case TypeAny:
		return
	case TypeString:
		if _, ok := value.(string); !ok {
			*errs = append(*errs, fmt.Errorf("%s: expected string, got %T", pathOrRoot(path), value))
			return
		}
		if len(prop.Enum) > 0 {
			s := value.(string)
			for _, allowed := range prop.Enum {
				if s == allowed {
					return
				}
			}
			*errs = append(*errs, fmt.Errorf("%s: value %q not in enum %v", pathOrRoot(path), s, prop.Enum))
		}
	case TypeNumber, TypeInteger:
		num, ok := asFloat(value)
		if !ok {
			*errs = append(*errs, fmt.Errorf("%s: expected %s, got %T", pathOrRoot(path), prop.Type, value))
			return
		}
		if prop.Type == TypeInteger && num != float64(int64(num)) {
			*errs = append(*errs, fmt.Errorf("%s: expected integer, got %v", pathOrRoot(path), num))
			return
		}
		if prop.Minimum != nil && num < *prop.Minimum {
			*errs = append(*errs, fmt.Errorf("%s: %v is below minimum %v", pathOrRoot(path), num, *prop.Minimum))
		}
		if prop.Maximum != nil && num > *prop.Maximum {
			*errs = append(*errs, fmt.Errorf("%s: %v is above maximum %v", pathOrRoot(path), num, *prop.Maximum))
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, fmt.Errorf("%s: expected boolean, got %T", pathOrRoot(path), value))
		}
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			*errs = append(*errs, fmt.Errorf("%s: expected array, got %T", pathOrRoot(path), value))
			return
		}
		if prop.Items != nil {
			for i, item := range items {
				validateValue(fmt.Sprintf("%s[%d]", pathOrRoot(path), i), *prop.Items, item, errs)
			}
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			*errs = append(*errs, fmt.Errorf("%s: expected object, got %T", pathOrRoot(path), value))
			return
		}
		for _, name := range prop.Required {
			if _, present := obj[name]; !present {
				*errs = append(*errs, fmt.Errorf("%s: missing required field %q", pathOrRoot(path), name))
			}
		}
		names := make([]string, 0, len(prop.Properties))
		for name := range prop.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			nested, present := obj[name]
			if !present {
				continue
			}
			validateValue(joinPath(path, name), prop.Properties[name], nested, errs)
		}
	}
}

// asFloat widens the numeric types JSON and YAML decoders produce.
func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func pathOrRoot(path string) string {
	if path == "" {
		return "result"
	}
	return path
}
