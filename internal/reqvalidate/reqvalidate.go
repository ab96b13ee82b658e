// Package reqvalidate implements the named request-shape validator: for
// each declared request type, an ordered list of field rules is evaluated
// independently against a payload at one of three strictness levels. The
// rule-table-plus-Report shape is adapted from
// core/pkg/contracts/proposals.go's field-level checks; go-playground's
// struct-tag validator and a compiled santhosh-tekuri/jsonschema document
// back the typed-struct and ad-hoc paths respectively.
package reqvalidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldType enumerates the value shapes a Rule can demand.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeDict    FieldType = "dict"
	TypeList    FieldType = "list"
)

// Level controls whether length/pattern/allowed-values/custom failures are
// reported as errors (strict) or warnings (basic/custom).
type Level string

const (
	LevelBasic  Level = "basic"
	LevelStrict Level = "strict"
	LevelCustom Level = "custom"
)

// Rule is one field constraint within a named request type.
type Rule struct {
	FieldName     string
	FieldType     FieldType
	Required      bool
	MinLength     *int
	MaxLength     *int
	Pattern       *regexp.Regexp
	AllowedValues []any
	Custom        func(value any) error
}

// Report is the outcome of validating one payload.
type Report struct {
	IsValid       bool
	Errors        []string
	Warnings      []string
	ValidatedData map[string]any
}

// Registry holds field-rule sets per named request type.
type Registry struct {
	types    map[string][]Rule
	validate *validator.Validate
}

// NewRegistry creates an empty registry with a shared struct-tag validator
// for typed-struct payloads.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string][]Rule), validate: validator.New()}
}

// Register declares the ordered field rules for a request type.
func (r *Registry) Register(requestType string, rules []Rule) {
	r.types[requestType] = rules
}

// Validate evaluates data against requestType's rules. Rule order only
// affects reporting order; every rule is evaluated independently so one
// failure never short-circuits another.
func (r *Registry) Validate(requestType string, data map[string]any, level Level) Report {
	rules, ok := r.types[requestType]
	if !ok {
		return Report{IsValid: false, Errors: []string{fmt.Sprintf("unknown request type %q", requestType)}}
	}

	report := Report{IsValid: true, ValidatedData: cloneMap(data)}

	for _, rule := range rules {
		value, present := data[rule.FieldName]

		if rule.Required && !present {
			report.addError(&report.IsValid, fmt.Sprintf("%s: required field is missing", rule.FieldName))
			continue
		}
		if !present {
			continue
		}

		if !matchesType(value, rule.FieldType) {
			report.addError(&report.IsValid, fmt.Sprintf("%s: expected type %s", rule.FieldName, rule.FieldType))
			continue
		}

		if msg, ok := checkConstraints(rule, value); !ok {
			if level == LevelStrict {
				report.addError(&report.IsValid, msg)
			} else {
				report.Warnings = append(report.Warnings, msg)
			}
		}
	}

	return report
}

func (r *Report) addError(valid *bool, msg string) {
	r.Errors = append(r.Errors, msg)
	*valid = false
}

func cloneMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func matchesType(value any, ft FieldType) bool {
	switch ft {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeInteger:
		switch value.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeDict:
		_, ok := value.(map[string]any)
		return ok
	case TypeList:
		_, ok := value.([]any)
		return ok
	default:
		return false
	}
}

func checkConstraints(rule Rule, value any) (string, bool) {
	if s, ok := value.(string); ok {
		if rule.MinLength != nil && len(s) < *rule.MinLength {
			return fmt.Sprintf("%s: shorter than minimum length %d", rule.FieldName, *rule.MinLength), false
		}
		if rule.MaxLength != nil && len(s) > *rule.MaxLength {
			return fmt.Sprintf("%s: longer than maximum length %d", rule.FieldName, *rule.MaxLength), false
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(s) {
			return fmt.Sprintf("%s: does not match required pattern", rule.FieldName), false
		}
	}

	if len(rule.AllowedValues) > 0 && !contains(rule.AllowedValues, value) {
		return fmt.Sprintf("%s: value not in allowed set", rule.FieldName), false
	}

	if rule.Custom != nil {
		if err := rule.Custom(value); err != nil {
			return fmt.Sprintf("%s: %s", rule.FieldName, err.Error()), false
		}
	}

	return "", true
}

func contains(values []any, target any) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// ValidateStruct runs go-playground/validator's struct-tag rules over a
// typed payload, used by handlers that decode directly into a Go struct
// instead of a map[string]any.
func (r *Registry) ValidateStruct(v any) error {
	if err := r.validate.Struct(v); err != nil {
		return fmt.Errorf("reqvalidate: %w", err)
	}
	return nil
}

// SchemaChecker compiles and evaluates ad-hoc JSON schemas (the "type"
// keyword and "required" list, per a minimal ad-hoc checker) against raw
// documents that have no registered Rule set.
type SchemaChecker struct {
	compiler *jsonschema.Compiler
	schemas  map[string]*jsonschema.Schema
}

// NewSchemaChecker creates an empty checker.
func NewSchemaChecker() *SchemaChecker {
	return &SchemaChecker{compiler: jsonschema.NewCompiler(), schemas: make(map[string]*jsonschema.Schema)}
}

// LoadSchema compiles and registers a JSON schema document under name.
func (c *SchemaChecker) LoadSchema(name, schemaJSON string) error {
	url := fmt.Sprintf("mem://ghostrelay/%s.json", name)
	if err := c.compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("reqvalidate: add schema %s: %w", name, err)
	}
	compiled, err := c.compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("reqvalidate: compile schema %s: %w", name, err)
	}
	c.schemas[name] = compiled
	return nil
}

// Check validates doc against the named schema.
func (c *SchemaChecker) Check(name string, doc any) error {
	schema, ok := c.schemas[name]
	if !ok {
		return fmt.Errorf("reqvalidate: unknown schema %q", name)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("reqvalidate: schema %s: %w", name, err)
	}
	return nil
}
