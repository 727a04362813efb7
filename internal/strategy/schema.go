package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrInvalidParameters is matched by every schema validation failure.
var ErrInvalidParameters = errors.New("invalid strategy parameters")

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeString  ParamType = "string"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
)

// Param describes one tunable input of a strategy.
type Param struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        ParamType `json:"type"`
	Default     any       `json:"default,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	Choices     []any     `json:"enum,omitempty"`
}

// Bound is a helper for Param.Minimum / Param.Maximum literals.
func Bound(v float64) *float64 { return &v }

// Schema is the ordered parameter declaration of a strategy.
type Schema []Param

// Lookup finds a parameter by name.
func (s Schema) Lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Violation is one schema check that failed.
type Violation struct {
	Param   string
	Message string
}

// ValidationError aggregates all violations found while binding.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Param, v.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidParameters, strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrInvalidParameters) true.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidParameters }

// Bind validates raw input against the schema and returns the merged
// parameter set. Absent parameters take their default; unknown names, wrong
// types, out-of-range numbers and out-of-choice values are all rejected.
func (s Schema) Bind(raw map[string]any) (Parameters, error) {
	var violations []Violation
	values := make(map[string]any, len(s))

	unknown := make([]string, 0)
	for name := range raw {
		if _, ok := s.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		violations = append(violations, Violation{Param: name, Message: "unknown parameter"})
	}

	for _, p := range s {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Default != nil {
				values[p.Name] = p.Default
			}
			continue
		}
		norm, msg := p.check(v)
		if msg != "" {
			violations = append(violations, Violation{Param: p.Name, Message: msg})
			continue
		}
		values[p.Name] = norm
	}

	if len(violations) > 0 {
		return Parameters{}, &ValidationError{Violations: violations}
	}
	return Parameters{values: values}, nil
}

// check validates one value and returns it in canonical form
// (float64 for numbers, int64 for integers, []string for arrays).
func (p Param) check(v any) (any, string) {
	var norm any
	switch p.Type {
	case TypeNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Sprintf("expected number, got %T", v)
		}
		if msg := p.checkRange(f); msg != "" {
			return nil, msg
		}
		norm = f
	case TypeInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Sprintf("expected integer, got %v (%T)", v, v)
		}
		if msg := p.checkRange(f); msg != "" {
			return nil, msg
		}
		norm = int64(f)
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Sprintf("expected string, got %T", v)
		}
		norm = str
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Sprintf("expected boolean, got %T", v)
		}
		norm = b
	case TypeArray:
		list, ok := toStrings(v)
		if !ok {
			return nil, fmt.Sprintf("expected array of strings, got %T", v)
		}
		norm = list
	default:
		return nil, fmt.Sprintf("unsupported parameter type %q", p.Type)
	}

	if len(p.Choices) > 0 && !p.allowed(norm) {
		return nil, fmt.Sprintf("value %v not in %v", norm, p.Choices)
	}
	return norm, ""
}

func (p Param) checkRange(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("value %v is not a finite number", f)
	}
	if p.Minimum != nil && f < *p.Minimum {
		return fmt.Sprintf("value %v below minimum %v", f, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return fmt.Sprintf("value %v above maximum %v", f, *p.Maximum)
	}
	return ""
}

func (p Param) allowed(v any) bool {
	for _, c := range p.Choices {
		if cf, ok := toFloat(c); ok {
			if vf, ok := toFloat(v); ok && cf == vf {
				return true
			}
			continue
		}
		if c == v {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
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
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), true
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
