package compile

import (
	"fmt"
	"strings"
)

// NamingPolicy decides how bound parameters are named.
type NamingPolicy int

const (
	// FieldNames derives the name from the field: the separator (and any other
	// character not valid in an identifier) becomes "_", and repeated use of
	// the same field is disambiguated with a "_2", "_3", ... suffix.
	//
	//	title, title, p.title → title, title_2, p_title
	FieldNames NamingPolicy = iota

	// Sequential ignores the field and numbers parameters in registration
	// order: param0, param1, ...
	Sequential
)

// Parameter is one bound value.
type Parameter struct {
	Name  string
	Value any
}

// Parameters is the ordered parameter table produced by a compiler.
type Parameters struct {
	policy NamingPolicy
	params []Parameter
	used   map[string]bool
	seen   map[string]int
}

// NewParameters creates an empty table using policy.
func NewParameters(policy NamingPolicy) *Parameters {
	return &Parameters{
		policy: policy,
		used:   make(map[string]bool),
		seen:   make(map[string]int),
	}
}

// Register binds value for field and returns the parameter name.
func (p *Parameters) Register(field string, value any) string {
	name := p.nextName(field)
	p.used[name] = true
	p.params = append(p.params, Parameter{Name: name, Value: value})
	return name
}

func (p *Parameters) nextName(field string) string {
	if p.policy == Sequential {
		return fmt.Sprintf("param%d", len(p.params))
	}

	base := identifier(field)
	for {
		p.seen[base]++
		name := base
		if n := p.seen[base]; n > 1 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		if !p.used[name] {
			return name
		}
	}
}

// identifier maps field to a valid parameter identifier.
func identifier(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "param"
	}
	return b.String()
}

// All returns the parameters in registration order.
func (p *Parameters) All() []Parameter {
	return append([]Parameter(nil), p.params...)
}

// Map returns the parameters keyed by name.
func (p *Parameters) Map() map[string]any {
	m := make(map[string]any, len(p.params))
	for _, param := range p.params {
		m[param.Name] = param.Value
	}
	return m
}

// Len returns the number of registered parameters.
func (p *Parameters) Len() int { return len(p.params) }
