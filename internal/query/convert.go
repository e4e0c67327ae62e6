package query

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/roach88/objectagent/internal/agenterr"
)

// Document keys accepted by FromMap.
var documentKeys = []string{"from", "selects", "joins", "criteria", "having", "groupBys", "orderings", "firstResult", "maxResults"}

var joinKeys = []string{"type", "join", "alias", "from", "condition"}

// FromMap converts the document form of a query, as decoded from YAML, JSON
// or CUE, into a Query:
//
//	from: page
//	criteria:
//	  eq: {title: Hello}
//	  or:
//	    gt: {rank: 3}
//	    null: {deletedAt: null}
//	orderings: {title: desc}
//	firstResult: 0
//	maxResults: 10
//
// Criteria operators are comparator names or "and"/"or". All top-level
// criteria are wrapped in an implicit AND. Mapping keys are visited in
// lexical order; use a list of single-key mappings where order matters.
func FromMap(doc map[string]any) (*Query, error) {
	if err := checkKeys("query keys", doc, documentKeys); err != nil {
		return nil, err
	}

	from, ok := doc["from"].(string)
	if !ok || from == "" {
		return nil, agenterr.InvalidArgument(`you must specify the "from" part of the query`)
	}

	var opts []Option

	if raw, ok := doc["selects"]; ok && raw != nil {
		selects, err := convertSelects(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSelects(selects...))
	}

	if raw, ok := doc["joins"]; ok && raw != nil {
		joins, err := convertJoins(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithJoins(joins...))
	}

	if raw, ok := doc["criteria"]; ok && raw != nil {
		expr, err := convertRootCriteria(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCriteria(expr))
	}

	if raw, ok := doc["having"]; ok && raw != nil {
		expr, err := convertRootCriteria(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithHaving(expr))
	}

	if raw, ok := doc["groupBys"]; ok && raw != nil {
		fields, err := toStrings("groupBys", raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithGroupBys(fields...))
	}

	if raw, ok := doc["orderings"]; ok && raw != nil {
		orderings, err := convertOrderings(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithOrderings(orderings...))
	}

	if raw, ok := doc["firstResult"]; ok && raw != nil {
		n, err := toInt("firstResult", raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFirstResult(n))
	}

	if raw, ok := doc["maxResults"]; ok && raw != nil {
		n, err := toInt("maxResults", raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithMaxResults(n))
	}

	return New(from, opts...)
}

func checkKeys(what string, m map[string]any, valid []string) error {
	var unknown []string
	for k := range m {
		if !slices.Contains(valid, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return agenterr.UnknownKeys(what, unknown, valid)
}

// entry is one key/value pair of an ordered mapping.
type entry struct {
	key   string
	value any
}

// entries flattens a mapping (lexical key order) or a list of single-key
// mappings (list order) into ordered pairs.
func entries(what string, raw any) ([]entry, error) {
	switch v := raw.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]entry, len(keys))
		for i, k := range keys {
			out[i] = entry{key: k, value: v[k]}
		}
		return out, nil
	case []any:
		var out []entry
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, agenterr.InvalidArgument("%s list items must be mappings, got %T", what, item)
			}
			sub, err := entries(what, m)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	default:
		return nil, agenterr.InvalidArgument("%s must be a mapping or a list of mappings, got %T", what, raw)
	}
}

func convertSelects(raw any) ([]Select, error) {
	if list, ok := raw.([]any); ok {
		var selects []Select
		for _, item := range list {
			if s, ok := item.(string); ok {
				selects = append(selects, Select{Expr: s})
				continue
			}
			pairs, err := entries("selects", []any{item})
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				alias, err := toString("selects", p.value)
				if err != nil {
					return nil, err
				}
				selects = append(selects, Select{Expr: p.key, Alias: alias})
			}
		}
		return selects, nil
	}

	pairs, err := entries("selects", raw)
	if err != nil {
		return nil, err
	}
	selects := make([]Select, 0, len(pairs))
	for _, p := range pairs {
		alias, err := toString("selects", p.value)
		if err != nil {
			return nil, err
		}
		selects = append(selects, Select{Expr: p.key, Alias: alias})
	}
	return selects, nil
}

func convertJoins(raw any) ([]Join, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, agenterr.InvalidArgument("joins must be a list, got %T", raw)
	}

	joins := make([]Join, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, agenterr.InvalidArgument("join must be a mapping, got %T", item)
		}
		if err := checkKeys("join keys", m, joinKeys); err != nil {
			return nil, err
		}

		var missing []string
		for _, required := range []string{"join", "alias"} {
			if _, ok := m[required]; !ok {
				missing = append(missing, required)
			}
		}
		if len(missing) > 0 {
			return nil, agenterr.InvalidArgument("keys %q are required for join %s", missing, toJSON(m))
		}

		target, err := toString("join", m["join"])
		if err != nil {
			return nil, err
		}
		alias, err := toString("alias", m["alias"])
		if err != nil {
			return nil, err
		}

		typ := InnerJoin
		if raw, ok := m["type"]; ok && raw != nil {
			s, err := toString("type", raw)
			if err != nil {
				return nil, err
			}
			typ = JoinType(s)
		}

		var opts []JoinOption
		if raw, ok := m["from"]; ok && raw != nil {
			s, err := toString("from", raw)
			if err != nil {
				return nil, err
			}
			opts = append(opts, From(s))
		}
		if raw, ok := m["condition"]; ok && raw != nil {
			expr, err := convertRootCriteria(raw)
			if err != nil {
				return nil, err
			}
			opts = append(opts, On(expr))
		}

		j, err := NewJoin(typ, target, alias, opts...)
		if err != nil {
			return nil, err
		}
		joins = append(joins, j)
	}
	return joins, nil
}

func convertRootCriteria(raw any) (Expression, error) {
	children, err := walkCriteria(raw, raw)
	if err != nil {
		return nil, err
	}
	return NewComposite(AndType, children...)
}

func walkCriteria(raw, original any) ([]Expression, error) {
	pairs, err := entries("criteria", raw)
	if err != nil {
		return nil, err
	}

	var exprs []Expression
	for _, p := range pairs {
		if c := Comparator(p.key); c.Valid() {
			fields, err := entries("comparison", p.value)
			if err != nil {
				return nil, agenterr.InvalidArgument(
					"comparison %q must have a mapping of field to value, got %T", p.key, p.value)
			}
			for _, f := range fields {
				cmp, err := Compare(c, f.key, f.value)
				if err != nil {
					return nil, err
				}
				exprs = append(exprs, cmp)
			}
			continue
		}

		if t := CompositeType(p.key); t.Valid() {
			children, err := walkCriteria(p.value, original)
			if err != nil {
				return nil, err
			}
			comp, err := NewComposite(t, children...)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, comp)
			continue
		}

		return nil, agenterr.InvalidArgument("unknown expression operator %q in %s", p.key, toJSON(original))
	}
	return exprs, nil
}

func convertOrderings(raw any) ([]Ordering, error) {
	pairs, err := entries("orderings", raw)
	if err != nil {
		return nil, err
	}
	orderings := make([]Ordering, 0, len(pairs))
	for _, p := range pairs {
		s, err := toString("orderings", p.value)
		if err != nil {
			return nil, err
		}
		d, err := ParseDirection(s)
		if err != nil {
			return nil, err
		}
		orderings = append(orderings, Ordering{Field: p.key, Direction: d})
	}
	return orderings, nil
}

func toString(what string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", agenterr.InvalidArgument("%s must be a string, got %T", what, v)
	}
	return s, nil
}

func toStrings(what string, v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, agenterr.InvalidArgument("%s must be a list, got %T", what, v)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, err := toString(what, item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// toInt accepts the integer shapes produced by the YAML, JSON and CUE decoders.
func toInt(what string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, agenterr.InvalidArgument("%s must be an integer, got %v", what, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, agenterr.InvalidArgument("%s must be an integer, got %s", what, n)
		}
		return int(i), nil
	default:
		return 0, agenterr.InvalidArgument("%s must be an integer, got %T", what, v)
	}
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
