// Package capability declares what an agent backend supports.
//
// Capabilities are advisory for callers: check CanQueryCount before calling
// QueryCount, CanSetParent before SetParent. Agents still enforce them and
// fail with a capability violation when misused.
package capability

import (
	"slices"
	"sort"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/query"
)

// Config lists the capability flags. Every field defaults to false / empty.
type Config struct {
	SupportedComparators []query.Comparator
	CanSetParent         bool
	CanQueryCount        bool
	CanQueryJoin         bool
	CanQuerySelect       bool
	CanQueryHaving       bool
}

// Capabilities is an immutable capability declaration.
type Capabilities struct {
	comparators []query.Comparator
	setParent   bool
	queryCount  bool
	queryJoin   bool
	querySelect bool
	queryHaving bool
}

// New creates Capabilities from cfg. Comparators are kept in the canonical
// declaration order of query.Comparators with duplicates dropped.
func New(cfg Config) Capabilities {
	var comparators []query.Comparator
	for _, c := range query.Comparators {
		if slices.Contains(cfg.SupportedComparators, c) {
			comparators = append(comparators, c)
		}
	}
	return Capabilities{
		comparators: comparators,
		setParent:   cfg.CanSetParent,
		queryCount:  cfg.CanQueryCount,
		queryJoin:   cfg.CanQueryJoin,
		querySelect: cfg.CanQuerySelect,
		queryHaving: cfg.CanQueryHaving,
	}
}

// Map keys understood by FromMap.
const (
	KeySupportedComparators = "supported_comparators"
	KeyCanSetParent         = "can_set_parent"
	KeyCanQueryCount        = "can_query_count"
	KeyCanQueryJoin         = "can_query_join"
	KeyCanQuerySelect       = "can_query_select"
	KeyCanQueryHaving       = "can_query_having"
)

var validKeys = []string{
	KeySupportedComparators,
	KeyCanSetParent,
	KeyCanQueryCount,
	KeyCanQueryJoin,
	KeyCanQuerySelect,
	KeyCanQueryHaving,
}

// FromMap creates Capabilities from a configuration map. Unknown keys and
// unknown comparators fail with an invalid-argument error.
func FromMap(m map[string]any) (Capabilities, error) {
	var unknown []string
	for k := range m {
		if !slices.Contains(validKeys, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Capabilities{}, agenterr.UnknownKeys("capabilities", unknown, validKeys)
	}

	var cfg Config
	if raw, ok := m[KeySupportedComparators]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			if strs, isStrings := raw.([]string); isStrings {
				for _, s := range strs {
					list = append(list, s)
				}
			} else {
				return Capabilities{}, agenterr.InvalidArgument("%s must be a list, got %T", KeySupportedComparators, raw)
			}
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return Capabilities{}, agenterr.InvalidArgument("comparator must be a string, got %T", item)
			}
			c, err := query.ParseComparator(s)
			if err != nil {
				return Capabilities{}, err
			}
			cfg.SupportedComparators = append(cfg.SupportedComparators, c)
		}
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{KeyCanSetParent, &cfg.CanSetParent},
		{KeyCanQueryCount, &cfg.CanQueryCount},
		{KeyCanQueryJoin, &cfg.CanQueryJoin},
		{KeyCanQuerySelect, &cfg.CanQuerySelect},
		{KeyCanQueryHaving, &cfg.CanQueryHaving},
	}
	for _, f := range flags {
		raw, ok := m[f.key]
		if !ok || raw == nil {
			continue
		}
		b, ok := raw.(bool)
		if !ok {
			return Capabilities{}, agenterr.InvalidArgument("%s must be a boolean, got %T", f.key, raw)
		}
		*f.dst = b
	}

	return New(cfg), nil
}

// Comparators returns a copy of the supported comparators.
func (c Capabilities) Comparators() []query.Comparator {
	return append([]query.Comparator(nil), c.comparators...)
}

// Supports reports whether comparator is supported.
func (c Capabilities) Supports(comparator query.Comparator) bool {
	return slices.Contains(c.comparators, comparator)
}

func (c Capabilities) CanSetParent() bool   { return c.setParent }
func (c Capabilities) CanQueryCount() bool  { return c.queryCount }
func (c Capabilities) CanQueryJoin() bool   { return c.queryJoin }
func (c Capabilities) CanQuerySelect() bool { return c.querySelect }
func (c Capabilities) CanQueryHaving() bool { return c.queryHaving }

// Narrow returns the intersection of c and other: a flag is set only if both
// set it, a comparator is kept only if both support it.
func (c Capabilities) Narrow(other Capabilities) Capabilities {
	var comparators []query.Comparator
	for _, cmp := range c.comparators {
		if other.Supports(cmp) {
			comparators = append(comparators, cmp)
		}
	}
	return New(Config{
		SupportedComparators: comparators,
		CanSetParent:         c.setParent && other.setParent,
		CanQueryCount:        c.queryCount && other.queryCount,
		CanQueryJoin:         c.queryJoin && other.queryJoin,
		CanQuerySelect:       c.querySelect && other.querySelect,
		CanQueryHaving:       c.queryHaving && other.queryHaving,
	})
}

// Map renders c with the FromMap keys.
func (c Capabilities) Map() map[string]any {
	comparators := make([]string, len(c.comparators))
	for i, cmp := range c.comparators {
		comparators[i] = string(cmp)
	}
	return map[string]any{
		KeySupportedComparators: comparators,
		KeyCanSetParent:         c.setParent,
		KeyCanQueryCount:        c.queryCount,
		KeyCanQueryJoin:         c.queryJoin,
		KeyCanQuerySelect:       c.querySelect,
		KeyCanQueryHaving:       c.queryHaving,
	}
}
