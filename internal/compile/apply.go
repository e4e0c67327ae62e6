package compile

import (
	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/query"
)

// Paginate applies the first-result offset and max-results limit of q to
// items, for backends that paginate in process.
func Paginate[T any](items []T, q *query.Query) []T {
	if first, ok := q.FirstResult(); ok {
		if first >= len(items) {
			return nil
		}
		items = items[first:]
	}
	if limit, ok := q.MaxResults(); ok && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// RejectUnsupported fails with a capability violation when q uses selects,
// joins, group-bys or having that the backend cannot honor.
func RejectUnsupported(backend string, q *query.Query, canSelect, canJoin, canHaving bool) error {
	if len(q.Selects()) > 0 && !canSelect {
		return agenterr.CapabilityViolation(backend, "query select")
	}
	if len(q.Joins()) > 0 && !canJoin {
		return agenterr.CapabilityViolation(backend, "query join")
	}
	if (q.Having() != nil || len(q.GroupBys()) > 0) && !canHaving {
		return agenterr.CapabilityViolation(backend, "query having")
	}
	return nil
}
