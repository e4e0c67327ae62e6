package agenterr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code Code
		want string
	}{
		{"invalid argument", InvalidArgument("bad %s", "thing"), CodeInvalidArgument, "bad thing"},
		{"unknown keys", UnknownKeys("query keys", []string{"a", "b"}, []string{"from"}), CodeInvalidArgument, `unknown query keys "a", "b", valid keys: "from"`},
		{"not found", ObjectNotFound("page", 3), CodeObjectNotFound, `could not find object of type "page" with identifier "3"`},
		{"not found untyped", ObjectNotFound("", "x"), CodeObjectNotFound, `could not find object with identifier "x"`},
		{"capability", CapabilityViolation("memory", "query count"), CodeCapabilityViolation, "query count is not supported by the memory agent"},
		{"comparator", ComparatorNotSupported("sqlite", "nin"), CodeCapabilityViolation, `comparator "nin" is not supported by the sqlite agent`},
		{"mandatory", MandatoryArgument("document", "entityType", 7), CodeMandatoryArgument, `the "entityType" argument is mandatory for the document agent (called with identifier "7")`},
		{"no parent", NoParentMapping("document", "tag"), CodeNoParentMapping, `type "tag" does not have a parent mapping`},
		{"composite id", CompositeIdentifier("sqlite", "link", []string{"a", "b"}), CodeUnsupportedIdentifier, `composite identifiers are not supported (type "link", key fields "a", "b")`},
		{"agent not found", AgentNotFound("user", []string{"sqlite", "memory"}), CodeAgentNotFound, `could not find an agent for "user", registered agents: "sqlite", "memory"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.want, tt.err.Message)
			assert.Equal(t, string(tt.code)+": "+tt.want, tt.err.Error())
		})
	}
}

func TestDetails(t *testing.T) {
	err := ObjectNotFound("page", 3)
	assert.Equal(t, "page", err.EntityType)
	assert.Equal(t, 3, err.Identifier)

	cv := CapabilityViolation("memory", "query count")
	assert.Equal(t, "memory", cv.Implementation)
	assert.Equal(t, "query count", cv.Capability)

	assert.Equal(t, map[string]string{"fields": "a,b"}, CompositeIdentifier("x", "link", []string{"a", "b"}).Details)
	assert.Equal(t, "a,b", UnknownKeys("k", []string{"a", "b"}, nil).Details["unknown"])
}

func TestPredicates(t *testing.T) {
	predicates := map[Code]func(error) bool{
		CodeInvalidArgument:       IsInvalidArgument,
		CodeObjectNotFound:        IsObjectNotFound,
		CodeCapabilityViolation:   IsCapabilityViolation,
		CodeAgentNotFound:         IsAgentNotFound,
		CodeMandatoryArgument:     IsMandatoryArgument,
		CodeNoParentMapping:       IsNoParentMapping,
		CodeUnsupportedIdentifier: IsUnsupportedIdentifier,
	}

	for code, is := range predicates {
		t.Run(string(code), func(t *testing.T) {
			err := &Error{Code: code}
			assert.True(t, is(err))
			assert.True(t, is(fmt.Errorf("wrapped: %w", err)), "predicates see through wrapping")
			assert.False(t, is(fmt.Errorf("plain")))
			assert.False(t, is(nil))
			for other := range predicates {
				if other != code {
					assert.False(t, is(&Error{Code: other}))
				}
			}
		})
	}
}
