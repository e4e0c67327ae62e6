// Package agenterr defines the error taxonomy shared by the query model,
// the compilers and every agent backend.
//
// All errors are *Error values carrying a Code. Callers inspect them with the
// IsXxx helpers, which use errors.As and therefore see through wrapping.
package agenterr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an agent error.
type Code string

const (
	// CodeInvalidArgument indicates a malformed Query, Expression, Join or
	// Capabilities construction. Always raised at construction time.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeObjectNotFound indicates a find target does not exist.
	CodeObjectNotFound Code = "OBJECT_NOT_FOUND"

	// CodeCapabilityViolation indicates a structurally valid request the
	// backend does not support.
	CodeCapabilityViolation Code = "CAPABILITY_VIOLATION"

	// CodeAgentNotFound indicates a registry lookup failed.
	CodeAgentNotFound Code = "AGENT_NOT_FOUND"

	// CodeMandatoryArgument indicates an optional-by-signature argument the
	// backend requires was omitted (e.g. the entity type for find).
	CodeMandatoryArgument Code = "MANDATORY_ARGUMENT"

	// CodeNoParentMapping indicates setParent on a hierarchical backend for a
	// type without a parent mapping.
	CodeNoParentMapping Code = "NO_PARENT_MAPPING"

	// CodeUnsupportedIdentifier indicates an identifier shape the contract
	// cannot represent, such as a composite primary key.
	CodeUnsupportedIdentifier Code = "UNSUPPORTED_IDENTIFIER"
)

// Error is the structured error returned by agents and the query model.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// EntityType is the logical type involved, if any.
	EntityType string

	// Identifier is the object identifier involved, if any.
	Identifier any

	// Implementation names the backend that raised the error.
	Implementation string

	// Capability names the offending capability (e.g. "queryCount" or a
	// comparator).
	Capability string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsInvalidArgument returns true if err is an invalid-argument error.
func IsInvalidArgument(err error) bool { return hasCode(err, CodeInvalidArgument) }

// IsObjectNotFound returns true if err is an object-not-found error.
func IsObjectNotFound(err error) bool { return hasCode(err, CodeObjectNotFound) }

// IsCapabilityViolation returns true if err is a capability violation.
func IsCapabilityViolation(err error) bool { return hasCode(err, CodeCapabilityViolation) }

// IsAgentNotFound returns true if err is an agent-not-found error.
func IsAgentNotFound(err error) bool { return hasCode(err, CodeAgentNotFound) }

// IsMandatoryArgument returns true if err is a mandatory-argument error.
func IsMandatoryArgument(err error) bool { return hasCode(err, CodeMandatoryArgument) }

// IsNoParentMapping returns true if err is a no-parent-mapping error.
func IsNoParentMapping(err error) bool { return hasCode(err, CodeNoParentMapping) }

// IsUnsupportedIdentifier returns true if err is an unsupported-identifier error.
func IsUnsupportedIdentifier(err error) bool { return hasCode(err, CodeUnsupportedIdentifier) }

// InvalidArgument creates an invalid-argument error.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

// UnknownKeys creates an invalid-argument error for a construction map that
// carries keys outside the allowed set.
func UnknownKeys(what string, unknown, valid []string) *Error {
	return &Error{
		Code: CodeInvalidArgument,
		Message: fmt.Sprintf(`unknown %s "%s", valid keys: "%s"`,
			what, strings.Join(unknown, `", "`), strings.Join(valid, `", "`)),
		Details: map[string]string{
			"unknown": strings.Join(unknown, ","),
			"valid":   strings.Join(valid, ","),
		},
	}
}

// ObjectNotFound creates an object-not-found error. An empty entityType
// produces the type-less message.
func ObjectNotFound(entityType string, identifier any) *Error {
	msg := fmt.Sprintf("could not find object with identifier %q", fmt.Sprint(identifier))
	if entityType != "" {
		msg = fmt.Sprintf("could not find object of type %q with identifier %q", entityType, fmt.Sprint(identifier))
	}
	return &Error{
		Code:       CodeObjectNotFound,
		Message:    msg,
		EntityType: entityType,
		Identifier: identifier,
	}
}

// CapabilityViolation creates an error for an operation the implementation
// does not support.
func CapabilityViolation(implementation, capability string) *Error {
	return &Error{
		Code:           CodeCapabilityViolation,
		Message:        fmt.Sprintf("%s is not supported by the %s agent", capability, implementation),
		Implementation: implementation,
		Capability:     capability,
	}
}

// ComparatorNotSupported creates a capability violation for a comparator that
// is valid in the AST but unsupported by the backend compiler.
func ComparatorNotSupported(implementation, comparator string) *Error {
	return &Error{
		Code:           CodeCapabilityViolation,
		Message:        fmt.Sprintf("comparator %q is not supported by the %s agent", comparator, implementation),
		Implementation: implementation,
		Capability:     comparator,
	}
}

// MandatoryArgument creates an error for a required argument that was omitted.
func MandatoryArgument(implementation, argument string, identifier any) *Error {
	return &Error{
		Code: CodeMandatoryArgument,
		Message: fmt.Sprintf("the %q argument is mandatory for the %s agent (called with identifier %q)",
			argument, implementation, fmt.Sprint(identifier)),
		Implementation: implementation,
		Identifier:     identifier,
	}
}

// NoParentMapping creates an error for setParent on a type that has no
// parent-mapped field.
func NoParentMapping(implementation, entityType string) *Error {
	return &Error{
		Code:           CodeNoParentMapping,
		Message:        fmt.Sprintf("type %q does not have a parent mapping", entityType),
		EntityType:     entityType,
		Implementation: implementation,
	}
}

// CompositeIdentifier creates an error for an entity type whose primary key
// spans several fields.
func CompositeIdentifier(implementation, entityType string, fields []string) *Error {
	return &Error{
		Code: CodeUnsupportedIdentifier,
		Message: fmt.Sprintf(`composite identifiers are not supported (type %q, key fields "%s")`,
			entityType, strings.Join(fields, `", "`)),
		EntityType:     entityType,
		Implementation: implementation,
		Details:        map[string]string{"fields": strings.Join(fields, ",")},
	}
}

// AgentNotFound creates a registry lookup error enumerating the candidates.
func AgentNotFound(lookup string, registered []string) *Error {
	return &Error{
		Code: CodeAgentNotFound,
		Message: fmt.Sprintf(`could not find an agent for %q, registered agents: "%s"`,
			lookup, strings.Join(registered, `", "`)),
		EntityType: lookup,
	}
}
