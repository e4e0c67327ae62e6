// Package agent defines the storage-agnostic persistence contract.
//
// An Agent finds, persists, removes and queries objects of logical entity
// types without exposing which engine stores them. Backends live under
// internal/backend and each compiles query.Expression trees into its native
// filter form through internal/compile.
//
// # Staging
//
// Persist and Remove only record intent. Flush commits everything staged.
// EventDispatchingAgent relies on this split to notify listeners between
// staging and commit.
//
// # Capabilities
//
// Backends differ: not all count, join or hold a hierarchy. Callers inspect
// Capabilities before issuing such requests, and agents enforce them by
// failing with agenterr.CodeCapabilityViolation.
//
// # Registry
//
// Registry maps entity types to agents. It is built once from an ordered
// list and never mutated.
package agent
