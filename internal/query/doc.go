// Package query provides the backend-neutral query model: the criteria
// expression AST and the immutable Query value that carries it to an agent.
//
// ARCHITECTURE:
//
//	[caller] → [Query + Expression AST] → [backend compiler] → [native filter]
//
// The AST has exactly two node types:
//   - Comparison(comparator, field, value) - a single predicate
//   - Composite(and|or, children...)       - a boolean grouping
//
// Expression is a sealed interface (marker method), so compilers switch over
// the two variants exhaustively and no other package can add a third.
//
// VALIDATION:
//
// All validation happens at construction time. Compare rejects unknown
// comparators and non-sequence values for in/nin, NewComposite rejects unknown
// types and nil children, NewJoin rejects unknown join types, New and CloneWith
// reject negative pagination and unknown directions. Failures are
// agenterr.CodeInvalidArgument errors and never surface at execution.
//
// FIELDS:
//
// A field without a separator ("title") refers to the query's primary source;
// a dotted field ("p.title") names a joined alias and is passed through
// verbatim by every compiler.
//
// EMPTY COMPOSITES:
//
// And() and Or() with no children are legal. Every compiler renders their
// boolean identity: AND of nothing is true, OR of nothing is false.
//
// IMMUTABILITY:
//
// Query parts are set through Options only. CloneWith copies every part by
// value before applying overrides, so the original and the clone never share
// slices. Query values are safe to share between goroutines.
package query
