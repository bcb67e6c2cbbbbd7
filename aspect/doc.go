// Package aspect intercepts dynamically dispatched member access.
//
// A Weaver maps members of a target type to aspects that run before,
// instead of, or after each access. Aspects are ordered by Category
// through an Ordering; categories an Ordering does not mention run last,
// by category number. Once CreateFactory has been called the Weaver is
// frozen and further Weave calls fail.
package aspect
