// Package remote presents gRPC services as duck-typed objects: calling a
// member invokes the unary RPC of that name. Descriptors come from the
// caller or from server reflection.
package remote
