// Package protoshape gives protobuf messages a duck-typed face.
//
// Message wraps compiled or dynamicpb messages through the protobuf
// reflection API; DynamicMessage wraps messages built from descriptors at
// run time. Both resolve member names to fields by proto name, JSON name
// or the snake case form of a Go name, so "DisplayName", "displayName"
// and "display_name" all reach the same field.
//
// Registering Adapter on a dispatch.Cache makes raw messages dispatchable
// and dressable without wrapping them first.
package protoshape
