// Package builder constructs dynamic values.
//
// Object and List build expando containers, Prototype and As turn member
// projections into a dressed value, Activate creates instances through
// the Constructor kind, and Curry partially applies functions or members.
package builder
