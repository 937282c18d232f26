// Package jsonrecover turns raw completion text into a structured value.
//
// Completion providers cut output at a token budget, sometimes in the middle
// of a structure, and wrap JSON in markdown fences. Sanitize strips the
// fences; Parse recovers the longest syntactically valid document from what
// is left and returns it as a Value, a tagged union over the JSON kinds.
package jsonrecover
