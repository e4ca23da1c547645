// Package intrin recognizes calls to built-in low-level operations and
// rewrites them into primitive target instructions.
//
// The resolver consults Lookup to decide whether a call names an intrinsic
// (user declarations shadow these names), then Resolve to validate the
// call's shape against the intrinsic's signature and to produce a Call
// record. The lowerer consumes the record through Expand, which yields the
// single raw instruction the call compiles to; no intrinsic survives as a
// function-level call in the assembled module.
package intrin
