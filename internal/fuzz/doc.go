// Package fuzztests houses fuzz harnesses for the compiler's untrusted
// input boundary: the encoded program pack. The decoder must reject
// arbitrary bytes with an error, never a panic, and any pack it accepts
// must re-encode to a stable byte form.
//
// The harnesses seed from programmatically built packs plus a few
// deliberately broken mutations; everything else is the fuzzer's job.
package fuzztests
