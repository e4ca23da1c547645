// Package wasm models the target binary module format: value types,
// instructions with their immediates, and the section-based container.
//
// The model mirrors the format one-to-one so the encoder stays a plain
// serializer. Function bodies are flat []Instr slices using structured
// control (block/loop/if with relative branch depths); the final
// end-of-body terminator is appended by the encoder, not stored.
//
// Validate replays a body against the format's typing rules and is the
// main safety net for code generation: every produced module is expected
// to pass it.
package wasm
