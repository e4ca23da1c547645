// Package layout assigns every byte its place: class instance layouts,
// array and string object shapes, and the static region of linear memory.
//
// The Engine computes value shapes and one descriptor per declared class.
// Descriptors walk the inheritance chain base first; inherited fields keep
// their inherited offsets exactly, new fields follow at naturally aligned
// offsets, and the instance size rounds up to the strictest alignment.
//
// The Plan owns static memory. BuildPlan walks a checked program and
// places string literal objects (deduplicated, UTF-16LE payloads), one
// cell per global, and fully seeded objects for constant global
// initializers. The pipeline freezes the plan before lowering starts;
// lowering and linking read addresses from it but can no longer append,
// and the frozen high-water mark, rounded to the heap grain, becomes the
// runtime allocator's first byte.
package layout
