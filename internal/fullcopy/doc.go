// Package fullcopy implements the single-threaded full-copy checkpoint engine.
//
// Each cycle pauses the child, mirrors the attached regions of the child's
// stack area, linker area and address space, copies their memory and the
// register state of every thread, and resumes the child. There is no dirty
// tracking across cycles: plain dataspaces are copied whole and managed
// dataspaces copy their attached sub-regions, which are detached afterwards.
//
// Regions attaching the same dataspace share one destination copy. The copy
// is freed when the last region referring to it disappears.
package fullcopy
