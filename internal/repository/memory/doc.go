// Package memory implements every repository port in process memory.
//
// The implementations keep the same guarded compare-and-set semantics as the
// GORM adapters, so services behave identically on both. Stored values are
// copied on the way in and out; callers never share pointers with the store.
package memory
