package silo

// CompileFlag controls compiler/loader behavior, matching the teacher's
// flag-constant style in internal/squashfs (zlibCompression, ...) rather
// than an options-struct-with-defaults abstraction.
type CompileFlag uint32

const (
	// NativeLangs keeps only elements whose xml:lang is in the
	// configured locale list.
	NativeLangs CompileFlag = 1 << iota
	// SingleLang implies NativeLangs; among same-name siblings, keeps
	// only the best-priority translation.
	SingleLang
	// IgnoreInvalid skips sources whose XML fails to parse rather than
	// failing the whole compile.
	IgnoreInvalid
	// WatchBlob monitors the output file after ensure() writes it,
	// invalidating the in-memory silo on change.
	WatchBlob
	// IgnoreGUID accepts a persisted silo even if its GUID does not
	// match the recomputed one, as long as it loads.
	IgnoreGUID
	// SingleRoot rejects compiles producing more than one root element.
	SingleRoot
	// NoMagic bypasses the magic/version header check on load, for
	// fuzzing and format-evolution testing.
	NoMagic
)

// Has reports whether f is set in c.
func (c CompileFlag) Has(f CompileFlag) bool { return c&f != 0 }

// QueryFlag controls one Query's compile and execution behavior.
type QueryFlag uint32

const (
	// Optimize folds constant-only predicate sub-sequences at compile
	// time by running the VM speculatively.
	Optimize QueryFlag = 1 << iota
	// UseIndexes promotes predicate text literals to resolved
	// string-table indices where possible, instead of comparing by
	// string content.
	UseIndexes
	// Reverse reverses the enumeration order of terminal results.
	Reverse
	// ForceNodeCache enables the per-silo node-identity cache for results
	// of this query even if the silo-wide default has it off.
	ForceNodeCache
)

// Has reports whether f is set in q.
func (q QueryFlag) Has(f QueryFlag) bool { return q&f != 0 }
