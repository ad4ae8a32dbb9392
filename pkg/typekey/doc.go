// Package typekey provides canonical, comparable identifiers for types.
//
// A Key is one of:
//
//   - a constructor: Int, String, scala.concurrent.ExecutionContext
//   - an application: List<Int>, Map<String, Int>, Eq<Int, Int>
//   - a generic parameter: ?A
//
// Keys are interned process-wide. Two keys are == iff they denote the same
// type including parameterization, so List<Int> != List<String> and no
// widening is ever implied by equality. Keys of different kinds never
// compare equal, and names must match the Parse grammar: Con, App and
// Param return the zero Key for anything else, e.g. Con("List<Int>").
//
//	k := typekey.App("List", typekey.Con("Int"))
//	k == typekey.MustParse("List<Int>") // true
package typekey
