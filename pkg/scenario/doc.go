// Package scenario reads and writes the sectioned key/value scenario file
// that describes a mission: spacecraft state, propagator settings, two
// optional impulsive burns and the report file.
//
// # File format
//
//	=== GENERAL ===
//	Nombre nave: Sat
//	Cuerpo central: Tierra
//
//	=== IMPULSIVE BURN ===
//	Delta V Element 1: 0.1
//	Tiempo burn: 0.5
//
// Banners select a section; "key: value" lines are split on the first colon.
// Values are kept as raw strings. Interpretation happens in the transpiler.
//
// # Components
//
// Schema validates values against a CUE definition of the form vocabulary.
//
// Overrides runs a Starlark script that can edit a scenario before it is
// transpiled.
package scenario
