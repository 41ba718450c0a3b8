// Package transpiler turns a scenario into an engine mission script.
//
// Transpiling never fails. Every missing or malformed value falls back to a
// default, so a half-filled form still produces a runnable script.
package transpiler
