package main

import "runtime"

// collectGarbage backs the shell's gc() global. The engine's heap is traced
// by the host collector; an explicit cycle is all an embedder can request.
func collectGarbage() {
	runtime.GC()
}
