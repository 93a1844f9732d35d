// Package task provides lightweight handles for goroutine-backed
// computations: spawning, awaiting with a context, cancellation with a
// cause, a process-wide registry of live tasks, careful multi-task wait
// policies, and a structured spawn group.
package task
