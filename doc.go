// Package asynctools provides helper functions and types for common
// concurrent programming tasks: deadline guards, task handles and wait
// policies, a typed event emitter, cleanup stacks, queued lock modes,
// bounded offload of blocking work, and a pattern for clean asynchronous
// activation and shutdown of objects with blocking resources that must be
// cleanly released.
//
// The functionality lives in subpackages; this package holds no code.
package asynctools
