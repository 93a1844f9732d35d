// Package asyncobj provides tools for building and managing objects with
// asynchronous lifecycles. It implements a pattern for exactly-once
// activation and clean asynchronous shutdown of objects that hold blocking
// resources which must be released in a controlled order, including
// shutdown of registered dependent objects.
package asyncobj
