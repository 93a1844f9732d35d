// Package emitter provides a typed event emitter for event-driven
// programming: listeners are registered against an event type and executed
// synchronously, in registration order, whenever a value of that type is
// emitted.
//
// Events are ordinary values dispatched by their concrete type. A listener
// registered for an interface type fires for any emitted event that
// implements it, letting general listeners observe whole families of
// events.
//
// Scopes narrow listener execution: a listener registered in scope "a.b"
// only runs for emissions directed at scope "a.b" or deeper, while
// unscoped listeners run for every emission of their event type. Scoped
// emissions execute listeners from the most generic scope inward.
//
// The emitter itself emits NewListener whenever a listener is registered,
// and wraps listener failures in ListenerError events that can themselves
// be listened for.
package emitter
