package emitter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/sammck-go/asynctools/asyncobj"
	"github.com/sammck-go/asynctools/log"
)

// ErrClosed is wrapped by errors returned from registration or emission on
// an emitter that has been closed.
var ErrClosed = errors.New("emitter closed")

// Listener handles events of type E. A non-nil return value is wrapped in
// a ListenerError and re-emitted.
type Listener[E any] func(ctx context.Context, event E) error

// Subscription identifies a registered listener so it can be removed.
type Subscription struct {
	// ID uniquely identifies this registration.
	ID uuid.UUID

	// Type is the event type the listener is registered for.
	Type reflect.Type

	// Scope is the dot-separated scope the listener was registered in; the
	// empty string is the unscoped (most generic) scope.
	Scope string
}

// NewListener is emitted by the Emitter itself just before a listener is
// registered.
type NewListener struct {
	// Type is the event type being subscribed to.
	Type reflect.Type

	// Subscription identifies the new registration.
	Subscription Subscription
}

// ListenerError is emitted when a listener fails. If no listener is
// registered for ListenerError, the failure is returned from Emit instead.
type ListenerError struct {
	// Event is the event whose listener failed.
	Event interface{}

	// Subscription identifies the failing listener.
	Subscription Subscription

	// Err is the listener's failure.
	Err error
}

func (e ListenerError) Error() string {
	return fmt.Sprintf("listener for %T failed: %s", e.Event, e.Err)
}

func (e ListenerError) Unwrap() error {
	return e.Err
}

type registration struct {
	sub      Subscription
	scopeKey string
	once     bool
	call     func(ctx context.Context, event interface{}) error
}

// Emitter dispatches events to registered listeners. It is safe for
// concurrent use. The zero value is not usable; construct with New.
//
// An Emitter has an asynchronous lifecycle: Close (or StartShutdown)
// removes all listeners and makes further registration and emission fail
// with ErrClosed.
type Emitter struct {
	asyncobj.Helper

	// regs maps registered event type, then scope key, to listeners in
	// registration order. Guarded by Helper.Lock.
	regs map[reflect.Type]map[string][]*registration

	// ifaceOrder lists registered interface event types in first-seen
	// order, so generic listeners run in a stable order.
	ifaceOrder []reflect.Type
}

// New creates an Emitter. A nil logger disables the emitter's own logging.
func New(logger log.Logger) *Emitter {
	em := &Emitter{
		regs: make(map[reflect.Type]map[string][]*registration),
	}
	em.InitHelperWithShutdownHandler(em, logger, em.handleOnceShutdown)
	// Construct-time activation: the emitter is usable immediately.
	_ = em.SetIsActivated()
	return em
}

func (em *Emitter) handleOnceShutdown(completionErr error) error {
	em.Lock.Lock()
	em.regs = make(map[reflect.Type]map[string][]*registration)
	em.ifaceOrder = nil
	em.Lock.Unlock()
	return completionErr
}

// OnOption adjusts listener registration.
type OnOption func(*onOpts)

type onOpts struct {
	scope string
	once  bool
}

// WithScope registers the listener in the given dot-separated scope. The
// listener only runs for emissions directed at that scope or deeper.
func WithScope(scope string) OnOption {
	return func(o *onOpts) { o.scope = scope }
}

// Once removes the listener after its first execution.
func Once() OnOption {
	return func(o *onOpts) { o.once = true }
}

// On registers a listener for events of type E. If E is an interface type,
// the listener fires for every emitted event that implements it. The
// returned Subscription can be passed to Off.
//
// Registration itself emits a NewListener event before the listener is
// added, so the new listener does not observe its own registration.
func On[E any](em *Emitter, listener Listener[E], opts ...OnOption) (Subscription, error) {
	if listener == nil {
		return Subscription{}, errors.New("emitter: nil listener")
	}
	typ := reflect.TypeOf((*E)(nil)).Elem()
	call := func(ctx context.Context, event interface{}) error {
		return listener(ctx, event.(E))
	}
	return em.register(typ, call, opts)
}

func (em *Emitter) register(
	typ reflect.Type,
	call func(ctx context.Context, event interface{}) error,
	opts []OnOption,
) (Subscription, error) {
	var o onOpts
	for _, opt := range opts {
		opt(&o)
	}

	if em.IsStartedShutdown() {
		return Subscription{}, fmt.Errorf("emitter: register: %w", ErrClosed)
	}

	sub := Subscription{ID: uuid.New(), Type: typ, Scope: o.scope}

	// Announce before adding, per the NewListener contract.
	em.emitInternal(context.Background(), NewListener{Type: typ, Subscription: sub}, nil)

	reg := &registration{
		sub:      sub,
		scopeKey: o.scope,
		once:     o.once,
		call:     call,
	}

	em.Lock.Lock()
	byScope, ok := em.regs[typ]
	if !ok {
		byScope = make(map[string][]*registration)
		em.regs[typ] = byScope
		if typ.Kind() == reflect.Interface {
			em.ifaceOrder = append(em.ifaceOrder, typ)
		}
	}
	byScope[o.scope] = append(byScope[o.scope], reg)
	em.Lock.Unlock()

	return sub, nil
}

// Off removes the listener identified by sub, reporting whether a removal
// occurred.
func (em *Emitter) Off(sub Subscription) bool {
	em.Lock.Lock()
	defer em.Lock.Unlock()
	return em.lockedRemoveID(sub.Type, sub.ID)
}

func (em *Emitter) lockedRemoveID(typ reflect.Type, id uuid.UUID) bool {
	byScope, ok := em.regs[typ]
	if !ok {
		return false
	}
	for key, regs := range byScope {
		for i, r := range regs {
			if r.sub.ID == id {
				byScope[key] = append(regs[:i:i], regs[i+1:]...)
				em.lockedCleanup(typ, key)
				return true
			}
		}
	}
	return false
}

func (em *Emitter) lockedCleanup(typ reflect.Type, key string) {
	byScope := em.regs[typ]
	if len(byScope[key]) == 0 {
		delete(byScope, key)
	}
	if len(byScope) == 0 {
		delete(em.regs, typ)
		for i, it := range em.ifaceOrder {
			if it == typ {
				em.ifaceOrder = append(em.ifaceOrder[:i:i], em.ifaceOrder[i+1:]...)
				break
			}
		}
	}
}

// RemoveAll removes every listener registered for event type E, in all
// scopes, reporting whether any removal occurred.
func RemoveAll[E any](em *Emitter) bool {
	typ := reflect.TypeOf((*E)(nil)).Elem()
	em.Lock.Lock()
	defer em.Lock.Unlock()
	if _, ok := em.regs[typ]; !ok {
		return false
	}
	em.regs[typ] = make(map[string][]*registration)
	em.lockedCleanup(typ, "")
	return true
}

// RemoveAllListeners removes every listener for every event type,
// reporting whether any removal occurred.
func (em *Emitter) RemoveAllListeners() bool {
	em.Lock.Lock()
	defer em.Lock.Unlock()
	removed := len(em.regs) > 0
	em.regs = make(map[reflect.Type]map[string][]*registration)
	em.ifaceOrder = nil
	return removed
}

// Listeners returns the subscriptions registered for event type E, in all
// scopes.
func Listeners[E any](em *Emitter) []Subscription {
	typ := reflect.TypeOf((*E)(nil)).Elem()
	em.Lock.Lock()
	defer em.Lock.Unlock()
	var out []Subscription
	for _, regs := range em.regs[typ] {
		for _, r := range regs {
			out = append(out, r.sub)
		}
	}
	return out
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Split(scope, ".")
}

// collect snapshots the listeners eligible for an emission, most generic
// first: interface-type listeners the event implements, then the concrete
// type's listeners; within a type, outer scopes before inner; within a
// scope, registration order. Once-listeners are unregistered as part of
// the snapshot.
func (em *Emitter) collect(evType reflect.Type, scope []string) []*registration {
	em.Lock.Lock()
	defer em.Lock.Unlock()

	var out []*registration
	for _, it := range em.ifaceOrder {
		if evType != it && evType.Implements(it) {
			out = append(out, em.lockedLayered(it, scope)...)
		}
	}
	out = append(out, em.lockedLayered(evType, scope)...)

	for _, r := range out {
		if r.once {
			em.lockedRemoveID(r.sub.Type, r.sub.ID)
		}
	}
	return out
}

func (em *Emitter) lockedLayered(typ reflect.Type, scope []string) []*registration {
	byScope, ok := em.regs[typ]
	if !ok {
		return nil
	}
	var out []*registration
	for i := 0; i <= len(scope); i++ {
		key := strings.Join(scope[:i], ".")
		out = append(out, byScope[key]...)
	}
	return out
}

// Emit dispatches event to all eligible unscoped listeners and reports
// whether any listener ran.
//
// Listener failures are wrapped in ListenerError and re-emitted; if no
// ListenerError listener is registered, the failures are joined into the
// returned error. An emitted event that itself implements error and finds
// no listener is returned as an error, so failures are never silently
// dropped.
func (em *Emitter) Emit(ctx context.Context, event interface{}) (bool, error) {
	return em.EmitScoped(ctx, event, "")
}

// EmitScoped is Emit directed at a dot-separated scope: listeners
// registered at the empty scope, and at every prefix of scope, run in
// most-generic-first order.
func (em *Emitter) EmitScoped(ctx context.Context, event interface{}, scope string) (bool, error) {
	if event == nil {
		return false, errors.New("emitter: nil event")
	}
	if em.IsStartedShutdown() {
		return false, fmt.Errorf("emitter: emit: %w", ErrClosed)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	regs := em.collect(reflect.TypeOf(event), splitScope(scope))
	handled := len(regs) > 0

	var errs []error
	for _, r := range regs {
		if err := runListener(ctx, r, event); err != nil {
			le := ListenerError{Event: event, Subscription: r.sub, Err: err}
			if !em.emitInternal(ctx, le, &errs) {
				errs = append(errs, le)
			}
		}
	}

	if !handled {
		if everr, ok := event.(error); ok {
			return false, fmt.Errorf("emitter: no listener for error event %T: %w", event, everr)
		}
	}
	return handled, errors.Join(errs...)
}

// emitInternal dispatches an emitter-generated event. Failures of
// listeners handling internal events are appended to errs when provided,
// or logged, rather than re-emitted, which bounds recursion. Returns
// whether any listener ran.
func (em *Emitter) emitInternal(ctx context.Context, event interface{}, errs *[]error) bool {
	regs := em.collect(reflect.TypeOf(event), nil)
	for _, r := range regs {
		if err := runListener(ctx, r, event); err != nil {
			if errs != nil {
				*errs = append(*errs, ListenerError{Event: event, Subscription: r.sub, Err: err})
			} else {
				em.ELogf("emitter: listener for internal event %T failed: %s", event, err)
			}
		}
	}
	return len(regs) > 0
}

// runListener invokes a listener, converting a panic into an error so one
// bad listener cannot take down the emitting goroutine.
func runListener(ctx context.Context, r *registration, event interface{}) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panicked: %v", p)
		}
	}()
	return r.call(ctx, event)
}
