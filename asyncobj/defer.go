package asyncobj

// DeferShutdown increments the shutdown defer count, preventing shutdown
// from starting until a matching UndeferShutdown. It fails once shutdown
// has started. Deferring does not prevent a shutdown from being scheduled
// with StartShutdown; it only postpones the actual start.
func (h *Helper) DeferShutdown() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	if h.state >= StateShuttingDown {
		return h.Errorf("cannot defer: %w", ErrShuttingDown)
	}
	h.deferCount++
	return nil
}

// UndeferShutdown decrements the shutdown defer count. When the count
// reaches zero and a shutdown has been scheduled, shutdown begins.
func (h *Helper) UndeferShutdown() {
	h.Lock.Lock()
	if h.deferCount < 1 {
		h.Lock.Unlock()
		h.Panic("asyncobj: UndeferShutdown without matching DeferShutdown")
		return
	}
	h.deferCount--
	doNow := h.deferCount == 0 && h.scheduled && h.state < StateShuttingDown
	if doNow {
		h.lockedEnterShuttingDown()
	}
	h.Lock.Unlock()

	if doNow {
		h.runStartedShutdown()
	}
}

// UndeferAndStartShutdown releases one shutdown deferral and immediately
// schedules shutdown. Suitable for use in a defer statement paired with
// DeferShutdown.
func (h *Helper) UndeferAndStartShutdown(completionErr error) {
	h.StartShutdown(completionErr)
	h.UndeferShutdown()
}

// UndeferAndLocalShutdown releases one shutdown deferral, schedules
// shutdown, and waits for local shutdown only, returning the final
// completion status. The caller must not hold further unreleasable
// deferrals, or a deadlock results. Suitable for use in a defer statement
// paired with DeferShutdown.
func (h *Helper) UndeferAndLocalShutdown(completionErr error) error {
	h.UndeferAndStartShutdown(completionErr)
	return h.WaitLocalShutdown()
}

// UndeferAndShutdown releases one shutdown deferral, schedules shutdown,
// and waits for it to complete, returning the final completion status. The
// caller must not hold further unreleasable deferrals, or a deadlock
// results. Suitable for use in a defer statement paired with DeferShutdown.
func (h *Helper) UndeferAndShutdown(completionErr error) error {
	h.UndeferAndStartShutdown(completionErr)
	return h.WaitShutdown()
}

// UndeferAndLocalShutdownIfNotActivated releases one shutdown deferral and,
// if the helper never activated, schedules shutdown. When not activated the
// return value is the final completion status if waitOnFail is true
// (waiting for local shutdown only), or completionErr otherwise; when
// activated it is nil. The caller must not pass waitOnFail=true while
// holding further unreleasable deferrals.
func (h *Helper) UndeferAndLocalShutdownIfNotActivated(completionErr error, waitOnFail bool) error {
	activated := h.IsActivated()
	if !activated {
		h.StartShutdown(completionErr)
	}
	h.UndeferShutdown()
	if activated {
		return nil
	}
	if waitOnFail {
		return h.WaitLocalShutdown()
	}
	return completionErr
}

// UndeferAndShutdownIfNotActivated releases one shutdown deferral and, if
// the helper never activated, schedules shutdown. When not activated the
// return value is the final completion status if waitOnFail is true, or
// completionErr otherwise; when activated it is nil. The caller must not
// pass waitOnFail=true while holding further unreleasable deferrals.
func (h *Helper) UndeferAndShutdownIfNotActivated(completionErr error, waitOnFail bool) error {
	activated := h.IsActivated()
	if !activated {
		h.StartShutdown(completionErr)
	}
	h.UndeferShutdown()
	if activated {
		return nil
	}
	if waitOnFail {
		return h.WaitShutdown()
	}
	return completionErr
}

// UndeferAndWaitLocalShutdown releases one shutdown deferral and waits for
// local shutdown, without initiating it, returning the final completion
// status. Intended for waiting out the natural life of the object. The
// caller must not hold further unreleasable deferrals.
func (h *Helper) UndeferAndWaitLocalShutdown() error {
	h.UndeferShutdown()
	return h.WaitLocalShutdown()
}

// UndeferAndWaitShutdown releases one shutdown deferral and waits for full
// shutdown, without initiating it, returning the final completion status.
// Intended for waiting out the natural life of the object. The caller must
// not hold further unreleasable deferrals.
func (h *Helper) UndeferAndWaitShutdown() error {
	h.UndeferShutdown()
	return h.WaitShutdown()
}
