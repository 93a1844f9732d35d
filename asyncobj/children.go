package asyncobj

import (
	"io"
	"sync"
)

// GetShutdownWG returns the WaitGroup that holds off final completion of
// shutdown. Callers may Add to it to delay completion until matching Done
// calls are made; doing so does not prevent shutdown from starting. The
// caller is responsible for not adding after StateShutDown is entered;
// most callers should prefer AddShutdownChildChan, which enforces that.
func (h *Helper) GetShutdownWG() *sync.WaitGroup {
	return &h.wg
}

// AddShutdownChildChan registers a chan that must be closed (by the caller)
// before this object's shutdown is considered complete. The helper takes no
// action to close it. Fails if StateShutDown has already been reached.
func (h *Helper) AddShutdownChildChan(childDoneChan <-chan struct{}) error {
	h.DLogf("asyncobj: AddShutdownChildChan()")
	h.Lock.Lock()
	if h.state >= StateShutDown {
		h.Lock.Unlock()
		return h.Errorf("cannot add shutdown child chan: shutdown already complete")
	}
	h.wg.Add(1)
	h.Lock.Unlock()
	go func() {
		<-childDoneChan
		h.wg.Done()
	}()
	return nil
}

// AddAsyncShutdownChild registers a dependent AsyncShutdowner that will be
// actively shut down by this helper after local shutdown, before this
// object's shutdown is considered complete. The child receives the final
// completion status as its advisory status; the child's own completion
// status is ignored. Fails if StateShutDown has already been reached.
func (h *Helper) AddAsyncShutdownChild(child AsyncShutdowner) error {
	h.DLogf("asyncobj: AddAsyncShutdownChild(%v)", child)
	h.Lock.Lock()
	if h.state >= StateShutDown {
		h.Lock.Unlock()
		return h.Errorf("cannot add async shutdown child: shutdown already complete")
	}
	h.wg.Add(1)
	h.Lock.Unlock()
	go func() {
		select {
		case <-child.ShutdownDoneChan():
			// Child shut down on its own before our local shutdown
			// finished; nothing left to wait for.
			h.DLogf("asyncobj: child already shut down: %v", child)
		case <-h.localDone:
			h.DLogf("asyncobj: local shutdown done, shutting down child %v", child)
			child.StartShutdown(h.finalErr)
			if err := child.WaitShutdown(); err != nil {
				h.DLogf("asyncobj: child %v shut down with error: %s", child, err)
			}
		}
		h.wg.Done()
	}()
	return nil
}

// AddSyncCloseChild registers a dependent io.Closer that will be closed by
// this helper after local shutdown, before this object's shutdown is
// considered complete. Each child is closed in its own goroutine, in
// parallel with other dependents. Fails if StateShutDown has already been
// reached.
func (h *Helper) AddSyncCloseChild(child io.Closer) error {
	h.DLogf("asyncobj: AddSyncCloseChild(%v)", child)
	h.Lock.Lock()
	if h.state >= StateShutDown {
		h.Lock.Unlock()
		return h.Errorf("cannot add sync close child: shutdown already complete")
	}
	h.wg.Add(1)
	h.Lock.Unlock()
	go func() {
		<-h.localDone
		if err := child.Close(); err != nil {
			h.DLogf("asyncobj: close of child %v failed: %s", child, err)
		}
		h.wg.Done()
	}()
	return nil
}
