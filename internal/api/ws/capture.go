package ws

import (
	"sync"

	"consent-reading-service/internal/service/reading"
	"consent-reading-service/internal/service/stt"
)

// textCapture implements reading.Capture for text mode: the browser runs the
// recognizer and forwards its events, which are routed to the session
// callback of the phase they belong to.
type textCapture struct {
	mu    sync.Mutex
	phase uint64
	cb    stt.Callback
}

func (t *textCapture) StartListening(req reading.ListenRequest, cb stt.Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = req.Phase
	t.cb = cb
	return nil
}

func (t *textCapture) StopListening() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cb = nil
}

// callback returns the session callback for phase, where zero means the
// current phase. Nil if the phase is closed or stale.
func (t *textCapture) callback(phase uint64) stt.Callback {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb == nil || (phase != 0 && phase != t.phase) {
		return nil
	}
	return t.cb
}

func (t *textCapture) fragment(phase uint64, text string, isFinal bool) bool {
	cb := t.callback(phase)
	if cb == nil {
		return false
	}
	if isFinal {
		cb.OnFinal(text, 1)
	} else {
		cb.OnPartial(text)
	}
	return true
}

func (t *textCapture) fail(phase uint64, err error) bool {
	cb := t.callback(phase)
	if cb == nil {
		return false
	}
	cb.OnError(err)
	return true
}

func (t *textCapture) end(phase uint64) bool {
	cb := t.callback(phase)
	if cb == nil {
		return false
	}
	cb.OnEnd()
	return true
}
