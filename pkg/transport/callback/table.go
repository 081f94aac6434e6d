// Package callback tracks in-flight requests awaiting a reply, pairing
// each pending request with a completion function and a per-subject
// phi-accrual timeout monitor so a sweep pass can fail requests that have
// likely been dropped rather than waiting on a fixed deadline alone.
package callback

import (
	"sync"
	"time"

	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// Complete is invoked exactly once per registered id, either with the
// decoded reply payload and status or with a terminal error.
type Complete func(payload []byte, status wire.Status, err error)

// maxAdaptiveTimeout caps how long a no-deadline ("adaptive") request can
// stay pending regardless of what the subject's phi-accrual monitor says,
// matching the fixed max-timeout bound a static deadline would otherwise
// enforce.
const maxAdaptiveTimeout = 5 * time.Second

// minAdaptiveCheck is the shortest elapsed time worth asking the monitor
// about; requests younger than this are never considered even if a
// monitor would otherwise flag them.
const minAdaptiveCheck = 100 * time.Millisecond

type pending struct {
	subject  string
	sentAt   time.Time
	timeout  time.Duration // 0 means adaptive: judged by elapsed + the subject's monitor
	complete Complete
}

// Table is the callback registry for one connection: every outstanding
// request id maps to the function that will resolve its future, plus the
// subject-scoped monitor used to judge whether a given elapsed time looks
// like a timeout.
type Table struct {
	mu       sync.Mutex
	pendingM map[uint64]*pending
	monitors map[string]*RequestMonitor
	lastSeen map[string]time.Time
}

// NewTable returns an empty callback table.
func NewTable() *Table {
	return &Table{
		pendingM: make(map[uint64]*pending),
		monitors: make(map[string]*RequestMonitor),
		lastSeen: make(map[string]time.Time),
	}
}

// Register records a new pending request. timeout is the caller's own
// deadline for this request; a zero timeout means the caller supplied
// none, so Sweep judges it adaptively against the subject's phi-accrual
// monitor instead of a fixed point in time.
func (t *Table) Register(id uint64, subject string, timeout time.Duration, complete Complete) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pendingM[id] = &pending{
		subject:  subject,
		sentAt:   now,
		timeout:  timeout,
		complete: complete,
	}
	t.lastSeen[subject] = now
	if _, ok := t.monitors[subject]; !ok {
		t.monitors[subject] = newRequestMonitor(now)
	}
}

// Complete resolves a pending request with its reply, feeding the observed
// latency back into that subject's monitor. Returns false if id was not
// (or is no longer) registered, e.g. because it already timed out.
func (t *Table) Complete(id uint64, payload []byte, status wire.Status) bool {
	now := time.Now()
	t.mu.Lock()
	p, ok := t.pendingM[id]
	if ok {
		delete(t.pendingM, id)
		if m, ok := t.monitors[p.subject]; ok {
			m.addReplyTime(now.Sub(p.sentAt), now)
		}
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	p.complete(payload, status, nil)
	return true
}

// Fail resolves a pending request with a terminal error without touching
// its subject's latency history. Returns false if id was not registered.
func (t *Table) Fail(id uint64, err error) bool {
	t.mu.Lock()
	p, ok := t.pendingM[id]
	if ok {
		delete(t.pendingM, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	p.complete(nil, 0, err)
	return true
}

// CloseAll fails every currently pending request with err, e.g. when the
// owning connection is closed. The table is left empty afterward.
func (t *Table) CloseAll(err error) {
	t.mu.Lock()
	drained := t.pendingM
	t.pendingM = make(map[uint64]*pending)
	t.mu.Unlock()

	for _, p := range drained {
		p.complete(nil, 0, err)
	}
}

// monitorExpiryCutoff reports whether a subject's monitor has gone unused
// long enough to be dropped from the table.
func (t *Table) monitorExpiryCutoff(subject string, now time.Time) bool {
	last, ok := t.lastSeen[subject]
	return ok && now.Sub(last) > monitorExpiry
}

// Expired identifies a request Sweep failed, so callers that need more
// than a bare count (e.g. per-subject metrics) don't have to re-derive it.
type Expired struct {
	ID      uint64
	Subject string
}

// Sweep fails every pending request that has timed out and drops any
// monitor that has not been touched recently. A request with a static
// timeout (timeout > 0) is judged against that fixed point in time; a
// request registered with no timeout is judged adaptively: it fails once
// elapsed exceeds maxAdaptiveTimeout, or earlier if its subject's
// phi-accrual monitor flags it as overdue. It returns the requests that
// were failed so the caller can log or count them.
func (t *Table) Sweep() []Expired {
	now := time.Now()
	var timedOut []*pending
	var expired []Expired

	t.mu.Lock()
	for id, p := range t.pendingM {
		elapsed := now.Sub(p.sentAt)
		var isExpired bool
		if p.timeout > 0 {
			isExpired = elapsed > p.timeout
		} else {
			// Adaptive: the subject's phi-accrual monitor still accumulates
			// reply-time history via Complete, but with the window capped
			// at 10 samples and phi() gated at 25 it never actually fires
			// before maxAdaptiveTimeout (see phiMinSamples).
			m := t.monitors[p.subject]
			isExpired = elapsed > maxAdaptiveTimeout ||
				(elapsed > minAdaptiveCheck && m != nil && m.isTimedOut(elapsed))
		}
		if !isExpired {
			continue
		}
		delete(t.pendingM, id)
		timedOut = append(timedOut, p)
		expired = append(expired, Expired{ID: id, Subject: p.subject})
	}
	for subject := range t.monitors {
		if t.monitorExpiryCutoff(subject, now) {
			delete(t.monitors, subject)
			delete(t.lastSeen, subject)
		}
	}
	t.mu.Unlock()

	for _, p := range timedOut {
		p.complete(nil, 0, errs.New(errs.KindTimeout, "request timed out"))
	}
	return expired
}

// Len reports the number of currently pending requests. Intended for tests
// and metrics gauges, not for control flow.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pendingM)
}
