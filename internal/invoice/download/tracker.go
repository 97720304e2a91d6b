// Package download tracks and performs per-invoice PDF downloads.
package download

import (
	"slices"
	"sync"
	"time"

	"github.com/smallbiznis/billingportal/internal/clock"
	"github.com/smallbiznis/billingportal/internal/invoice/domain"
)

type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusError       Status = "error"
)

// State is the download state of one invoice row.
type State struct {
	InvoiceID int64     `json:"invoiceId"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Since     time.Time `json:"since"`
}

// Tracker is the idle -> downloading -> idle|error state machine for each invoice id.
// Rows never stay in downloading once End has run.
type Tracker struct {
	mu     sync.Mutex
	clock  clock.Clock
	states map[int64]State
}

func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.System()
	}
	return &Tracker{clock: clk, states: make(map[int64]State)}
}

// Begin moves id into downloading. It fails with domain.ErrDownloadInProgress
// when a download for id is already running.
func (t *Tracker) Begin(invoiceID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.states[invoiceID]; ok && cur.Status == StatusDownloading {
		return domain.ErrDownloadInProgress
	}
	t.states[invoiceID] = State{InvoiceID: invoiceID, Status: StatusDownloading, Since: t.clock.Now()}
	return nil
}

// End leaves downloading: back to idle on success, to error otherwise.
func (t *Tracker) End(invoiceID int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		delete(t.states, invoiceID)
		return
	}
	t.states[invoiceID] = State{
		InvoiceID: invoiceID,
		Status:    StatusError,
		Error:     err.Error(),
		Since:     t.clock.Now(),
	}
}

func (t *Tracker) State(invoiceID int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.states[invoiceID]; ok {
		return cur
	}
	return State{InvoiceID: invoiceID, Status: StatusIdle}
}

// Busy reports whether the row's download control must be disabled.
func (t *Tracker) Busy(invoiceID int64) bool {
	return t.State(invoiceID).Status == StatusDownloading
}

// Snapshot returns every non-idle state ordered by invoice id.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	out := make([]State, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, s)
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b State) int {
		switch {
		case a.InvoiceID < b.InvoiceID:
			return -1
		case a.InvoiceID > b.InvoiceID:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Registry holds one Tracker per user, since invoice ids are only unique per user.
type Registry struct {
	mu       sync.Mutex
	clock    clock.Clock
	trackers map[int64]*Tracker
}

func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{clock: clk, trackers: make(map[int64]*Tracker)}
}

func (r *Registry) For(userID int64) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(userID)
}

// Begin starts invoiceID in the user's tracker. It runs under the registry
// lock so Prune cannot drop the tracker between lookup and Begin; a tracker
// with a running download is never pruned afterwards.
func (r *Registry) Begin(userID, invoiceID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(userID).Begin(invoiceID)
}

func (r *Registry) End(userID, invoiceID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup(userID).End(invoiceID, err)
}

// lookup needs r.mu held.
func (r *Registry) lookup(userID int64) *Tracker {
	t, ok := r.trackers[userID]
	if !ok {
		t = NewTracker(r.clock)
		r.trackers[userID] = t
	}
	return t
}

// prune forgets error rows recorded before cutoff and reports how many rows remain.
func (t *Tracker) prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, s := range t.states {
		if s.Status == StatusError && s.Since.Before(cutoff) {
			delete(t.states, id)
		}
	}
	return len(t.states)
}

// Prune drops error rows older than maxAge and then every tracker left empty.
// It returns the number of trackers removed.
func (r *Registry) Prune(maxAge time.Duration) int {
	now := clock.System().Now()
	if r.clock != nil {
		now = r.clock.Now()
	}
	cutoff := now.Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for userID, t := range r.trackers {
		if t.prune(cutoff) == 0 {
			delete(r.trackers, userID)
			removed++
		}
	}
	return removed
}
