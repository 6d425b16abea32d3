package sync

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/time/rate"
)

// requestQueue is the pending work of the scheduler.
// It is not safe for concurrent use; the scheduler guards it with its mutex.
type requestQueue struct {
	needFullSync         bool
	background           bool
	needDownloadMessages bool
	quickTargets         mapset.Set[string]
	lastFullSync         time.Time
	lastFullSyncDone     time.Time
	lastQuickSyncRequest time.Time
	quickSyncDeadline    time.Time
}

func newRequestQueue(now time.Time) *requestQueue {
	return &requestQueue{
		background:   true,
		quickTargets: mapset.NewThreadUnsafeSet[string](),
		lastFullSync: now,
	}
}

// addQuickTarget inserts kbGUID. The first target of a burst arms the debounce
// deadline; later requests join the burst without moving it. It reports
// whether kbGUID was not already pending.
func (q *requestQueue) addQuickTarget(kbGUID string, now time.Time, debounce time.Duration) bool {
	if q.quickTargets.Cardinality() == 0 {
		q.quickSyncDeadline = now.Add(debounce)
	}
	q.lastQuickSyncRequest = now
	return q.quickTargets.Add(kbGUID)
}

// popQuickTarget removes and returns an arbitrary pending target.
func (q *requestQueue) popQuickTarget() (string, bool) {
	return q.quickTargets.Pop()
}

func (q *requestQueue) pendingQuickTargets() int {
	return q.quickTargets.Cardinality()
}

func (q *requestQueue) hasQuickTargets() bool {
	return q.quickTargets.Cardinality() > 0
}

// fullSyncDeadline is the instant at which the interval triggers a full sync.
// The zero time means the interval trigger is disabled.
func (q *requestQueue) fullSyncDeadline(interval time.Duration) time.Time {
	if interval <= 0 {
		return time.Time{}
	}
	return q.lastFullSync.Add(interval)
}

// markFullSyncDone re-arms the interval trigger relative to now.
func (q *requestQueue) markFullSyncDone(now time.Time) {
	q.lastFullSync = now
	q.lastFullSyncDone = now
}

// downloadCooldown drops message download requests that arrive too close to
// the last accepted one. The limiter carries its own lock, so it does not
// contend with the scheduler mutex.
type downloadCooldown struct {
	limiter *rate.Limiter
}

func newDownloadCooldown(window time.Duration) *downloadCooldown {
	limit := rate.Inf
	if window > 0 {
		limit = rate.Every(window)
	}
	return &downloadCooldown{limiter: rate.NewLimiter(limit, 1)}
}

func (c *downloadCooldown) allow(now time.Time) bool {
	return c.limiter.AllowN(now, 1)
}
