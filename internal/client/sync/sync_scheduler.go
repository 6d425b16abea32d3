package sync

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	DefaultPollInterval      = 3 * time.Second
	DefaultFullSyncInterval  = 15 * time.Minute
	DefaultQuickSyncDebounce = time.Second
	DefaultDownloadCooldown  = 60 * time.Second

	// a full sync finished this recently makes SyncAfterStart a no-op
	syncAfterStartGrace = 5 * time.Second
	minWait             = time.Millisecond
)

type SchedulerOption func(*Scheduler)

// WithPollInterval sets the base tick at which the worker re-evaluates triggers.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithFullSyncInterval sets the interval after which a full sync runs on its own.
// Zero disables the interval trigger.
func WithFullSyncInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.fullSyncInterval = max(d, 0)
	}
}

// WithQuickSyncDebounce sets how long after the first quick sync request of a
// burst the worker wakes to drain the queue.
func WithQuickSyncDebounce(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.debounce = max(d, 0)
	}
}

// WithDownloadCooldown sets the window in which repeated message download requests are dropped.
func WithDownloadCooldown(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.cooldown = newDownloadCooldown(d)
	}
}

// WithDebugMode disables interval triggered full syncs and SyncAfterStart.
func WithDebugMode(debug bool) SchedulerOption {
	return func(s *Scheduler) {
		s.debugMode = debug
	}
}

// SchedulerStatus is a point in time snapshot of the scheduler.
type SchedulerStatus struct {
	Running              bool          `json:"running"`
	Paused               bool          `json:"paused"`
	Busy                 bool          `json:"busy"`
	NeedFullSync         bool          `json:"need_full_sync"`
	NeedDownloadMessages bool          `json:"need_download_messages"`
	PendingQuickSync     []string      `json:"pending_quick_sync"`
	LastFullSync         time.Time     `json:"last_full_sync"`
	LastQuickSyncRequest time.Time     `json:"last_quick_sync_request"`
	FullSyncInterval     time.Duration `json:"full_sync_interval"`
	DebugMode            bool          `json:"debug_mode"`
}

// Scheduler is the background sync worker. It runs a single goroutine that
// waits on a Gate, evaluates pending requests and runs at most one sync
// operation per cycle, so no two sync operations ever overlap.
type Scheduler struct {
	collab   Collaborators
	events   EventSink
	gate     *Gate
	cooldown *downloadCooldown
	now      func() time.Time

	pollInterval time.Duration
	debounce     time.Duration
	debugMode    bool

	// mu guards the request queue and the worker control state
	mu               sync.Mutex
	queue            *requestQueue
	fullSyncInterval time.Duration
	started          bool
	running          bool
	paused           bool
	busy             bool
	stopRequested    bool
	idle             chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewScheduler(collab Collaborators, opts ...SchedulerOption) (*Scheduler, error) {
	if err := collab.validate(); err != nil {
		return nil, err
	}

	events := collab.Events
	if events == nil {
		events = discardSink{}
	}

	s := &Scheduler{
		collab:           collab,
		events:           events,
		gate:             NewGate(),
		cooldown:         newDownloadCooldown(DefaultDownloadCooldown),
		now:              time.Now,
		pollInterval:     DefaultPollInterval,
		debounce:         DefaultQuickSyncDebounce,
		fullSyncInterval: DefaultFullSyncInterval,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.queue = newRequestQueue(s.now())
	return s, nil
}

// Start launches the worker goroutine. Cancelling ctx has the same effect as
// a stop request: the worker exits at the next cycle boundary.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRequested {
		return ErrSchedulerStopped
	}
	if s.running {
		return ErrSchedulerStarted
	}
	s.started = true
	s.running = true

	unwatch := context.AfterFunc(ctx, s.requestStop)

	go func() {
		defer unwatch()
		s.run(ctx)
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.done)
	}()

	// dispatches always run to completion, even when ctx is cancelled mid way
	dispatchCtx := context.WithoutCancel(ctx)

	slog.Info("sync scheduler start",
		"poll", s.pollInterval,
		"fullSyncInterval", s.FullSyncInterval(),
		"debounce", s.debounce,
		"debug", s.debugMode,
	)

	for {
		asleep := s.now()
		s.gate.WaitFor(s.stop, func() time.Duration {
			return s.nextWait(asleep)
		})

		if s.isStopRequested() {
			slog.Info("sync scheduler stop")
			return
		}

		action := s.beginCycle()
		if action == ActionNone {
			continue
		}

		s.dispatch(dispatchCtx, action)
		s.endCycle()
	}
}

// beginCycle evaluates the triggers and marks the worker busy when there is
// something to do. Pausing and going busy happen under the same lock, so a
// pause never races with the start of a dispatch.
func (s *Scheduler) beginCycle() SyncAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return ActionNone
	}

	action := s.queue.evaluate(s.now(), s.policyLocked())
	if action == ActionNone {
		return action
	}

	s.busy = true
	s.idle = make(chan struct{})
	workerBusy.Set(1)
	return action
}

func (s *Scheduler) endCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
	close(s.idle)
	workerBusy.Set(0)
}

// nextWait is the remaining sleep of a worker that went idle at asleep. The
// poll tick stays anchored at asleep, so recomputing on every Reschedule can
// only bring the wake forward.
func (s *Scheduler) nextWait(asleep time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	poll := s.pollInterval - now.Sub(asleep)
	if s.paused {
		return max(poll, minWait)
	}
	return s.queue.nextWakeup(now, poll, s.policyLocked())
}

func (s *Scheduler) policyLocked() triggerPolicy {
	return triggerPolicy{
		fullSyncInterval: s.fullSyncInterval,
		debugMode:        s.debugMode,
	}
}

// RequestFullSync asks for a full sync. A foreground request (background=false)
// is reported as such in the finish event.
func (s *Scheduler) RequestFullSync(background bool) {
	s.mu.Lock()
	s.queue.needFullSync = true
	s.queue.background = background
	s.mu.Unlock()

	observeRequest(ActionFullSync, true)
	slog.Debug("full sync requested", "background", background)
	s.gate.Wake()
}

// RequestQuickSync queues a quick sync of one knowledge base. An empty kbGUID
// means the primary database. Bursts are batched: the queue is drained at the
// next wake, which comes no later than the debounce period after the first
// request of the burst.
func (s *Scheduler) RequestQuickSync(kbGUID string) {
	s.mu.Lock()
	// only the first request of a burst arms a deadline the sleeping worker
	// does not know about yet
	wasIdle := !s.queue.hasQuickTargets()
	added := s.queue.addQuickTarget(kbGUID, s.now(), s.debounce)
	pendingQuickTargets.Set(float64(s.queue.pendingQuickTargets()))
	s.mu.Unlock()

	observeRequest(ActionQuickSync, added)
	slog.Debug("quick sync requested", "kb", kbGUID, "queued", added)
	if wasIdle {
		s.gate.Reschedule()
	}
}

// RequestMessageDownload asks for a message download. Requests arriving within
// the cooldown window of the last accepted one are dropped and false is returned.
func (s *Scheduler) RequestMessageDownload() bool {
	if !s.cooldown.allow(s.now()) {
		observeRequest(ActionDownloadMessages, false)
		return false
	}

	s.mu.Lock()
	s.queue.needDownloadMessages = true
	s.mu.Unlock()

	observeRequest(ActionDownloadMessages, true)
	s.gate.Wake()
	return true
}

// SyncAfterStart requests a foreground full sync, unless the scheduler runs in
// debug mode or a full sync has just finished.
func (s *Scheduler) SyncAfterStart() {
	if s.debugMode {
		return
	}

	s.mu.Lock()
	last := s.queue.lastFullSyncDone
	s.mu.Unlock()

	if !last.IsZero() && s.now().Sub(last) < syncAfterStartGrace {
		return
	}
	s.RequestFullSync(false)
}

// ClearCurrentToken drops the cached identity so that the next dispatch
// acquires fresh credentials.
func (s *Scheduler) ClearCurrentToken() {
	s.collab.Credentials.ClearCachedIdentity()
}

// Pause stops new dispatches from starting. A dispatch already running is not interrupted.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	slog.Info("sync scheduler paused")
}

// Resume lifts a pause. Requests submitted while paused are evaluated right away.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	slog.Info("sync scheduler resumed")
	s.gate.Wake()
}

func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsBusy reports whether a sync operation is executing right now.
func (s *Scheduler) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// WaitUntilIdleThenPause blocks until no sync operation is running and pauses
// the scheduler in the same critical section, so no dispatch can slip in
// between. It returns ctx.Err() if ctx ends first; the scheduler is then left unpaused.
func (s *Scheduler) WaitUntilIdleThenPause(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.busy {
			s.paused = true
			s.mu.Unlock()
			slog.Info("sync scheduler paused", "reason", "idle")
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetFullSyncIntervalMinutes changes the full sync interval. Zero or negative disables it.
func (s *Scheduler) SetFullSyncIntervalMinutes(minutes int) {
	s.mu.Lock()
	s.fullSyncInterval = time.Duration(max(minutes, 0)) * time.Minute
	s.mu.Unlock()

	// the worker may be sleeping towards the old deadline
	s.gate.Wake()
}

func (s *Scheduler) FullSyncInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullSyncInterval
}

// StopAndWait requests the worker to stop and waits for its goroutine to exit.
// A dispatch in progress is allowed to finish first. ctx bounds the wait only;
// the stop request itself is not withdrawn when ctx ends.
func (s *Scheduler) StopAndWait(ctx context.Context) error {
	s.requestStop()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) requestStop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopRequested = true
		s.mu.Unlock()
		close(s.stop)
	})
}

func (s *Scheduler) isStopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.queue.quickTargets.ToSlice()
	sort.Strings(pending)

	return &SchedulerStatus{
		Running:              s.running,
		Paused:               s.paused,
		Busy:                 s.busy,
		NeedFullSync:         s.queue.needFullSync,
		NeedDownloadMessages: s.queue.needDownloadMessages,
		PendingQuickSync:     pending,
		LastFullSync:         s.queue.lastFullSyncDone,
		LastQuickSyncRequest: s.queue.lastQuickSyncRequest,
		FullSyncInterval:     s.fullSyncInterval,
		DebugMode:            s.debugMode,
	}
}
