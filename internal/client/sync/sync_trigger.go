package sync

import "time"

// SyncAction is the single operation chosen for a worker cycle.
type SyncAction int

const (
	ActionNone SyncAction = iota
	ActionFullSync
	ActionQuickSync
	ActionDownloadMessages
)

func (a SyncAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionFullSync:
		return "full_sync"
	case ActionQuickSync:
		return "quick_sync"
	case ActionDownloadMessages:
		return "download_messages"
	default:
		return "unknown"
	}
}

// triggerPolicy holds the tunables the evaluator needs.
type triggerPolicy struct {
	fullSyncInterval time.Duration
	debugMode        bool
}

// evaluate picks at most one action, first match wins:
// full sync, quick sync, message download.
//
// Pending quick sync targets are drained on any wake; the debounce deadline
// only bounds how long the worker sleeps (see nextWakeup).
// An elapsed interval turns into a background full sync request. The message
// download flag is consumed here so that concurrent requests arriving during
// the download do not trigger it twice.
func (q *requestQueue) evaluate(now time.Time, policy triggerPolicy) SyncAction {
	if q.needFullSync {
		return ActionFullSync
	}

	// interval auto sync is disabled in debug mode
	if !policy.debugMode {
		deadline := q.fullSyncDeadline(policy.fullSyncInterval)
		if !deadline.IsZero() && !now.Before(deadline) {
			q.needFullSync = true
			q.background = true
			return ActionFullSync
		}
	}

	if q.hasQuickTargets() {
		return ActionQuickSync
	}

	if q.needDownloadMessages {
		q.needDownloadMessages = false
		return ActionDownloadMessages
	}

	return ActionNone
}

// nextWakeup returns how long the worker may sleep before a deadline needs
// evaluating, capped at poll.
func (q *requestQueue) nextWakeup(now time.Time, poll time.Duration, policy triggerPolicy) time.Duration {
	wait := poll

	if !policy.debugMode {
		if deadline := q.fullSyncDeadline(policy.fullSyncInterval); !deadline.IsZero() {
			wait = min(wait, deadline.Sub(now))
		}
	}

	if q.hasQuickTargets() {
		wait = min(wait, q.quickSyncDeadline.Sub(now))
	}

	return max(wait, minWait)
}
