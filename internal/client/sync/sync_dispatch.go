package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// dispatch runs one sync operation on the worker goroutine. Whatever happens in
// the collaborators is absorbed here and reported through the event sink; a
// panicking collaborator is logged and the worker carries on.
func (s *Scheduler) dispatch(ctx context.Context, action SyncAction) {
	tStart := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panic: %v", r)
			slog.Error("sync dispatch panic", "action", action, "panic", r)
		}
		observeDispatch(action, err, time.Since(tStart))
	}()

	switch action {
	case ActionFullSync:
		slog.Debug("full sync started")
		err = s.syncAll(ctx)
	case ActionQuickSync:
		slog.Debug("quick sync started")
		err = s.quickSync(ctx)
	case ActionDownloadMessages:
		slog.Debug("message download started")
		err = s.downloadMessages(ctx)
	}

	if err != nil {
		slog.Warn("sync dispatch failed", "action", action, "error", err, "took", time.Since(tStart))
	} else {
		slog.Debug("sync dispatch done", "action", action, "took", time.Since(tStart))
	}
}

// acquireIdentity asks the credential service for a fresh identity. Any
// failure is returned as an *AuthError.
func (s *Scheduler) acquireIdentity(ctx context.Context) (*Identity, error) {
	id, err := s.collab.Credentials.AcquireIdentity(ctx)
	if err == nil && id == nil {
		err = errors.New("no identity")
	}
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			err = NewAuthError(CodeAuthFailed, err.Error(), err)
		}
		return nil, err
	}
	return id, nil
}

func (s *Scheduler) prepareIdentity(ctx context.Context, session *SyncSession) bool {
	id, err := s.acquireIdentity(ctx)
	if err != nil {
		session.Fail(err)
		return false
	}
	session.Identity = id
	return true
}

func (s *Scheduler) finish(session *SyncSession) {
	s.events.OnFinish(session.ErrorCode(), session.ErrorMessage(), session.Background)
}

func (s *Scheduler) syncAll(ctx context.Context) error {
	s.mu.Lock()
	background := s.queue.background
	s.queue.needFullSync = false
	s.mu.Unlock()

	primary := s.collab.Primary
	session := newSyncSession(ActionFullSync, primary, background, s.now())
	s.events.OnStart(true)

	defer func() {
		// the interval restarts from the end of this sync, whatever its outcome
		s.mu.Lock()
		s.queue.markFullSyncDone(s.now())
		s.mu.Unlock()
		s.finish(session)
	}()

	if !s.prepareIdentity(ctx, session) {
		return session.Err()
	}

	if primary.KbGUID() == "" && session.Identity.KbGUID != "" {
		if err := primary.SetKbGUID(session.Identity.KbGUID); err != nil {
			slog.Warn("assign primary kb guid", "error", err)
		}
	}

	s.refreshUserCert(ctx, session)

	if err := s.collab.Full.SyncAll(ctx, session.Identity, primary, background, s.events); err != nil {
		session.Fail(fmt.Errorf("full sync: %w", err))
	}

	return session.Err()
}

// refreshUserCert is best effort; a failure is logged and the sync goes on.
func (s *Scheduler) refreshUserCert(ctx context.Context, session *SyncSession) {
	if s.collab.Certs == nil {
		return
	}
	if err := s.collab.Certs.RefreshUserCert(ctx, session.Identity, s.collab.Primary); err != nil {
		slog.Warn("user cert refresh failed", "error", err)
	}
}

// quickSync drains the whole quick sync queue, including targets that arrive
// while draining. A failing target does not stop the drain.
func (s *Scheduler) quickSync(ctx context.Context) error {
	session := newSyncSession(ActionQuickSync, s.collab.Primary, true, s.now())
	s.events.OnStart(false)
	defer s.finish(session)

	for {
		kbGUID, ok := s.popQuickTarget()
		if !ok {
			break
		}
		if err := s.quickSyncTarget(ctx, session, kbGUID); err != nil {
			slog.Warn("quick sync", "kb", kbGUID, "error", err)
			session.Fail(err)
		}
	}

	if n := session.Failures(); n > 0 {
		slog.Debug("quick sync drained with failures", "failures", n)
	}
	return session.Err()
}

func (s *Scheduler) popQuickTarget() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kbGUID, ok := s.queue.popQuickTarget()
	pendingQuickTargets.Set(float64(s.queue.pendingQuickTargets()))
	return kbGUID, ok
}

func (s *Scheduler) quickSyncTarget(ctx context.Context, session *SyncSession, kbGUID string) error {
	// credentials may have expired since the previous target
	id, err := s.acquireIdentity(ctx)
	if err != nil {
		return err
	}
	session.Identity = id

	primary := s.collab.Primary
	if kbGUID == "" || kbGUID == primary.KbGUID() {
		if err := s.collab.Quick.SyncOne(ctx, primary, id, s.events, false, true); err != nil {
			return fmt.Errorf("quick sync primary: %w", err)
		}
		if err := primary.SaveLastSyncTime(s.now()); err != nil {
			slog.Warn("save last sync time", "kb", primary.KbGUID(), "error", err)
		}
		return nil
	}

	group, err := s.collab.Groups.ResolveGroup(kbGUID)
	if errors.Is(err, ErrGroupNotFound) {
		slog.Debug("quick sync skipped", "kb", kbGUID, "reason", "group not found")
		return nil
	} else if err != nil {
		return fmt.Errorf("resolve group %s: %w", kbGUID, err)
	}

	groupDB, err := primary.OpenGroupDatabase(group)
	if err != nil {
		return fmt.Errorf("open group database %s: %w", kbGUID, err)
	}
	defer func() {
		if err := primary.CloseGroupDatabase(groupDB); err != nil {
			slog.Warn("close group database", "kb", kbGUID, "error", err)
		}
	}()

	server := group.DatabaseServer
	if server == "" {
		server, err = s.collab.Endpoints.LookupEndpoint(ctx, id.Token, kbGUID)
		if err != nil {
			return fmt.Errorf("lookup endpoint %s: %w", kbGUID, err)
		}
	}

	groupID := id.WithKnowledgeBase(kbGUID, server)
	if err := s.collab.Quick.SyncOne(ctx, groupDB, groupID, s.events, true, true); err != nil {
		return fmt.Errorf("quick sync group %s: %w", kbGUID, err)
	}
	if err := groupDB.SaveLastSyncTime(s.now()); err != nil {
		slog.Warn("save last sync time", "kb", kbGUID, "error", err)
	}
	return nil
}

func (s *Scheduler) downloadMessages(ctx context.Context) error {
	session := newSyncSession(ActionDownloadMessages, s.collab.Primary, true, s.now())

	defer func() {
		s.mu.Lock()
		s.queue.needDownloadMessages = false
		s.mu.Unlock()
	}()

	if !s.prepareIdentity(ctx, session) {
		s.finish(session)
		return session.Err()
	}

	if err := s.collab.Messages.DownloadMessages(ctx, session.Identity, s.collab.Primary, s.events); err != nil {
		session.Fail(fmt.Errorf("download messages: %w", err))
		s.finish(session)
	}
	return session.Err()
}
