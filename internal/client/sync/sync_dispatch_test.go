package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_FullSyncAuthFailure(t *testing.T) {
	f := newFixture(t)
	f.creds.FailNext(1)

	f.sched.dispatch(context.Background(), ActionFullSync)

	assert.Empty(t, f.syncer.FullCalls())
	require.Len(t, f.events.Finishes(), 1)
	assert.Equal(t, CodeAuthFailed, f.events.Finishes()[0].code)
	assert.Equal(t, "token expired", f.events.Finishes()[0].message)
	// the interval restarts even after a failed full sync
	assert.False(t, f.sched.Status().LastFullSync.IsZero())
}

func TestDispatch_FullSyncAssignsPrimaryKbGUID(t *testing.T) {
	f := newFixture(t)
	f.primary.guid = ""

	f.sched.dispatch(context.Background(), ActionFullSync)

	assert.Equal(t, "kb-primary", f.primary.KbGUID())
	assert.Len(t, f.syncer.FullCalls(), 1)
}

func TestDispatch_CertRefreshFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.syncer.certErr = errors.New("cert endpoint down")

	f.sched.dispatch(context.Background(), ActionFullSync)

	assert.Equal(t, 1, f.syncer.certCalls)
	assert.Len(t, f.syncer.FullCalls(), 1)
	require.Len(t, f.events.Finishes(), 1)
	assert.Equal(t, CodeOK, f.events.Finishes()[0].code)
}

func TestDispatch_FullSyncClearsFlag(t *testing.T) {
	f := newFixture(t)
	f.sched.RequestFullSync(false)
	require.Equal(t, ActionFullSync, f.sched.beginCycle())

	f.sched.dispatch(context.Background(), ActionFullSync)
	f.sched.endCycle()

	assert.False(t, f.sched.Status().NeedFullSync)
	assert.Equal(t, []bool{false}, f.syncer.FullCalls())
	assert.False(t, f.events.Finishes()[0].background)
}

func TestDispatch_QuickSyncContinuesAfterAuthFailure(t *testing.T) {
	f := newFixture(t)
	f.sched.RequestQuickSync("kbA")
	f.sched.RequestQuickSync("kbB")
	f.creds.FailNext(1)

	f.sched.dispatch(context.Background(), ActionQuickSync)

	// one target failed on credentials, the other one was synced
	calls := f.syncer.QuickCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, []string{"kbA", "kbB"}, calls[0].kbGUID)

	require.Len(t, f.events.Finishes(), 1)
	assert.Equal(t, CodeAuthFailed, f.events.Finishes()[0].code)

	// the failed target is consumed, not retried
	assert.Empty(t, f.sched.Status().PendingQuickSync)
	synced := f.primary.dbs[calls[0].kbGUID]
	assert.Equal(t, 1, synced.Saves())
}

func TestDispatch_QuickSyncReportsFirstError(t *testing.T) {
	f := newFixture(t)
	f.syncer.quickErr["kbA"] = errors.New("conflict on kbA")
	f.syncer.quickErr["kbB"] = errors.New("conflict on kbB")
	f.sched.RequestQuickSync("kbA")
	f.sched.RequestQuickSync("kbB")

	f.sched.dispatch(context.Background(), ActionQuickSync)

	assert.Len(t, f.syncer.QuickCalls(), 2)
	require.Len(t, f.events.Finishes(), 1)
	finish := f.events.Finishes()[0]
	assert.Equal(t, CodeSyncFailed, finish.code)
	assert.Regexp(t, `conflict on kb[AB]`, finish.message)
	assert.Equal(t, 0, f.primary.dbs["kbA"].Saves())
}

func TestDispatch_QuickSyncSkipsUnknownGroup(t *testing.T) {
	f := newFixture(t)
	f.sched.RequestQuickSync("kb-gone")

	f.sched.dispatch(context.Background(), ActionQuickSync)

	assert.Empty(t, f.syncer.QuickCalls())
	require.Len(t, f.events.Finishes(), 1)
	assert.Equal(t, CodeOK, f.events.Finishes()[0].code)
}

func TestDispatch_QuickSyncGroupUsesKnownServer(t *testing.T) {
	f := newFixture(t)
	f.sched.RequestQuickSync("kbA")

	f.sched.dispatch(context.Background(), ActionQuickSync)

	calls := f.syncer.QuickCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://a.example.com", calls[0].server)
	assert.Equal(t, 0, f.syncer.lookups)
	assert.True(t, f.primary.dbs["kbA"].closed)
	assert.Equal(t, 0, f.primary.OpenCount())
}

func TestDispatch_QuickSyncGroupEndpointFallback(t *testing.T) {
	f := newFixture(t)
	f.sched.RequestQuickSync("kbC")

	f.sched.dispatch(context.Background(), ActionQuickSync)

	calls := f.syncer.QuickCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://discovered.example.com/kbC", calls[0].server)
	assert.Equal(t, 1, f.syncer.lookups)
	assert.Equal(t, 1, f.primary.dbs["kbC"].Saves())
}

func TestDispatch_GroupDatabaseClosedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.syncer.quickErr["kbB"] = errors.New("boom")
	f.sched.RequestQuickSync("kbB")

	f.sched.dispatch(context.Background(), ActionQuickSync)

	assert.True(t, f.primary.dbs["kbB"].closed)
	assert.Equal(t, 0, f.primary.OpenCount())
}

func TestDispatch_DownloadMessages(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.sched.RequestMessageDownload())
	require.Equal(t, ActionDownloadMessages, f.sched.beginCycle())

	f.sched.dispatch(context.Background(), ActionDownloadMessages)
	f.sched.endCycle()

	assert.Equal(t, 1, f.syncer.Downloads())
	assert.Empty(t, f.events.Starts())
	assert.Empty(t, f.events.Finishes())
}

func TestDispatch_DownloadMessagesFailure(t *testing.T) {
	f := newFixture(t)
	f.syncer.downloadErr = errors.New("server unavailable")

	f.sched.dispatch(context.Background(), ActionDownloadMessages)

	assert.Empty(t, f.events.Starts())
	require.Len(t, f.events.Finishes(), 1)
	assert.Equal(t, CodeSyncFailed, f.events.Finishes()[0].code)
	assert.Contains(t, f.events.Finishes()[0].message, "server unavailable")
	assert.False(t, f.sched.Status().NeedDownloadMessages)
}

func TestDispatch_DownloadMessagesAuthFailure(t *testing.T) {
	f := newFixture(t)
	f.creds.FailNext(1)

	f.sched.dispatch(context.Background(), ActionDownloadMessages)

	assert.Equal(t, 0, f.syncer.Downloads())
	require.Len(t, f.events.Finishes(), 1)
	assert.Equal(t, CodeAuthFailed, f.events.Finishes()[0].code)
}

type panickingSyncer struct{ *fakeSyncer }

func (panickingSyncer) SyncAll(context.Context, *Identity, PrimaryDatabase, bool, EventSink) error {
	panic("collaborator bug")
}

func TestDispatch_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.sched.collab.Full = panickingSyncer{f.syncer}

	assert.NotPanics(t, func() {
		f.sched.dispatch(context.Background(), ActionFullSync)
	})
	// the deferred finish still reports the dispatch
	assert.Len(t, f.events.Finishes(), 1)
}

func TestAcquireIdentity_WrapsPlainErrors(t *testing.T) {
	f := newFixture(t)
	f.sched.collab.Credentials = credsFunc(func(context.Context) (*Identity, error) {
		return nil, errors.New("keychain locked")
	})

	_, err := f.sched.acquireIdentity(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, CodeAuthFailed, authErr.Code)
	assert.Equal(t, "keychain locked", authErr.Message)

	f.sched.collab.Credentials = credsFunc(func(context.Context) (*Identity, error) {
		return nil, nil
	})
	_, err = f.sched.acquireIdentity(context.Background())
	require.ErrorAs(t, err, &authErr)
}

type credsFunc func(context.Context) (*Identity, error)

func (f credsFunc) AcquireIdentity(ctx context.Context) (*Identity, error) { return f(ctx) }
func (f credsFunc) ClearCachedIdentity()                                   {}

func TestSyncSession_KeepsFirstError(t *testing.T) {
	s := newSyncSession(ActionQuickSync, nil, true, time.Now())
	assert.NotEmpty(t, s.ID)

	s.Fail(nil)
	assert.Equal(t, 0, s.Failures())

	s.Fail(NewAuthError("", "expired", nil))
	s.Fail(errors.New("second"))
	assert.Equal(t, 2, s.Failures())
	assert.Equal(t, CodeAuthFailed, s.ErrorCode())
	assert.Equal(t, "expired", s.ErrorMessage())
}
