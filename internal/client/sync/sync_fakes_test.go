package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	mu       sync.Mutex
	guid     string
	lastSync time.Time
	saves    int
	closed   bool
}

func (d *fakeDB) KbGUID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guid
}

func (d *fakeDB) SaveLastSyncTime(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSync = t
	d.saves++
	return nil
}

func (d *fakeDB) Saves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}

// fakePrimary is both the primary database and the group resolver.
type fakePrimary struct {
	fakeDB
	groups map[string]*GroupDescriptor
	dbs    map[string]*fakeDB
	open   int
}

func newFakePrimary(guid string, groups ...*GroupDescriptor) *fakePrimary {
	p := &fakePrimary{
		fakeDB: fakeDB{guid: guid},
		groups: make(map[string]*GroupDescriptor),
		dbs:    make(map[string]*fakeDB),
	}
	for _, g := range groups {
		p.groups[g.KbGUID] = g
		p.dbs[g.KbGUID] = &fakeDB{guid: g.KbGUID}
	}
	return p
}

func (p *fakePrimary) SetKbGUID(guid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guid = guid
	return nil
}

func (p *fakePrimary) ResolveGroup(kbGUID string) (*GroupDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[kbGUID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

func (p *fakePrimary) OpenGroupDatabase(group *GroupDescriptor) (Database, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	db := p.dbs[group.KbGUID]
	db.mu.Lock()
	db.closed = false
	db.mu.Unlock()
	p.open++
	return db, nil
}

func (p *fakePrimary) CloseGroupDatabase(db Database) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fdb := db.(*fakeDB)
	fdb.mu.Lock()
	fdb.closed = true
	fdb.mu.Unlock()
	p.open--
	return nil
}

func (p *fakePrimary) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

type fakeCreds struct {
	mu       sync.Mutex
	failures int
	calls    int
	cleared  int
}

func (c *fakeCreds) AcquireIdentity(ctx context.Context) (*Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		return nil, NewAuthError(CodeAuthFailed, "token expired", nil)
	}
	return &Identity{Token: "tok", UserID: "alice@example.com", KbGUID: "kb-primary"}, nil
}

func (c *fakeCreds) ClearCachedIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
}

func (c *fakeCreds) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
}

type quickCall struct {
	kbGUID  string
	isGroup bool
	server  string
}

// fakeSyncer implements the full, quick, message, endpoint and cert collaborators.
type fakeSyncer struct {
	mu          sync.Mutex
	fullCalls   []bool
	quickCalls  []quickCall
	downloads   int
	lookups     int
	certCalls   int
	fullErr     error
	quickErr    map[string]error
	downloadErr error
	certErr     error

	// when set, SyncAll signals entered and blocks until release is closed
	entered chan struct{}
	release chan struct{}
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{quickErr: make(map[string]error)}
}

func (f *fakeSyncer) blockFullSync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = make(chan struct{}, 1)
	f.release = make(chan struct{})
}

func (f *fakeSyncer) SyncAll(ctx context.Context, id *Identity, primary PrimaryDatabase, background bool, events EventSink) error {
	f.mu.Lock()
	f.fullCalls = append(f.fullCalls, background)
	entered, release, err := f.entered, f.release, f.fullErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return err
}

func (f *fakeSyncer) SyncOne(ctx context.Context, db Database, id *Identity, events EventSink, isGroup bool, quick bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quickCalls = append(f.quickCalls, quickCall{kbGUID: db.KbGUID(), isGroup: isGroup, server: id.DatabaseServer})
	return f.quickErr[db.KbGUID()]
}

func (f *fakeSyncer) DownloadMessages(ctx context.Context, id *Identity, primary PrimaryDatabase, events EventSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return f.downloadErr
}

func (f *fakeSyncer) LookupEndpoint(ctx context.Context, token string, kbGUID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if token == "" {
		return "", errors.New("no token")
	}
	return "https://discovered.example.com/" + kbGUID, nil
}

func (f *fakeSyncer) RefreshUserCert(ctx context.Context, id *Identity, primary PrimaryDatabase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certCalls++
	return f.certErr
}

func (f *fakeSyncer) FullCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.fullCalls...)
}

func (f *fakeSyncer) QuickCalls() []quickCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]quickCall(nil), f.quickCalls...)
}

func (f *fakeSyncer) Downloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

type finishEvent struct {
	code       string
	message    string
	background bool
}

type recordingSink struct {
	mu       sync.Mutex
	starts   []bool
	finishes []finishEvent
	texts    []string
}

func (r *recordingSink) OnStart(fullSync bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, fullSync)
}

func (r *recordingSink) OnFinish(code string, message string, background bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes = append(r.finishes, finishEvent{code, message, background})
}

func (r *recordingSink) OnStatusText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingSink) OnPromptMessage(PromptKind, string, string) {}
func (r *recordingSink) OnBubbleNotification(any)                   {}

func (r *recordingSink) Starts() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.starts...)
}

func (r *recordingSink) Finishes() []finishEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]finishEvent(nil), r.finishes...)
}

type schedulerFixture struct {
	sched   *Scheduler
	syncer  *fakeSyncer
	primary *fakePrimary
	creds   *fakeCreds
	events  *recordingSink
}

const (
	testPoll     = 20 * time.Millisecond
	testDebounce = 50 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

func newFixture(t *testing.T, opts ...SchedulerOption) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		syncer: newFakeSyncer(),
		primary: newFakePrimary("kb-primary",
			&GroupDescriptor{KbGUID: "kbA", Name: "A", DatabaseServer: "https://a.example.com"},
			&GroupDescriptor{KbGUID: "kbB", Name: "B", DatabaseServer: "https://b.example.com"},
			&GroupDescriptor{KbGUID: "kbC", Name: "C"},
		),
		creds:  &fakeCreds{},
		events: &recordingSink{},
	}

	defaults := []SchedulerOption{
		WithPollInterval(testPoll),
		WithQuickSyncDebounce(testDebounce),
		WithFullSyncInterval(0),
	}

	sched, err := NewScheduler(Collaborators{
		Primary:     f.primary,
		Credentials: f.creds,
		Full:        f.syncer,
		Quick:       f.syncer,
		Messages:    f.syncer,
		Groups:      f.primary,
		Endpoints:   f.syncer,
		Certs:       f.syncer,
		Events:      f.events,
	}, append(defaults, opts...)...)
	require.NoError(t, err)
	f.sched = sched
	return f
}

func (f *schedulerFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sched.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.sched.StopAndWait(ctx)
	})
}
