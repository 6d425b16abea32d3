package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/kbsync/internal/kbstore"

	ksync "github.com/openmined/kbsync/internal/client/sync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	mu         sync.Mutex
	full       []bool
	quick      []string
	downloads  int
	accept     bool
	paused     bool
	interval   int
	waitErr    error
	waitCalled bool
}

func (f *fakeController) RequestFullSync(background bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = append(f.full, background)
}

func (f *fakeController) RequestQuickSync(kbGUID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quick = append(f.quick, kbGUID)
}

func (f *fakeController) RequestMessageDownload() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return f.accept
}

func (f *fakeController) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeController) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

func (f *fakeController) WaitUntilIdleThenPause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitCalled = true
	if f.waitErr != nil {
		return f.waitErr
	}
	f.paused = true
	return nil
}

func (f *fakeController) SetFullSyncIntervalMinutes(minutes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = minutes
}

func (f *fakeController) Status() *ksync.SchedulerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ksync.SchedulerStatus{
		Running:          true,
		Paused:           f.paused,
		NeedFullSync:     len(f.full) > 0,
		PendingQuickSync: append([]string{}, f.quick...),
		FullSyncInterval: time.Duration(f.interval) * time.Minute,
	}
}

type fakeRecords struct {
	records map[string]map[string]*kbstore.Record
	putErr  error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: make(map[string]map[string]*kbstore.Record)}
}

func (f *fakeRecords) GetRecord(kbGUID, id string) (*kbstore.Record, error) {
	rec, ok := f.records[kbGUID][id]
	if !ok {
		return nil, kbstore.ErrRecordNotFound
	}
	return rec, nil
}

func (f *fakeRecords) PutRecord(kbGUID string, r *kbstore.Record) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.records[kbGUID] == nil {
		f.records[kbGUID] = make(map[string]*kbstore.Record)
	}
	cp := *r
	cp.Dirty = true
	f.records[kbGUID][r.ID] = &cp
	return nil
}

type fakeMessages struct {
	msgs     []*kbstore.Message
	gotLimit int
}

func (f *fakeMessages) Messages(limit int) ([]*kbstore.Message, error) {
	f.gotLimit = limit
	if limit > 0 && limit < len(f.msgs) {
		return f.msgs[:limit], nil
	}
	return f.msgs, nil
}

func serve(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
