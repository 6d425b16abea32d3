package kbsync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/openmined/kbsync/internal/syncsdk"
)

const testPageSize = 2

// fakeServer plays both the account server and the database server.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	groups    []syncsdk.GroupInfo
	records   map[string]map[string]syncsdk.RecordChange
	versions  map[string]int64
	pushes    map[string]int
	messages  []syncsdk.MessageInfo
	cert      *syncsdk.CertResponse
	certCalls int
	failKb    map[string]bool
	lookups   int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{
		records:  make(map[string]map[string]syncsdk.RecordChange),
		versions: make(map[string]int64),
		pushes:   make(map[string]int),
		failKb:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/user/groups", s.handleGroups)
	mux.HandleFunc("GET /api/v1/user/cert", s.handleCert)
	mux.HandleFunc("GET /api/v1/messages", s.handleMessages)
	mux.HandleFunc("GET /api/v1/kb/{guid}/endpoint", s.handleEndpoint)
	mux.HandleFunc("GET /api/v1/kb/{guid}/changes", s.handleChanges)
	mux.HandleFunc("POST /api/v1/kb/{guid}/changes", s.handlePush)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// seed stores a record on the server under the next version of kb.
func (s *fakeServer) seed(kb string, rec syncsdk.RecordChange) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(kb, rec)
}

func (s *fakeServer) store(kb string, rec syncsdk.RecordChange) int64 {
	s.versions[kb]++
	rec.Version = s.versions[kb]
	if rec.ModifiedAt.IsZero() {
		rec.ModifiedAt = time.Now().UTC()
	}
	if s.records[kb] == nil {
		s.records[kb] = make(map[string]syncsdk.RecordChange)
	}
	s.records[kb][rec.ID] = rec
	return rec.Version
}

// update mutates the server state under its lock.
func (s *fakeServer) update(fn func(s *fakeServer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *fakeServer) calls() (lookups, certCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups, s.certCalls
}

func (s *fakeServer) record(kb, id string) (syncsdk.RecordChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[kb][id]
	return rec, ok
}

func (s *fakeServer) pushCount(kb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes[kb]
}

func (s *fakeServer) handleGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, syncsdk.GroupsResponse{Groups: s.groups})
}

func (s *fakeServer) handleCert(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certCalls++
	if s.cert == nil {
		writeJSON(w, http.StatusNotFound, syncsdk.APIError{Code: "not_found", Message: "no cert"})
		return
	}
	writeJSON(w, http.StatusOK, s.cert)
}

func (s *fakeServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	out := []syncsdk.MessageInfo{}
	for _, m := range s.messages {
		if m.Version > since {
			out = append(out, m)
		}
	}
	writeJSON(w, http.StatusOK, syncsdk.MessagesResponse{Messages: out})
}

func (s *fakeServer) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	writeJSON(w, http.StatusOK, syncsdk.EndpointResponse{KbGUID: r.PathValue("guid"), DatabaseServer: s.URL})
}

func (s *fakeServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kb := r.PathValue("guid")
	if s.failKb[kb] {
		writeJSON(w, http.StatusConflict, syncsdk.APIError{Code: "kb_locked", Message: "kb " + kb + " is locked"})
		return
	}

	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	var changes []syncsdk.RecordChange
	for _, rec := range s.records[kb] {
		if rec.Version > since {
			changes = append(changes, rec)
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Version < changes[j].Version })

	resp := syncsdk.ChangesResponse{Version: s.versions[kb]}
	if len(changes) > testPageSize {
		changes = changes[:testPageSize]
		resp.HasMore = true
		resp.Version = changes[len(changes)-1].Version
	}
	resp.Changes = changes
	writeJSON(w, http.StatusOK, resp)
}

func (s *fakeServer) handlePush(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kb := r.PathValue("guid")
	var req syncsdk.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, syncsdk.APIError{Code: "bad_request", Message: err.Error()})
		return
	}

	s.pushes[kb]++
	resp := syncsdk.PushResponse{Versions: make(map[string]int64)}
	for _, c := range req.Changes {
		resp.Versions[c.ID] = s.store(kb, c)
	}
	resp.Version = s.versions[kb]
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
