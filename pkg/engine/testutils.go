package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/cloudcarver/extworker/pkg/extask"
)

type RecordedFailure struct {
	TaskID       string
	WorkerID     string
	ErrorMessage string
	ErrorDetails string
	Retries      int
	RetryTimeout int64
}

// FakeEngine serves the external-task REST endpoints from memory. Fetched
// tasks stay locked until completed or failed; a second acknowledgement for
// the same task is rejected with 404 like the real engine does.
type FakeEngine struct {
	*httptest.Server

	mu        sync.Mutex
	available []extask.Task
	locked    map[string]string
	fetches   []fetchAndLockBody
	completed []string
	failures  []RecordedFailure

	// FetchStatus, when non-zero, is returned by fetchAndLock instead of tasks
	FetchStatus int
}

func NewFakeEngine(tasks ...extask.Task) *FakeEngine {
	f := &FakeEngine{
		available: tasks,
		locked:    map[string]string{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

func (f *FakeEngine) AddTasks(tasks ...extask.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = append(f.available, tasks...)
}

func (f *FakeEngine) Completed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completed...)
}

func (f *FakeEngine) Failures() []RecordedFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedFailure(nil), f.failures...)
}

func (f *FakeEngine) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func (f *FakeEngine) LastFetch() (workerID string, maxTasks int, topics map[string]int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fetches) == 0 {
		return "", 0, nil
	}
	last := f.fetches[len(f.fetches)-1]
	topics = map[string]int64{}
	for _, t := range last.Topics {
		topics[t.TopicName] = t.LockDuration
	}
	return last.WorkerID, last.MaxTasks, topics
}

// LockedBy returns the worker holding the lock on taskID.
func (f *FakeEngine) LockedBy(taskID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.locked[taskID]
	return w, ok
}

func (f *FakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.EscapedPath(), "/"), "/")
	if len(parts) < 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var id string
	if len(parts) >= 3 {
		unescaped, err := url.PathUnescape(parts[len(parts)-2])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id = unescaped
	}

	switch action := parts[len(parts)-1]; {
	case action == "fetchAndLock":
		f.fetchAndLock(w, r)
	case action == "complete" && len(parts) >= 3:
		f.complete(w, r, id)
	case action == "failure" && len(parts) >= 3:
		f.failure(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *FakeEngine) fetchAndLock(w http.ResponseWriter, r *http.Request) {
	var body fetchAndLockBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.fetches = append(f.fetches, body)
	if f.FetchStatus != 0 {
		http.Error(w, `{"type":"RestException"}`, f.FetchStatus)
		return
	}

	subscribed := map[string]bool{}
	for _, t := range body.Topics {
		subscribed[t.TopicName] = true
	}

	out := []extask.Task{}
	rest := f.available[:0]
	for _, t := range f.available {
		if len(out) < body.MaxTasks && subscribed[t.TopicName] {
			t.WorkerID = body.WorkerID
			f.locked[t.ID] = body.WorkerID
			out = append(out, t)
			continue
		}
		rest = append(rest, t)
	}
	f.available = rest

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (f *FakeEngine) complete(w http.ResponseWriter, r *http.Request, id string) {
	var body completeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if owner, ok := f.locked[id]; !ok || owner != body.WorkerID {
		http.Error(w, `{"type":"NotFoundException"}`, http.StatusNotFound)
		return
	}
	delete(f.locked, id)
	f.completed = append(f.completed, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeEngine) failure(w http.ResponseWriter, r *http.Request, id string) {
	var body failureBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if owner, ok := f.locked[id]; !ok || owner != body.WorkerID {
		http.Error(w, `{"type":"NotFoundException"}`, http.StatusNotFound)
		return
	}
	delete(f.locked, id)
	f.failures = append(f.failures, RecordedFailure{
		TaskID:       id,
		WorkerID:     body.WorkerID,
		ErrorMessage: body.ErrorMessage,
		ErrorDetails: body.ErrorDetails,
		Retries:      body.Retries,
		RetryTimeout: body.RetryTimeout,
	})
	w.WriteHeader(http.StatusNoContent)
}
