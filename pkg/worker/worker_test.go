package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudcarver/extworker/lib/httpx"
	"github.com/cloudcarver/extworker/pkg/audit"
	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/engine"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/cloudcarver/extworker/pkg/globalctx"
	"github.com/cloudcarver/extworker/pkg/relay"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type downstreamCall struct {
	path string
	body map[string]any
}

type fakeDownstream struct {
	*httptest.Server
	mu     sync.Mutex
	calls  []downstreamCall
	status int
}

func newFakeDownstream(status int) *fakeDownstream {
	f := &fakeDownstream{status: status}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		f.mu.Lock()
		f.calls = append(f.calls, downstreamCall{path: r.URL.Path, body: body})
		f.mu.Unlock()
		w.WriteHeader(f.status)
	}))
	return f
}

func (f *fakeDownstream) Calls() []downstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]downstreamCall(nil), f.calls...)
}

type stack struct {
	cfg    *config.Config
	engine engine.EngineInterface
	worker *Worker
}

func newStack(t *testing.T, workerID, engineURL, downstreamURL string) *stack {
	cfg := &config.Config{
		Engine:     config.Engine{BaseURL: engineURL},
		Downstream: config.Downstream{BaseURL: downstreamURL, Timeout: time.Second},
		Worker:     config.Worker{ID: workerID, PollInterval: 10 * time.Millisecond},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	eng := engine.NewClient(cfg)
	registry, err := relay.NewDefaultRegistry(cfg)
	require.NoError(t, err)
	d := NewDispatcher(cfg, registry, eng, audit.NoopRecorder{})
	w, err := NewWorker(globalctx.NewWithContext(context.Background()), cfg, eng, d, registry)
	require.NoError(t, err)
	return &stack{cfg: cfg, engine: eng, worker: w}
}

func variables(kv ...string) extask.Variables {
	v := extask.Variables{}
	for i := 0; i+1 < len(kv); i += 2 {
		v[kv[i]] = extask.StringVariable(kv[i+1])
	}
	return v
}

func TestGenericRelayCompletesOnce(t *testing.T) {
	downstream := newFakeDownstream(http.StatusOK)
	defer downstream.Close()

	fake := engine.NewFakeEngine(extask.Task{
		ID:        "t1",
		TopicName: extask.TopicHTTPRequest,
		Variables: variables("requestUrl", downstream.URL+"/y", "httpMethod", "GET"),
	})
	defer fake.Close()

	s := newStack(t, "w1", fake.URL, downstream.URL)
	require.Equal(t, 1, s.worker.PollOnce(context.Background()))
	require.Equal(t, 0, s.worker.PollOnce(context.Background()))

	require.Equal(t, []string{"t1"}, fake.Completed())
	require.Empty(t, fake.Failures())
	require.Len(t, downstream.Calls(), 1)
	require.False(t, s.worker.LastPoll().IsZero())

	workerID, maxTasks, topics := fake.LastFetch()
	require.Equal(t, "w1", workerID)
	require.Equal(t, 5, maxTasks)
	require.Equal(t, map[string]int64{
		extask.TopicHTTPRequest: 30000,
		extask.TopicSaveDB:      30000,
		extask.TopicSendEmail:   30000,
	}, topics)
}

func TestSaveDBFailureLeavesTaskLocked(t *testing.T) {
	downstream := newFakeDownstream(http.StatusInternalServerError)
	defer downstream.Close()

	fake := engine.NewFakeEngine(extask.Task{
		ID:        "t2",
		TopicName: extask.TopicSaveDB,
		Variables: variables("employeeName", "Alice", "approved", "true"),
	})
	defer fake.Close()

	s := newStack(t, "w1", fake.URL, downstream.URL+"/api/v1")
	require.Equal(t, 1, s.worker.PollOnce(context.Background()))

	require.Empty(t, fake.Completed())
	require.Empty(t, fake.Failures())
	owner, locked := fake.LockedBy("t2")
	require.True(t, locked)
	require.Equal(t, "w1", owner)

	calls := downstream.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "/api/v1/save-db", calls[0].path)
	require.Equal(t, map[string]any{
		"employeeName": "Alice",
		"leaveDate":    "",
		"reason":       "",
		"approved":     "true",
	}, calls[0].body)
}

func TestMissingRequestURLReportsFailure(t *testing.T) {
	downstream := newFakeDownstream(http.StatusOK)
	defer downstream.Close()

	fake := engine.NewFakeEngine(extask.Task{
		ID:        "t3",
		TopicName: extask.TopicHTTPRequest,
		Variables: variables("requestUrl", ""),
	})
	defer fake.Close()

	s := newStack(t, "w1", fake.URL, downstream.URL)
	s.worker.PollOnce(context.Background())

	require.Empty(t, downstream.Calls())
	require.Empty(t, fake.Completed())
	failures := fake.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, "t3", failures[0].TaskID)
	require.Equal(t, 0, failures[0].Retries)
	require.Equal(t, int64(60000), failures[0].RetryTimeout)
	require.Contains(t, failures[0].ErrorDetails, "requestUrl")
}

func TestMalformedPayloadReportsFailureWithoutCall(t *testing.T) {
	downstream := newFakeDownstream(http.StatusOK)
	defer downstream.Close()

	fake := engine.NewFakeEngine(extask.Task{
		ID:        "t4",
		TopicName: extask.TopicHTTPRequest,
		Variables: variables("requestUrl", downstream.URL, "requestPayload", `{"broken":`),
	})
	defer fake.Close()

	s := newStack(t, "w1", fake.URL, downstream.URL)
	s.worker.PollOnce(context.Background())

	require.Empty(t, downstream.Calls())
	require.Len(t, fake.Failures(), 1)
	require.Contains(t, fake.Failures()[0].ErrorDetails, "requestPayload")
}

func TestUnknownTopicIsNeverAcknowledged(t *testing.T) {
	fake := engine.NewFakeEngine(extask.Task{ID: "t5", TopicName: "mystery-topic"})
	defer fake.Close()

	s := newStack(t, "w1", fake.URL, "http://unused")

	// subscribe to the mystery topic without registering a handler
	s.worker.request.Topics = append(s.worker.request.Topics, engine.TopicSubscription{TopicName: "mystery-topic", LockDuration: time.Minute})
	require.Equal(t, 1, s.worker.PollOnce(context.Background()))

	require.Empty(t, fake.Completed())
	require.Empty(t, fake.Failures())
	_, locked := fake.LockedBy("t5")
	require.True(t, locked)
}

func TestFetchErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig()
	cfg.Worker.PollInterval = 5 * time.Millisecond

	eng := engine.NewMockEngineInterface(ctrl)
	registry := relay.NewRegistry()
	d := NewDispatcher(cfg, registry, eng, audit.NoopRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	w, err := NewWorker(globalctx.NewWithContext(ctx), cfg, eng, d, registry)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		calls int
	)
	eng.EXPECT().FetchAndLock(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, engine.FetchRequest) ([]extask.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 3 {
			cancel()
		}
		return nil, errors.Wrap(engine.ErrFetch, "dial tcp: connection refused")
	}).MinTimes(3)

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.True(t, w.LastPoll().IsZero())
}

func TestFetchErrorAgainstRealClient(t *testing.T) {
	d := &httpx.RecordingDelegate{Err: errors.New("connection refused")}
	cfg := testConfig()
	eng := engine.NewClient(cfg, d)
	registry := relay.NewRegistry()
	w, err := NewWorker(globalctx.NewWithContext(context.Background()), cfg, eng, NewDispatcher(cfg, registry, eng, audit.NoopRecorder{}), registry)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.Equal(t, 0, w.PollOnce(context.Background()))
	})
	require.Len(t, d.Requests(), 1)
}

func TestCompetingWorkersExecuteEachTaskOnce(t *testing.T) {
	downstream := newFakeDownstream(http.StatusOK)
	defer downstream.Close()

	var tasks []extask.Task
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		tasks = append(tasks, extask.Task{
			ID:        id,
			TopicName: extask.TopicHTTPRequest,
			Variables: variables("requestUrl", downstream.URL+"/"+id),
		})
	}
	fake := engine.NewFakeEngine(tasks...)
	defer fake.Close()

	s1 := newStack(t, "w1", fake.URL, downstream.URL)
	s2 := newStack(t, "w2", fake.URL, downstream.URL)

	var wg sync.WaitGroup
	for _, s := range []*stack{s1, s2} {
		wg.Add(1)
		go func(s *stack) {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				s.worker.PollOnce(context.Background())
			}
		}(s)
	}
	wg.Wait()

	require.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, fake.Completed())
	require.Len(t, downstream.Calls(), 6)
}

func TestNewWorkerSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Worker.Schedule = "@every 1m"
	registry := relay.NewRegistry()
	w, err := NewWorker(globalctx.NewWithContext(context.Background()), cfg, nil, nil, registry)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, now.Add(time.Minute), w.schedule.Next(now))

	cfg.Worker.Schedule = ""
	cfg.Worker.PollInterval = 5 * time.Second
	w, err = NewWorker(globalctx.NewWithContext(context.Background()), cfg, nil, nil, registry)
	require.NoError(t, err)
	require.Equal(t, now.Add(5*time.Second), w.schedule.Next(now))
}
