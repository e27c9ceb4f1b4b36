package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cloudcarver/extworker/pkg/audit"
	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/engine"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/cloudcarver/extworker/pkg/relay"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (m *memRecorder) Record(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memRecorder) Close() {}

func (m *memRecorder) States() []audit.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.State
	for _, e := range m.entries {
		out = append(out, e.State)
	}
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{Worker: config.Worker{ID: "w1"}}
	cfg.ApplyDefaults()
	return cfg
}

func newTestDispatcher(t *testing.T, cfg *config.Config, topic string, h relay.Handler, reporter engine.ReporterInterface, rec audit.RecorderInterface) *Dispatcher {
	registry := relay.NewRegistry()
	if h != nil {
		require.NoError(t, registry.Register(topic, h))
	}
	return NewDispatcher(cfg, registry, reporter, rec)
}

func TestDispatchCompletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var (
		cfg      = testConfig()
		handler  = relay.NewMockHandler(ctrl)
		reporter = engine.NewMockEngineInterface(ctrl)
		rec      = &memRecorder{}
		vars     = extask.Variables{"requestUrl": extask.StringVariable("http://x/y")}
		task     = extask.Task{ID: "t1", TopicName: extask.TopicHTTPRequest, Variables: vars}
	)

	handler.EXPECT().Execute(gomock.Any(), vars).DoAndReturn(func(ctx context.Context, _ extask.Variables) error {
		require.Equal(t, "t1", relay.TaskIDFromContext(ctx))
		return nil
	})
	reporter.EXPECT().Complete(gomock.Any(), "t1").Return(nil).Times(1)

	d := newTestDispatcher(t, cfg, extask.TopicHTTPRequest, handler, reporter, rec)
	outcome, err := d.Dispatch(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, []audit.State{audit.StateStarted, audit.StateCompleted}, rec.States())
}

func TestDispatchUnknownTopic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no EXPECT: neither Complete nor Failure may be called
	reporter := engine.NewMockEngineInterface(ctrl)
	rec := &memRecorder{}

	d := newTestDispatcher(t, testConfig(), "", nil, reporter, rec)
	for _, topic := range []string{"", "unknown", extask.TopicHTTPRequest} {
		outcome, err := d.Dispatch(context.Background(), extask.Task{ID: "t1", TopicName: topic})
		require.ErrorIs(t, err, ErrUnknownTopic)
		require.Equal(t, OutcomeUnknownTopic, outcome)
	}
	require.Empty(t, rec.States())
}

func TestDispatchFailureReportTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var (
		cfg      = testConfig()
		handler  = relay.NewMockHandler(ctrl)
		reporter = engine.NewMockEngineInterface(ctrl)
		rec      = &memRecorder{}
		execErr  = errors.Wrap(relay.ErrPayloadParse, "failed to parse 'requestPayload' JSON")
	)

	handler.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(execErr)
	handler.EXPECT().Name().Return("Generic HTTP Worker").AnyTimes()
	reporter.EXPECT().Failure(gomock.Any(), "t1", engine.FailureReport{
		ErrorMessage: "Generic HTTP Worker failed to execute request.",
		ErrorDetails: execErr.Error(),
		Retries:      0,
		RetryTimeout: time.Minute,
	}).Return(nil)

	d := newTestDispatcher(t, cfg, extask.TopicHTTPRequest, handler, reporter, rec)
	outcome, err := d.Dispatch(context.Background(), extask.Task{ID: "t1", TopicName: extask.TopicHTTPRequest})
	require.Equal(t, OutcomeFailed, outcome)
	require.ErrorIs(t, err, relay.ErrPayloadParse)
	require.Equal(t, []audit.State{audit.StateStarted, audit.StateFailed}, rec.States())
}

func TestDispatchFailureLeaveForLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var (
		cfg      = testConfig()
		handler  = relay.NewMockHandler(ctrl)
		reporter = engine.NewMockEngineInterface(ctrl)
		rec      = &memRecorder{}
	)

	handler.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(errors.Wrap(relay.ErrDownstreamCall, "500"))
	handler.EXPECT().Name().Return("Save DB Worker").AnyTimes()

	d := newTestDispatcher(t, cfg, extask.TopicSaveDB, handler, reporter, rec)
	outcome, err := d.Dispatch(context.Background(), extask.Task{ID: "t2", TopicName: extask.TopicSaveDB})
	require.Equal(t, OutcomeLeftForLease, outcome)
	require.ErrorIs(t, err, relay.ErrDownstreamCall)
	require.Equal(t, []audit.State{audit.StateStarted, audit.StateAbandoned}, rec.States())
}

func TestDispatchConfiguredRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := &config.Config{Worker: config.Worker{Topics: []config.Topic{{
		Name:         extask.TopicSaveDB,
		OnFailure:    config.ReportTerminal,
		Retries:      3,
		RetryTimeout: 5 * time.Second,
	}}}}
	cfg.ApplyDefaults()

	handler := relay.NewMockHandler(ctrl)
	reporter := engine.NewMockEngineInterface(ctrl)

	handler.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(errors.New("boom"))
	handler.EXPECT().Name().Return("Save DB Worker").AnyTimes()
	reporter.EXPECT().Failure(gomock.Any(), "t3", gomock.Any()).DoAndReturn(func(_ context.Context, _ string, r engine.FailureReport) error {
		require.Equal(t, 3, r.Retries)
		require.Equal(t, 5*time.Second, r.RetryTimeout)
		require.Equal(t, "boom", r.ErrorDetails)
		return nil
	})

	d := newTestDispatcher(t, cfg, extask.TopicSaveDB, handler, reporter, audit.NoopRecorder{})
	outcome, err := d.Dispatch(context.Background(), extask.Task{ID: "t3", TopicName: extask.TopicSaveDB})
	require.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)
}

func TestDispatchAckErrors(t *testing.T) {
	t.Run("complete rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		handler := relay.NewMockHandler(ctrl)
		reporter := engine.NewMockEngineInterface(ctrl)
		rec := &memRecorder{}

		handler.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil)
		reporter.EXPECT().Complete(gomock.Any(), "t1").Return(errors.Wrap(engine.ErrAckReport, "404"))

		d := newTestDispatcher(t, testConfig(), extask.TopicHTTPRequest, handler, reporter, rec)
		outcome, err := d.Dispatch(context.Background(), extask.Task{ID: "t1", TopicName: extask.TopicHTTPRequest})
		require.Equal(t, OutcomeUnacknowledged, outcome)
		require.ErrorIs(t, err, engine.ErrAckReport)
		require.Equal(t, []audit.State{audit.StateStarted, audit.StateAbandoned}, rec.States())
	})

	t.Run("failure report lost", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		handler := relay.NewMockHandler(ctrl)
		reporter := engine.NewMockEngineInterface(ctrl)

		handler.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(relay.ErrDownstreamCall)
		handler.EXPECT().Name().Return("Generic HTTP Worker").AnyTimes()
		reporter.EXPECT().Failure(gomock.Any(), "t1", gomock.Any()).Return(errors.Wrap(engine.ErrAckReport, "engine down"))

		d := newTestDispatcher(t, testConfig(), extask.TopicHTTPRequest, handler, reporter, audit.NoopRecorder{})
		outcome, err := d.Dispatch(context.Background(), extask.Task{ID: "t1", TopicName: extask.TopicHTTPRequest})
		require.Equal(t, OutcomeUnacknowledged, outcome)
		require.ErrorIs(t, err, engine.ErrAckReport)
		require.ErrorIs(t, err, relay.ErrDownstreamCall)
	})
}

func TestDispatchAuditErrorDoesNotChangeOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	handler := relay.NewMockHandler(ctrl)
	reporter := engine.NewMockEngineInterface(ctrl)
	rec := &memRecorder{err: errors.New("db down")}

	handler.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil)
	reporter.EXPECT().Complete(gomock.Any(), "t1").Return(nil)

	d := newTestDispatcher(t, testConfig(), extask.TopicHTTPRequest, handler, reporter, rec)
	outcome, err := d.Dispatch(context.Background(), extask.Task{ID: "t1", TopicName: extask.TopicHTTPRequest})
	require.Equal(t, OutcomeCompleted, outcome)
	require.ErrorContains(t, err, "db down")
}
