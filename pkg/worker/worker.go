package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/engine"
	"github.com/cloudcarver/extworker/pkg/globalctx"
	"github.com/cloudcarver/extworker/pkg/logger"
	"github.com/cloudcarver/extworker/pkg/metrics"
	"github.com/cloudcarver/extworker/pkg/relay"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var log = logger.NewLogAgent("worker")

// fixedDelay waits the same duration after every iteration.
type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

// Worker is the poll loop: fetch and lock a batch, dispatch every task in
// order, wait, repeat. It is single threaded; a slow handler delays the next
// poll.
type Worker struct {
	fetcher    engine.FetcherInterface
	dispatcher DispatcherInterface
	globalCtx  *globalctx.GlobalContext
	request    engine.FetchRequest
	schedule   cron.Schedule
	now        func() time.Time

	lastPoll atomic.Int64
}

func NewWorker(globalCtx *globalctx.GlobalContext, cfg *config.Config, eng engine.EngineInterface, dispatcher DispatcherInterface, registry *relay.Registry) (*Worker, error) {
	var schedule cron.Schedule = fixedDelay(cfg.Worker.PollInterval)
	if cfg.Worker.Schedule != "" {
		s, err := cron.ParseStandard(cfg.Worker.Schedule)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse worker schedule %q", cfg.Worker.Schedule)
		}
		schedule = s
	}

	req := engine.FetchRequest{
		MaxTasks:             cfg.Worker.MaxTasks,
		UsePriority:          cfg.Worker.UsePriority == nil || *cfg.Worker.UsePriority,
		AsyncResponseTimeout: cfg.Worker.AsyncResponseTimeout,
	}
	for _, t := range cfg.Worker.Topics {
		req.Topics = append(req.Topics, engine.TopicSubscription{
			TopicName:    t.Name,
			LockDuration: t.LockDuration,
		})
		if _, ok := registry.Lookup(t.Name); !ok {
			log.Warn("subscribed topic has no handler, its tasks will wait for lease expiry", zap.String("topic", t.Name))
		}
		if t.LockDuration < cfg.Downstream.Timeout {
			log.Warn("lock duration is shorter than the relay timeout, a task may run on two workers",
				zap.String("topic", t.Name),
				zap.Duration("lock_duration", t.LockDuration),
				zap.Duration("relay_timeout", cfg.Downstream.Timeout),
			)
		}
	}

	return &Worker{
		fetcher:    eng,
		dispatcher: dispatcher,
		globalCtx:  globalCtx,
		request:    req,
		schedule:   schedule,
		now:        time.Now,
	}, nil
}

// Start polls until the global context is cancelled. The first poll happens
// immediately.
func (w *Worker) Start() {
	ctx := w.globalCtx.Context()
	log.Info("worker started", zap.Int("max_tasks", w.request.MaxTasks), zap.Int("topics", len(w.request.Topics)))
	for {
		w.PollOnce(ctx)

		next := w.schedule.Next(w.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("worker stopped")
			return
		case <-timer.C:
		}
	}
}

// PollOnce runs one iteration and returns how many tasks were fetched. Fetch
// errors are logged and count as an empty batch.
func (w *Worker) PollOnce(ctx context.Context) int {
	metrics.Polls.Inc()
	tasks, err := w.fetcher.FetchAndLock(ctx, w.request)
	if err != nil {
		metrics.FetchErrors.Inc()
		log.Error("failed to fetch tasks", zap.Error(err))
		return 0
	}
	now := w.now()
	w.lastPoll.Store(now.UnixNano())
	metrics.LastSuccessfulPoll.Set(float64(now.Unix()))

	if len(tasks) == 0 {
		log.Debug("no tasks to fetch")
		return 0
	}
	log.Info("fetched tasks", zap.Int("count", len(tasks)))

	for _, task := range tasks {
		if ctx.Err() != nil {
			// remaining tasks stay locked and are re-offered after lease expiry
			return len(tasks)
		}
		metrics.PulledTasks.WithLabelValues(task.TopicName).Inc()
		fields := []zap.Field{zap.String("task_id", task.ID), zap.String("topic", task.TopicName)}

		log.Info("processing task", fields...)
		outcome, err := w.dispatcher.Dispatch(ctx, task)
		fields = append(fields, zap.String("outcome", string(outcome)))
		switch {
		case errors.Is(err, ErrUnknownTopic):
			log.Warn("unknown topic, skipping", fields...)
		case outcome == OutcomeCompleted && err != nil:
			log.Warn("task completed with audit errors", append(fields, zap.Error(err))...)
		case outcome == OutcomeCompleted:
			log.Info("task completed", fields...)
		case outcome == OutcomeLeftForLease:
			log.Warn("task failed, left for lease expiry", append(fields, zap.Error(err))...)
		default:
			log.Error("task failed", append(fields, zap.Error(err))...)
		}
	}
	return len(tasks)
}

// LastPoll is the time of the last fetch the engine answered, zero if none.
func (w *Worker) LastPoll() time.Time {
	ns := w.lastPoll.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
