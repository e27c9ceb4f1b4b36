package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudcarver/extworker/pkg/audit"
	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/engine"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/cloudcarver/extworker/pkg/metrics"
	"github.com/cloudcarver/extworker/pkg/relay"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// No handler is registered for the task's topic; the task is left locked
// until its lease expires.
var ErrUnknownTopic = errors.New("unknown topic")

type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomeLeftForLease   Outcome = "left-for-lease"
	OutcomeUnknownTopic   Outcome = "unknown-topic"
	OutcomeUnacknowledged Outcome = "unacknowledged"
)

type DispatcherInterface interface {
	// Dispatch runs the handler of task's topic and acknowledges the result.
	// The returned error explains every non-completed outcome; it is never
	// fatal to the caller.
	Dispatch(ctx context.Context, task extask.Task) (Outcome, error)
}

type Dispatcher struct {
	registry *relay.Registry
	reporter engine.ReporterInterface
	recorder audit.RecorderInterface
	topics   map[string]config.Topic
	workerID string
}

func NewDispatcher(cfg *config.Config, registry *relay.Registry, reporter engine.ReporterInterface, recorder audit.RecorderInterface) *Dispatcher {
	topics := make(map[string]config.Topic, len(cfg.Worker.Topics))
	for _, t := range cfg.Worker.Topics {
		topics[t.Name] = t
	}
	return &Dispatcher{
		registry: registry,
		reporter: reporter,
		recorder: recorder,
		topics:   topics,
		workerID: cfg.Worker.ID,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, task extask.Task) (Outcome, error) {
	handler, ok := d.registry.Lookup(task.TopicName)
	if !ok {
		metrics.UnknownTopicTasks.WithLabelValues(task.TopicName).Inc()
		return OutcomeUnknownTopic, errors.Wrapf(ErrUnknownTopic, "no handler for topic %s", task.TopicName)
	}

	errs := d.record(ctx, task, audit.StateStarted, nil)

	start := time.Now()
	execErr := handler.Execute(relay.WithTaskID(ctx, task.ID), task.Variables)
	metrics.HandlerDuration.WithLabelValues(task.TopicName).Observe(time.Since(start).Seconds())

	if execErr == nil {
		if err := d.reporter.Complete(ctx, task.ID); err != nil {
			metrics.AckErrors.WithLabelValues("complete").Inc()
			errs = multierr.Append(errs, d.record(ctx, task, audit.StateAbandoned, err))
			return OutcomeUnacknowledged, multierr.Append(err, errs)
		}
		metrics.CompletedTasks.WithLabelValues(task.TopicName).Inc()
		errs = multierr.Append(errs, d.record(ctx, task, audit.StateCompleted, nil))
		return OutcomeCompleted, errs
	}

	topic := d.topic(task.TopicName)
	metrics.FailedTasks.WithLabelValues(task.TopicName, string(topic.OnFailure)).Inc()
	failure := errors.Wrapf(execErr, "%s failed on task %s", handler.Name(), task.ID)

	if topic.OnFailure == config.LeaveForLease {
		errs = multierr.Append(errs, d.record(ctx, task, audit.StateAbandoned, execErr))
		return OutcomeLeftForLease, multierr.Append(failure, errs)
	}

	report := engine.FailureReport{
		ErrorMessage: fmt.Sprintf("%s failed to execute request.", handler.Name()),
		ErrorDetails: execErr.Error(),
		Retries:      topic.Retries,
		RetryTimeout: topic.RetryTimeout,
	}
	if err := d.reporter.Failure(ctx, task.ID, report); err != nil {
		metrics.AckErrors.WithLabelValues("failure").Inc()
		errs = multierr.Append(errs, d.record(ctx, task, audit.StateAbandoned, execErr))
		return OutcomeUnacknowledged, multierr.Combine(failure, err, errs)
	}
	errs = multierr.Append(errs, d.record(ctx, task, audit.StateFailed, execErr))
	return OutcomeFailed, multierr.Append(failure, errs)
}

func (d *Dispatcher) topic(name string) config.Topic {
	if t, ok := d.topics[name]; ok {
		return t
	}
	return config.Topic{
		Name:         name,
		OnFailure:    config.ReportTerminal,
		RetryTimeout: config.DefaultRetryTimeout,
	}
}

func (d *Dispatcher) record(ctx context.Context, task extask.Task, state audit.State, cause error) error {
	var msg *string
	if cause != nil {
		s := cause.Error()
		msg = &s
	}
	if err := d.recorder.Record(ctx, audit.Entry{
		TaskID:    task.ID,
		Topic:     task.TopicName,
		WorkerID:  d.workerID,
		State:     state,
		Variables: task.Variables,
		Error:     msg,
	}); err != nil {
		return errors.Wrap(err, "audit")
	}
	return nil
}
