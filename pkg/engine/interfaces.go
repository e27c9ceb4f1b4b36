package engine

import (
	"context"
	"time"

	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/pkg/errors"
)

var (
	// The engine could not be reached or rejected fetchAndLock
	ErrFetch = errors.New("fetch and lock failed")

	// The engine could not be reached or rejected a complete or failure report
	ErrAckReport = errors.New("acknowledgement report failed")
)

type TopicSubscription struct {
	TopicName    string
	LockDuration time.Duration
}

type FetchRequest struct {
	MaxTasks             int
	UsePriority          bool
	AsyncResponseTimeout time.Duration
	Topics               []TopicSubscription
}

type FailureReport struct {
	ErrorMessage string
	ErrorDetails string

	// 0 marks the task as failed in the engine and creates an incident
	Retries int

	RetryTimeout time.Duration
}

type FetcherInterface interface {
	// FetchAndLock claims up to MaxTasks tasks for this worker. An empty
	// slice means nothing is available and is not an error.
	FetchAndLock(ctx context.Context, req FetchRequest) ([]extask.Task, error)
}

type ReporterInterface interface {
	// Complete acknowledges a successfully executed task. A nil error means the
	// engine accepted it; a second call for the same task fails with ErrAckReport.
	Complete(ctx context.Context, taskID string) error

	Failure(ctx context.Context, taskID string, report FailureReport) error
}

type EngineInterface interface {
	FetcherInterface
	ReporterInterface

	WorkerID() string
}
