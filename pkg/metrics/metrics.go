package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "extworker"

var (
	Polls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "The total number of fetchAndLock calls",
	})

	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_errors_total",
		Help:      "The total number of failed fetchAndLock calls",
	})

	PulledTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pulled_tasks_total",
		Help:      "The total number of tasks locked by this worker",
	}, []string{"topic"})

	CompletedTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "completed_tasks_total",
		Help:      "The total number of tasks acknowledged as complete",
	}, []string{"topic"})

	FailedTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failed_tasks_total",
		Help:      "The total number of tasks whose handler failed, by failure policy",
	}, []string{"topic", "policy"})

	UnknownTopicTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_topic_tasks_total",
		Help:      "The total number of tasks left for lease expiry because no handler serves their topic",
	}, []string{"topic"})

	AckErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ack_errors_total",
		Help:      "The total number of complete or failure reports the engine did not accept",
	}, []string{"kind"})

	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "handler_duration_seconds",
		Help:      "Time spent in task handlers",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})

	LastSuccessfulPoll = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_successful_poll_timestamp_seconds",
		Help:      "Unix time of the last fetchAndLock call the engine answered",
	})
)
