package app

import (
	"context"

	"github.com/cloudcarver/extworker/pkg/app/closer"
	"github.com/cloudcarver/extworker/pkg/audit"
	"github.com/cloudcarver/extworker/pkg/logger"
	"github.com/cloudcarver/extworker/pkg/server"
	"github.com/cloudcarver/extworker/pkg/worker"
	"go.uber.org/zap"
)

var log = logger.NewLogAgent("app")

type Application struct {
	server        *server.Server
	worker        *worker.Worker
	closerManager *closer.CloserManager
}

func NewApplication(
	server *server.Server,
	worker *worker.Worker,
	recorder audit.RecorderInterface,
	closerManager *closer.CloserManager,
) *Application {
	closerManager.Register(
		func(context.Context) error {
			recorder.Close()
			return nil
		},
		func(context.Context) error {
			return server.Shutdown()
		},
	)
	return &Application{
		server:        server,
		worker:        worker,
		closerManager: closerManager,
	}
}

// Start blocks until the global context is cancelled. The poll loop keeps
// running when the metrics server fails; the server error is returned once
// the loop has stopped.
func (a *Application) Start() error {
	defer a.closerManager.Close()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.worker.Start()
	}()

	err := a.server.Listen()
	if err != nil {
		log.Error("metrics server exited, worker keeps polling", zap.Error(err))
	}
	<-workerDone
	return err
}

func (a *Application) GetServer() *server.Server {
	return a.server
}

func (a *Application) GetWorker() *worker.Worker {
	return a.worker
}
