//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/cloudcarver/extworker/pkg/app"
	"github.com/cloudcarver/extworker/pkg/app/closer"
	"github.com/cloudcarver/extworker/pkg/audit"
	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/globalctx"
	"github.com/cloudcarver/extworker/pkg/server"
	"github.com/cloudcarver/extworker/pkg/worker"
	"github.com/google/wire"
)

func InitializeApplication(configConfig *config.Config) (*app.Application, error) {
	wire.Build(
		globalctx.New,
		provideEngine,
		provideReporter,
		provideRegistry,
		audit.NewRecorder,
		worker.NewDispatcher,
		wire.Bind(new(worker.DispatcherInterface), new(*worker.Dispatcher)),
		worker.NewWorker,
		wire.Bind(new(server.PollStatus), new(*worker.Worker)),
		server.NewServer,
		closer.NewCloserManager,
		app.NewApplication,
	)
	return nil, nil
}
