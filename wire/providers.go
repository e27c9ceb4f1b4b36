package wire

import (
	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/engine"
	"github.com/cloudcarver/extworker/pkg/relay"
)

func provideEngine(cfg *config.Config) engine.EngineInterface {
	return engine.NewClient(cfg)
}

func provideReporter(e engine.EngineInterface) engine.ReporterInterface {
	return e
}

func provideRegistry(cfg *config.Config) (*relay.Registry, error) {
	return relay.NewDefaultRegistry(cfg)
}
