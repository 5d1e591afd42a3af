package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/BreatheLabs/stillpoint/pkg/config"
	"github.com/BreatheLabs/stillpoint/pkg/infra/prometheus"
	"github.com/BreatheLabs/stillpoint/pkg/server/router"
)

type (
	IngestServerDI struct {
		Config  *config.Config
		Logger  *logrus.Logger
		Routers []router.ServerRouter
	}
	IngestServer struct {
		*BaseServer
	}
)

func NewIngestServer(di IngestServerDI) *IngestServer {
	if di.Config.Metrics.Enabled {
		prometheus.Initialize()
	}

	s := &IngestServer{
		BaseServer: NewBaseServer(di.Config, di.Logger).WithRouters(di.Routers...),
	}
	s.BaseServer.setupMetricsEndpoint()
	return s
}

func (s *IngestServer) Run() error {
	s.Logger.WithField("port", s.Config.Server.IngestPort).Info("starting ingest server")
	return s.Router.Listen(fmt.Sprintf(":%d", s.Config.Server.IngestPort))
}

func (s *IngestServer) Shutdown() error {
	return s.Router.Shutdown()
}
