// Package service hosts the ambient HTTP endpoints of a long-lived
// harness: a health check and the Prometheus metrics exporter.
package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"

	"github.com/ska-telescope/ska-pss-protest/metrics"
)

const (
	DefaultHealthzAddr = "0.0.0.0:8080"
	DefaultMetricsAddr = "0.0.0.0:7300"
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	healthzAddr string
	metricsAddr string
}

func New(healthzAddr, metricsAddr string) *Service {
	if healthzAddr == "" {
		healthzAddr = DefaultHealthzAddr
	}
	if metricsAddr == "" {
		metricsAddr = DefaultMetricsAddr
	}
	return &Service{
		Healthz:     &HealthzServer{},
		Metrics:     &MetricsServer{},
		healthzAddr: healthzAddr,
		metricsAddr: metricsAddr,
	}
}

func (s *Service) Start(ctx context.Context) {
	log := clog.FromContext(ctx)
	log.Infof("service starting")

	go func() {
		log.Infof("starting healthz server on %s", s.healthzAddr)
		if err := s.Healthz.Start(ctx, s.healthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("error starting healthz server: %v", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		log.Infof("starting metrics server on %s", s.metricsAddr)
		if err := s.Metrics.Start(ctx, s.metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("error starting metrics server: %v", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	log.Infof("service started")
}

func (s *Service) Shutdown(ctx context.Context) {
	log := clog.FromContext(ctx)
	log.Infof("service shutting down")

	_ = s.Healthz.Shutdown()
	log.Infof("healthz stopped")

	_ = s.Metrics.Shutdown()
	log.Infof("metrics stopped")

	log.Infof("service stopped")
}
