// SPDX-License-Identifier: MIT
package observe

import (
	"context"
	"errors"
	"net/http"
	"time"

	applog "audiovis/internal/log"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitProvider installs a MeterProvider backed by the Prometheus exporter as
// the global provider. It must run before the first DefaultMetrics call for
// the instruments to be exported. The returned function flushes and shuts the
// provider down.
func InitProvider() (shutdown func(context.Context) error, err error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Server serves /metrics for Prometheus scrapes.
type Server struct {
	srv *http.Server
	log applog.Logger
}

// NewServer creates a metrics server listening on addr (e.g. ":9464").
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: applog.Named("metrics"),
	}
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("serving /metrics on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
