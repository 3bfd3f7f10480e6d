// Package prometheus exposes a /metrics endpoint for the node. It owns a
// registry/addCollect scaffold for gauges that need a periodic pull before
// each scrape. Everything else, including internal/compilesvc's compile
// counters, self-registers against the default registerer, and is exposed
// by chaining prometheus.DefaultGatherer into this component's own registry.
package prometheus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"

	"github.com/iotaledger/hive.go/app"

	"github.com/tombwork/tomblang/daemon"
)

func init() {
	Component = &app.Component{
		Name:    "Prometheus",
		Params:  params,
		Provide: provide,
		IsEnabled: func(_ *dig.Container) bool {
			return ParamsPrometheus.Enabled
		},
		Configure: configure,
		Run:       run,
	}
}

var (
	Component *app.Component

	registry   = prometheus.NewRegistry()
	collectsMu sync.Mutex
	collects   []func()
	httpServer *http.Server
)

// addCollect registers a function to run once per scrape, before the
// registry is gathered, for gauges whose value must be pulled rather than
// pushed.
func addCollect(collect func()) {
	collectsMu.Lock()
	defer collectsMu.Unlock()
	collects = append(collects, collect)
}

func runCollects() {
	collectsMu.Lock()
	defer collectsMu.Unlock()
	for _, c := range collects {
		c()
	}
}

func provide(_ *dig.Container) error {
	return nil
}

func configure() error {
	configureBuildInfo()

	gatherers := prometheus.Gatherers{registry, prometheus.DefaultGatherer}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	httpServer = &http.Server{
		Addr:    ParamsPrometheus.BindAddress,
		Handler: preCollectMiddleware(mux),
	}

	return nil
}

// preCollectMiddleware runs pull-based collectors right before a scrape is
// served, so gauges reflect current state without a background ticker.
func preCollectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runCollects()
		next.ServeHTTP(w, r)
	})
}

func run() error {
	return Component.Daemon().BackgroundWorker("Prometheus", func(ctx context.Context) {
		Component.LogInfof("Starting Prometheus /metrics endpoint on %s...", ParamsPrometheus.BindAddress)

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				Component.LogErrorf("Prometheus /metrics endpoint stopped unexpectedly: %v", err)
			}
		}()

		<-ctx.Done()

		Component.LogInfo("Stopping Prometheus /metrics endpoint...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}, daemon.PriorityPrometheus)
}
