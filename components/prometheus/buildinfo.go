package prometheus

import "github.com/prometheus/client_golang/prometheus"

const compilerVersion = "0.1.0"

var buildInfo *prometheus.GaugeVec

// configureBuildInfo defines a GaugeVec, registers it, and registers a
// collect hook that reports the compiler's own version, refreshed on
// every scrape.
func configureBuildInfo() {
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tomblang",
			Subsystem: "compiler",
			Name:      "build_info",
			Help:      "Always 1; labeled with the compiler version currently running.",
		},
		[]string{"version"},
	)

	registry.MustRegister(buildInfo)

	addCollect(collectBuildInfo)
}

func collectBuildInfo() {
	buildInfo.WithLabelValues(compilerVersion).Set(1)
}
