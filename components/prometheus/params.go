package prometheus

import (
	"github.com/iotaledger/hive.go/app"
)

// ParametersPrometheus is a struct-tag-default config block.
type ParametersPrometheus struct {
	Enabled     bool   `default:"true" usage:"whether the Prometheus /metrics endpoint is enabled"`
	BindAddress string `default:"0.0.0.0:9311" usage:"bind address for the Prometheus /metrics endpoint"`
}

var ParamsPrometheus = &ParametersPrometheus{}

var params = &app.ComponentParams{
	Params: map[string]any{
		"prometheus": ParamsPrometheus,
	},
	Masked: []string{},
}
