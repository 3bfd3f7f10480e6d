package tomblang

import (
	"github.com/iotaledger/hive.go/app"
)

// ParametersCompileService is a struct-tag-default config block, one field
// per flag/env var the app config layer exposes.
type ParametersCompileService struct {
	Enabled      bool   `default:"true" usage:"whether the TombLang compile service is enabled"`
	MasterKeyHex string `default:"" usage:"hex-encoded 32-byte master key sealing the deployer signing key; a random one is generated (and logged once) if empty"`
	DevMode      bool   `default:"false" usage:"allow the gRPC listener to run without TLS, for local development"`

	GRPC struct {
		BindAddress string `default:"0.0.0.0:9070" usage:"bind address for the TombLang compile gRPC API"`
		TLSEnabled  bool   `default:"true" usage:"enable TLS for the compile gRPC API"`
		TLSCertPath string `default:"" usage:"path to TLS certificate"`
		TLSKeyPath  string `default:"" usage:"path to TLS key"`
		TLSCAPath   string `default:"" usage:"path to CA certificate for mutual TLS"`
	}

	REST struct {
		Enabled     bool    `default:"true" usage:"enable the HTTP compile façade"`
		BindAddress string  `default:"0.0.0.0:9071" usage:"bind address for the HTTP compile façade"`
		RateLimit   float64 `default:"5" usage:"maximum compile requests per second per caller"`
		Burst       int     `default:"10" usage:"burst size for the HTTP rate limiter"`
	}
}

var ParamsCompileService = &ParametersCompileService{}

var params = &app.ComponentParams{
	Params: map[string]any{
		"tomblang": ParamsCompileService,
	},
	Masked: []string{"tomblang.masterKeyHex"},
}
