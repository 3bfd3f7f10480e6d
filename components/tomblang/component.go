// Package tomblang wires internal/compilesvc into the app.Component
// lifecycle, following components/lockbox/component.go's
// Params/Provide/Configure/Run shape.
package tomblang

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/iotaledger/hive.go/app"
	"github.com/iotaledger/hive.go/kvstore/mapdb"
	"go.uber.org/dig"

	"github.com/tombwork/tomblang/daemon"
	"github.com/tombwork/tomblang/internal/artifacts"
	"github.com/tombwork/tomblang/internal/compilesvc"
	compilemw "github.com/tombwork/tomblang/internal/compilesvc/middleware"
	"github.com/tombwork/tomblang/internal/keys"
)

func init() {
	Component = &app.Component{
		Name:     "TombLang-CompileService",
		DepsFunc: func(cDeps dependencies) { deps = cDeps },
		Params:   params,
		IsEnabled: func(_ *dig.Container) bool {
			return ParamsCompileService.Enabled
		},
		Provide:   provide,
		Configure: configure,
		Run:       run,
	}
}

var (
	Component  *app.Component
	deps       dependencies
	svc        *compilesvc.Service
	grpcServer *compilesvc.GRPCServer
	restServer *http.Server
)

// dependencies is empty for now: the compile service is self-contained
// (its artifact store and signing key are local to this component rather
// than shared tangle state), unlike components/lockbox which wires into
// *storage.Storage/*utxo.Manager/*syncmanager.SyncManager/*protocol.Manager.
type dependencies struct {
	dig.In
}

func provide(c *dig.Container) error {
	return nil
}

func configure() error {
	Component.LogInfo("TombLang compile service configuring...")

	masterKey, err := loadOrGenerateMasterKey()
	if err != nil {
		Component.LogErrorf("Failed to establish deployer key seal: %v", err)
		return err
	}

	keyMgr, err := keys.NewManager(Component.App().NewLogger("TombLang-Keys"), masterKey)
	if err != nil {
		Component.LogErrorf("Failed to create key manager: %v", err)
		return err
	}
	if _, err := keyMgr.GenerateKey(); err != nil {
		Component.LogErrorf("Failed to generate deployer signing key: %v", err)
		return err
	}

	artifactStore, err := artifacts.NewStore(mapdb.NewMapDB())
	if err != nil {
		Component.LogErrorf("Failed to create artifact store: %v", err)
		return err
	}

	svc = compilesvc.New(Component.App().NewLogger("TombLang-Compiler"), keyMgr, artifactStore, compilesvc.NewMetrics())

	grpcServer, err = compilesvc.NewGRPCServer(svc, nil, compilesvc.GRPCServerConfig{
		BindAddress: ParamsCompileService.GRPC.BindAddress,
		TLSEnabled:  ParamsCompileService.GRPC.TLSEnabled,
		TLSCertPath: ParamsCompileService.GRPC.TLSCertPath,
		TLSKeyPath:  ParamsCompileService.GRPC.TLSKeyPath,
		TLSCAPath:   ParamsCompileService.GRPC.TLSCAPath,
		DevMode:     ParamsCompileService.DevMode,
	})
	if err != nil {
		Component.LogErrorf("Failed to create compile gRPC server: %v", err)
		return err
	}
	Component.LogInfo("TombLang compile gRPC server created")

	if ParamsCompileService.REST.Enabled {
		e := compilesvc.NewEcho(svc, compilemw.Config{
			Enabled:              true,
			MaxRequestsPerSecond: ParamsCompileService.REST.RateLimit,
			Burst:                ParamsCompileService.REST.Burst,
		})
		restServer = &http.Server{Addr: ParamsCompileService.REST.BindAddress, Handler: e}
	}

	return nil
}

func run() error {
	if err := Component.Daemon().BackgroundWorker("TombLang-gRPC", func(ctx context.Context) {
		Component.LogInfof("Starting TombLang compile gRPC server on %s...", ParamsCompileService.GRPC.BindAddress)

		if err := grpcServer.Start(); err != nil {
			Component.LogErrorf("Failed to start compile gRPC server: %v", err)
			return
		}

		<-ctx.Done()

		Component.LogInfo("Stopping TombLang compile gRPC server...")
		grpcServer.Stop()
		Component.LogInfo("TombLang compile gRPC server stopped")
	}, daemon.PriorityCompileService); err != nil {
		return err
	}

	if restServer != nil {
		if err := Component.Daemon().BackgroundWorker("TombLang-REST", func(ctx context.Context) {
			Component.LogInfof("Starting TombLang compile REST façade on %s...", ParamsCompileService.REST.BindAddress)

			go func() {
				if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					Component.LogErrorf("Compile REST façade stopped unexpectedly: %v", err)
				}
			}()

			<-ctx.Done()

			Component.LogInfo("Stopping TombLang compile REST façade...")
			_ = restServer.Shutdown(context.Background())
		}, daemon.PriorityCompileService); err != nil {
			return err
		}
	}

	return nil
}

// loadOrGenerateMasterKey decodes ParamsCompileService.MasterKeyHex, or
// generates and logs a fresh key when none was configured. That's
// acceptable for development, but every production deployment should pin
// this.
func loadOrGenerateMasterKey() ([]byte, error) {
	if ParamsCompileService.MasterKeyHex != "" {
		key, err := hex.DecodeString(ParamsCompileService.MasterKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decode masterKeyHex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("masterKeyHex must decode to 32 bytes, got %d", len(key))
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	Component.LogWarnf("No tomblang.masterKeyHex configured; generated an ephemeral one for this run: %s", hex.EncodeToString(key))
	return key, nil
}
