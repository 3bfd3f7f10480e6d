package compilesvc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/tombwork/tomblang/internal/verification"
)

// GRPCServer fronts a Service with a gRPC listener, using TLS, keepalive
// and per-caller rate limiting in front of the hand-registered ServiceDesc
// this package uses in place of generated protobuf stubs.
type GRPCServer struct {
	svc *Service

	rateLimiter *verification.RateLimiter
	grpcServer  *grpc.Server
	bindAddress string
	tlsEnabled  bool
	tlsCertPath string
	tlsKeyPath  string
	tlsCAPath   string
	devMode     bool
}

// GRPCServerConfig configures NewGRPCServer.
type GRPCServerConfig struct {
	BindAddress string
	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string
	TLSCAPath   string
	DevMode     bool
}

// NewGRPCServer builds and registers a gRPC server for svc. TLS is required
// unless DevMode is set.
func NewGRPCServer(svc *Service, rateLimiter *verification.RateLimiter, config GRPCServerConfig) (*GRPCServer, error) {
	if rateLimiter == nil {
		rateLimiter = verification.NewRateLimiter(verification.DefaultRateLimiterConfig())
	}

	if config.DevMode {
		fmt.Fprintln(os.Stderr, "WARNING: tomblang compile gRPC server running in dev mode, TLS not enforced.")
	}
	if !config.TLSEnabled && !config.DevMode {
		return nil, fmt.Errorf("TLS is required for the compile gRPC server: set TLSEnabled=true or DevMode=true for testing")
	}

	g := &GRPCServer{
		svc:         svc,
		rateLimiter: rateLimiter,
		bindAddress: config.BindAddress,
		tlsEnabled:  config.TLSEnabled,
		tlsCertPath: config.TLSCertPath,
		tlsKeyPath:  config.TLSKeyPath,
		tlsCAPath:   config.TLSCAPath,
		devMode:     config.DevMode,
	}

	var opts []grpc.ServerOption
	opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    20 * time.Second,
		Timeout: 5 * time.Second,
	}))

	if config.TLSEnabled {
		tlsConfig, err := buildTLSConfig(config.TLSCertPath, config.TLSKeyPath, config.TLSCAPath)
		if err != nil {
			return nil, errors.Wrap(err, "compilesvc: configure TLS")
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	opts = append(opts, grpc.UnaryInterceptor(g.rateLimitInterceptor))

	g.grpcServer = grpc.NewServer(opts...)
	g.grpcServer.RegisterService(&serviceDesc, g)

	if config.DevMode {
		reflection.Register(g.grpcServer)
	}

	return g, nil
}

func buildTLSConfig(certPath, keyPath, caCertPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "load server certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if caCertPath != "" {
		caCert, err := os.ReadFile(caCertPath)
		if err != nil {
			return nil, errors.Wrap(err, "read CA certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("parse CA certificate")
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = pool
	}

	return tlsConfig, nil
}

// rateLimitInterceptor throttles callers per caller-id. The compile service
// has no per-method auth split yet, so this is the only interceptor.
func (g *GRPCServer) rateLimitInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	callerID := extractCallerID(ctx)

	if err := g.rateLimiter.Allow(callerID); err != nil {
		retryAfter := g.rateLimiter.GetRetryAfter(callerID)
		return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded: retry after %v", retryAfter)
	}

	return handler(ctx, req)
}

func extractCallerID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "anonymous"
	}
	if values := md.Get("authorization"); len(values) > 0 {
		return values[0]
	}
	return "anonymous"
}

// Start blocks serving gRPC on the configured bind address.
func (g *GRPCServer) Start() error {
	listener, err := net.Listen("tcp", g.bindAddress)
	if err != nil {
		return errors.Wrap(err, "compilesvc: listen")
	}
	return g.grpcServer.Serve(listener)
}

// Stop gracefully drains in-flight RPCs before returning.
func (g *GRPCServer) Stop() {
	g.grpcServer.GracefulStop()
}
