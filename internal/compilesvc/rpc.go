package compilesvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tombwork/tomblang/internal/tomblang"
)

// CompileRequest is the wire shape of the Compile RPC's single argument,
// carried as JSON via jsonCodec rather than a generated protobuf message.
type CompileRequest struct {
	Source string `json:"source"`
}

// CompiledModule is the wire shape of one tomblang.Module.
type CompiledModule struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Script []byte `json:"script"`
	ABI    []byte `json:"abi"`
}

// CompileResponse is the wire shape of the Compile RPC's result.
type CompileResponse struct {
	RequestID  string           `json:"request_id"`
	SourceHash string           `json:"source_hash"`
	Modules    []CompiledModule `json:"modules"`
	Signature  []byte           `json:"signature,omitempty"`
}

func toWireModules(modules []tomblang.Module) []CompiledModule {
	out := make([]CompiledModule, 0, len(modules))
	for _, m := range modules {
		out = append(out, CompiledModule{
			Name:   m.Name,
			Kind:   m.Kind.String(),
			Script: m.Script,
			ABI:    m.ABI,
		})
		out = append(out, toWireModules(m.SubModules)...)
	}
	return out
}

// compileServer is the handler type grpc.ServiceDesc dispatches to; it is
// satisfied by *GRPCServer.
type compileServer interface {
	Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error)
}

// serviceDesc is hand-written in the exact shape protoc-gen-go-grpc would
// emit for a one-method "CompileService" service, since no .pb.go stubs
// were generated for this service (see jsonCodec in
// internal/compilesvc/codec.go). grpc.Server.RegisterService accepts this directly in place
// of a generated pb.RegisterXServer call.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "tomblang.CompileService",
	HandlerType: (*compileServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Compile",
			Handler:    compileHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/compilesvc/rpc.go",
}

func compileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CompileRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(compileServer).Compile(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/tomblang.CompileService/Compile",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(compileServer).Compile(ctx, req.(*CompileRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// Compile implements compileServer for *GRPCServer, translating between
// the wire types above and the Service's native Compile call.
func (g *GRPCServer) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	if req.Source == "" {
		return nil, status.Error(codes.InvalidArgument, "source is required")
	}

	result, err := g.svc.Compile(ctx, req.Source)
	if err != nil {
		if _, ok := err.(*tomblang.CompilerError); ok {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "compile failed: %v", err)
	}

	return &CompileResponse{
		RequestID:  result.RequestID,
		SourceHash: result.SourceHash,
		Modules:    toWireModules(result.Modules),
		Signature:  result.Signature,
	}, nil
}
