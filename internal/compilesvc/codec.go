package compilesvc

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc's global codec registry so a
// grpc.Server built without any generated .pb.go stubs can still exchange
// plain Go structs over the wire. Every RPC on this service sets it as
// the call's content-subtype.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec by delegating to encoding/json. It
// exists because internal/compilesvc has no generated protobuf messages to
// hand grpc-go's default proto codec; grpc's codec registry is built to be
// pluggable exactly this way.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "compilesvc: json marshal")
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "compilesvc: json unmarshal")
	}
	return nil
}

func (jsonCodec) Name() string {
	return jsonCodecName
}
