// Package remote implements the analyzer's optional remote-access
// facades: a gRPC control plane for inspector commands, a WebSocket
// data plane for PSD/spectrum frames, and (build-tag gated) Opus audio
// encoding for sampler-ring output. None of these define a pinned wire
// protocol the core itself depends on (spec §1's "does not define the
// wire protocol between local and remote analyzers") - they are one
// concrete, swappable implementation of that boundary.
//
// Grounded on websocket.go (gorilla/websocket data plane), pcm_binary.go
// (klauspost/compress zstd framing), and opus_support.go/opus_stub.go
// (build-tagged Opus support with a PCM fallback).
package remote

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "sdrcore-json"

// jsonCodec is a grpc/encoding.Codec marshaling plain Go structs as
// JSON, used in place of protobuf so the control-plane service
// descriptor can be hand-written without a protoc code-generation step.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
