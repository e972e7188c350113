package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
)

// commandTimeout bounds how long a single RPC waits for the analyzer's
// dispatch loop to answer an inspector command before giving up.
const commandTimeout = 5 * time.Second

// Analyzer is the subset of *sdrcore.Analyzer the control plane drives,
// expressed as an interface so this package doesn't need to import the
// root package and so tests can supply a fake.
type Analyzer interface {
	Inbox() *mailbox.Mailbox
	Outbox() *mailbox.Mailbox
}

// OpenRequest asks the control plane to open an inspector.
type OpenRequest struct {
	Class       string
	FrequencyHz float64
	BandwidthHz float64
}

// OpenResponse carries the opened inspector's handle.
type OpenResponse struct {
	Handle uint64
}

// SetFrequencyRequest retunes an already-open inspector.
type SetFrequencyRequest struct {
	Handle      uint64
	FrequencyHz float64
}

// CloseRequest closes an inspector.
type CloseRequest struct {
	Handle uint64
}

// StatusResponse is the generic command acknowledgement.
type StatusResponse struct {
	OK      bool
	Message string
}

// Empty is an argument-less request.
type Empty struct{}

// SourceInfoResponse mirrors the fields of message.SourceInfo clients
// most commonly need; QTH and Gains are omitted to keep the wire shape
// flat for the hand-written JSON codec.
type SourceInfoResponse struct {
	Frequency           float64
	EffectiveSampleRate float64
	MeasuredSampleRate  float64
	Bandwidth           float64
	Antenna             string
	Antennas            []string
}

// ControlServer implements the inspector control plane on top of an
// Analyzer's existing inbox/outbox mailboxes, serializing command
// round-trips with a mutex since the outbox is shared across every
// concurrent caller and envelopes carry no per-request correlation ID.
//
// Grounded on commands.go's dispatch table (spec §4.11): every command
// this server issues is exactly an InspectorMessage write/read pair,
// the same protocol a same-process client uses.
type ControlServer struct {
	UnimplementedControlServer

	analyzer Analyzer

	mu sync.Mutex
}

// NewControlServer wraps an Analyzer for gRPC control-plane access.
func NewControlServer(a Analyzer) *ControlServer {
	return &ControlServer{analyzer: a}
}

func (s *ControlServer) roundTrip(ctx context.Context, cmd *message.InspectorMessage) (*message.InspectorMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyzer.Inbox().Write(message.TagInspector, cmd)

	deadline := commandTimeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > 0 && remaining < deadline {
			deadline = remaining
		}
	}

	resp, err := s.analyzer.Outbox().ReadOfTypeTimed(message.TagInspector, deadline)
	if err != nil {
		return nil, status.Errorf(codes.DeadlineExceeded, "inspector command timed out: %v", err)
	}
	im, ok := resp.(*message.InspectorMessage)
	if !ok {
		return nil, status.Error(codes.Internal, "unexpected response payload")
	}
	return im, nil
}

// Open opens a new inspector of the requested class at the given
// center frequency and bandwidth.
func (s *ControlServer) Open(ctx context.Context, req *OpenRequest) (*OpenResponse, error) {
	resp, err := s.roundTrip(ctx, &message.InspectorMessage{
		Kind:        message.KindOpen,
		Class:       req.Class,
		FrequencyHz: req.FrequencyHz,
		BandwidthHz: req.BandwidthHz,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, status.Error(codes.FailedPrecondition, resp.Error)
	}
	return &OpenResponse{Handle: uint64(resp.Handle)}, nil
}

// SetFrequency retunes an open inspector.
func (s *ControlServer) SetFrequency(ctx context.Context, req *SetFrequencyRequest) (*StatusResponse, error) {
	resp, err := s.roundTrip(ctx, &message.InspectorMessage{
		Kind:           message.KindSetFreq,
		Handle:         message.Handle(req.Handle),
		NewFrequencyHz: req.FrequencyHz,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &StatusResponse{OK: false, Message: resp.Error}, nil
	}
	return &StatusResponse{OK: true}, nil
}

// Close tears down an open inspector.
func (s *ControlServer) Close(ctx context.Context, req *CloseRequest) (*StatusResponse, error) {
	resp, err := s.roundTrip(ctx, &message.InspectorMessage{
		Kind:   message.KindClose,
		Handle: message.Handle(req.Handle),
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &StatusResponse{OK: false, Message: resp.Error}, nil
	}
	return &StatusResponse{OK: true}, nil
}

// serviceName is used both in the ServiceDesc and for building the
// full method name grpc.NewServer dispatches on.
const serviceName = "sdrcore.remote.Control"

func fullMethod(name string) string {
	return fmt.Sprintf("/%s/%s", serviceName, name)
}

// controlServiceDesc is hand-written in place of a protoc-generated
// descriptor: there is no .proto pipeline in this module, so each
// method decodes its request with the registered JSON codec and
// forwards to the corresponding ControlServer method.
var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Open",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(OpenRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(controlServer).Open(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Open")}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(controlServer).Open(ctx, req.(*OpenRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "SetFrequency",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(SetFrequencyRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(controlServer).SetFrequency(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("SetFrequency")}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(controlServer).SetFrequency(ctx, req.(*SetFrequencyRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "Close",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(CloseRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(controlServer).Close(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Close")}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(controlServer).Close(ctx, req.(*CloseRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Metadata: "sdrcore/remote/control.proto",
}

// controlServer is the interface the hand-written ServiceDesc dispatches
// against; *ControlServer satisfies it.
type controlServer interface {
	Open(context.Context, *OpenRequest) (*OpenResponse, error)
	SetFrequency(context.Context, *SetFrequencyRequest) (*StatusResponse, error)
	Close(context.Context, *CloseRequest) (*StatusResponse, error)
}

// UnimplementedControlServer embeds into ControlServer so adding a
// method to controlServer later doesn't break existing implementations
// at compile time, matching the forward-compatibility convention of
// protoc-generated servers.
type UnimplementedControlServer struct{}

// RegisterControlServer registers srv's methods on s using the
// hand-written service descriptor and JSON codec.
func RegisterControlServer(s *grpc.Server, srv controlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}
