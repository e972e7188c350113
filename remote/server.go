package remote

import (
	"net"
	"net/http"

	"google.golang.org/grpc"
)

// Config configures the remote-access facades. Either listen address
// may be left empty to disable that facade.
type Config struct {
	GRPCListenAddr string
	WSListenAddr   string
}

// Server bundles the gRPC control plane and WebSocket data plane behind
// one Start/Stop pair, matching the teacher's pattern of constructing
// its HTTP/WebSocket server and a separate sidecar listener from one
// top-level config struct.
type Server struct {
	cfg Config

	grpcServer *grpc.Server
	grpcLis    net.Listener

	httpServer *http.Server
	PSD        *PSDStreamer
}

// NewServer wires a ControlServer and a PSDStreamer into a Server ready
// to Start. analyzer may be nil if only the PSD data plane is wanted.
func NewServer(cfg Config, analyzer Analyzer) *Server {
	s := &Server{cfg: cfg, PSD: NewPSDStreamer()}

	if cfg.GRPCListenAddr != "" && analyzer != nil {
		s.grpcServer = grpc.NewServer()
		RegisterControlServer(s.grpcServer, NewControlServer(analyzer))
	}

	if cfg.WSListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/psd", s.PSD)
		s.httpServer = &http.Server{Addr: cfg.WSListenAddr, Handler: mux}
	}

	return s
}

// Start begins serving both facades in background goroutines. It
// returns immediately. A failure to open the gRPC listener is returned;
// errors after serving has begun are logged, not returned.
func (s *Server) Start() error {
	if s.grpcServer != nil {
		lis, err := net.Listen("tcp", s.cfg.GRPCListenAddr)
		if err != nil {
			return err
		}
		s.grpcLis = lis
		go func() {
			if err := s.grpcServer.Serve(lis); err != nil {
				log_.Printf("grpc server stopped: %v", err)
			}
		}()
	}

	if s.httpServer != nil {
		go func() {
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log_.Printf("websocket server stopped: %v", err)
			}
		}()
	}
	return nil
}

// Stop gracefully stops the gRPC server and closes the WebSocket
// server immediately.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}
