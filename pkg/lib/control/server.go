package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const stopGrace = 2 * time.Second

// service adapts a Controller to the gRPC handler interface.
type service struct {
	ctrl Controller
}

func (s *service) State(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	runID, peers := s.ctrl.State()
	out, err := encodeState(runID, peers)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "error encoding state: %v", err)
	}
	return out, nil
}

func (s *service) StartPeer(ctx context.Context, request *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	peerID, err := peerIDFrom(request)
	if err != nil {
		return nil, err
	}
	logger.Printf("%s starts %s", clientFromContext(ctx), lib.PeerName(peerID))
	if err := s.ctrl.StartPeer(ctx, peerID); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) StopPeer(ctx context.Context, request *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	peerID, err := peerIDFrom(request)
	if err != nil {
		return nil, err
	}
	logger.Printf("%s stops %s", clientFromContext(ctx), lib.PeerName(peerID))
	if err := s.ctrl.StopPeer(ctx, peerID); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) Restart(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	logger.Printf("%s restarts the fleet", clientFromContext(ctx))
	if err := s.ctrl.Restart(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) Logs(request *wrapperspb.Int32Value, streaming grpc.ServerStreamingServer[structpb.Struct]) error {
	peerID, err := peerIDFrom(request)
	if err != nil {
		return err
	}
	ctx := streaming.Context()
	lines, err := s.ctrl.Output(ctx, peerID)
	if err != nil {
		return toStatus(err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			msg, err := encodeLine(line)
			if err != nil {
				return status.Errorf(codes.Internal, "error encoding output: %v", err)
			}
			if err := streaming.Send(msg); err != nil {
				return err
			}
		}
	}
}

func peerIDFrom(request *wrapperspb.Int32Value) (int, error) {
	if request.GetValue() < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "peer id must not be negative: %d", request.GetValue())
	}
	return int(request.GetValue()), nil
}

// toStatus maps supervisor errors onto gRPC status codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, os.ErrNotExist):
		code = codes.NotFound
	case errors.Is(err, os.ErrExist):
		code = codes.AlreadyExists
	case errors.Is(err, lib.ErrShuttingDown):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

// GRPCServer couples the gRPC server with its listener.
type GRPCServer struct {
	lis        net.Listener
	s          *grpc.Server
	socketPath string
}

// NewGRPCServer registers ctrl on a new gRPC server bound to lis. With tlsCfg set, clients must present a
// certificate signed by the configured CA that carries a SPIFFE ID.
func NewGRPCServer(ctrl Controller, lis net.Listener, tlsCfg *config.TLSConfig) (*GRPCServer, error) {
	var opts []grpc.ServerOption
	if tlsCfg != nil {
		cfg, err := serverTLS(tlsCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			grpc.Creds(credentials.NewTLS(cfg)),
			grpc.UnaryInterceptor(injectClientIDUnary),
			grpc.StreamInterceptor(injectClientIDStream),
		)
	}
	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, &service{ctrl: ctrl})

	g := &GRPCServer{lis: lis, s: s}
	if addr, ok := lis.Addr().(*net.UnixAddr); ok {
		g.socketPath = addr.Name
	}
	return g, nil
}

// Serve starts serving gRPC on the configured listener.
func (g *GRPCServer) Serve() error {
	return g.s.Serve(g.lis)
}

// Addr returns the network address the server is bound to.
func (g *GRPCServer) Addr() net.Addr { return g.lis.Addr() }

// Stop stops the gRPC server, cutting streams that do not finish within a short grace period,
// and removes the unix socket.
func (g *GRPCServer) Stop() {
	done := make(chan struct{})
	go func() {
		g.s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		g.s.Stop()
		<-done
	}
	if g.socketPath != "" {
		if err := os.Remove(g.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Printf("Failed to remove socket %s: %v", g.socketPath, err)
		}
	}
}

// Listen opens the control listener for address, which is either "unix:<path>", "unix://<abs path>" or
// a TCP "host:port". A stale unix socket left by a crashed supervisor is replaced.
func Listen(address string) (net.Listener, error) {
	network, addr := splitAddress(address)
	if network == "unix" {
		if conn, err := net.DialTimeout("unix", addr, 200*time.Millisecond); err == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("another supervisor is listening on %s", addr)
		}
		if err := os.Remove(addr); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}
	lis, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

func splitAddress(address string) (network, addr string) {
	switch {
	case strings.HasPrefix(address, "unix://"):
		return "unix", strings.TrimPrefix(address, "unix://")
	case strings.HasPrefix(address, "unix:"):
		return "unix", strings.TrimPrefix(address, "unix:")
	case strings.HasPrefix(address, "tcp://"):
		return "tcp", strings.TrimPrefix(address, "tcp://")
	default:
		return "tcp", address
	}
}
