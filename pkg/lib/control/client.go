package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib"
	"github.com/SanjoDeundiak/peer-runner/pkg/lib/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a running supervisor.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the supervisor at address, using mutual TLS when tlsCfg is set.
func Dial(address string, tlsCfg *config.TLSConfig, opts ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()
	if tlsCfg != nil {
		cfg, err := clientTLS(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS material: %w", err)
		}
		creds = credentials.NewTLS(cfg)
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)

	conn, err := grpc.NewClient(dialTarget(address), opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func dialTarget(address string) string {
	network, addr := splitAddress(address)
	if network == "unix" {
		return "unix:" + addr
	}
	return addr
}

// State fetches the current run id and peers.
func (c *Client) State(ctx context.Context) (*Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod("State"), &emptypb.Empty{}, out); err != nil {
		return nil, fromStatus(err)
	}
	return decodeState(out)
}

// StartPeer starts one peer of the current fleet.
func (c *Client) StartPeer(ctx context.Context, peerID int) error {
	return c.invokePeer(ctx, "StartPeer", peerID)
}

// StopPeer stops one peer of the current fleet.
func (c *Client) StopPeer(ctx context.Context, peerID int) error {
	return c.invokePeer(ctx, "StopPeer", peerID)
}

// Restart relaunches the whole fleet.
func (c *Client) Restart(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, fullMethod("Restart"), &emptypb.Empty{}, new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *Client) invokePeer(ctx context.Context, method string, peerID int) error {
	if peerID < 0 || peerID > math.MaxInt32 {
		return fmt.Errorf("peer id out of range: %d", peerID)
	}
	if err := c.conn.Invoke(ctx, fullMethod(method), wrapperspb.Int32(int32(peerID)), new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}

// Logs streams the output of one peer from its first line. fn is called for every line until the peer is
// stopped, ctx ends, or fn returns an error.
func (c *Client) Logs(ctx context.Context, peerID int, fn func(lib.ConsoleLine) error) error {
	if peerID < 0 || peerID > math.MaxInt32 {
		return fmt.Errorf("peer id out of range: %d", peerID)
	}
	cs, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Logs"))
	if err != nil {
		return fromStatus(err)
	}
	stream := &grpc.GenericClientStream[wrapperspb.Int32Value, structpb.Struct]{ClientStream: cs}
	if err := stream.Send(wrapperspb.Int32(int32(peerID))); err != nil {
		return fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return fromStatus(err)
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fromStatus(err)
		}
		if err := fn(decodeLine(msg)); err != nil {
			return err
		}
	}
}

// fromStatus turns well-known status codes back into the supervisor's sentinel errors.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = lib.ErrPeerNotFound
	case codes.AlreadyExists:
		sentinel = lib.ErrPeerExists
	case codes.Unavailable:
		if !strings.Contains(st.Message(), lib.ErrShuttingDown.Error()) {
			return err
		}
		sentinel = lib.ErrShuttingDown
	default:
		return err
	}
	return &remoteError{msg: st.Message(), err: sentinel}
}

// remoteError carries the server's message and unwraps to the matching sentinel.
type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.err }
