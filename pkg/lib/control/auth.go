package control

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"

	"github.com/SanjoDeundiak/peer-runner/pkg/lib/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// localClient names callers on the plain unix socket.
const localClient = "local"

type clientIDContextKey struct{}

func clientFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDContextKey{}).(string); ok {
		return v
	}
	return localClient
}

// extractSpiffeIDFromTLS returns the trust domain of the first SPIFFE URI SAN of the client certificate.
func extractSpiffeIDFromTLS(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(clientIDContextKey{}).(string); ok {
		return v, true
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p == nil {
		return "", false
	}
	ti, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", false
	}
	certs := ti.State.PeerCertificates
	if len(certs) == 0 || certs[0] == nil {
		return "", false
	}

	for _, uri := range certs[0].URIs {
		if uri != nil && uri.Scheme == "spiffe" {
			// spiffe://client1 -> "client1"
			return uri.Host, true
		}
	}
	return "", false
}

func injectClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, clientID)
}

func injectClientIDUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	clientID, ok := extractSpiffeIDFromTLS(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	return handler(injectClientID(ctx, clientID), req)
}

type streamWithCtx struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *streamWithCtx) Context() context.Context { return s.ctx }

func injectClientIDStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	clientID, ok := extractSpiffeIDFromTLS(ss.Context())
	if !ok {
		return status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	return handler(srv, &streamWithCtx{ServerStream: ss, ctx: injectClientID(ss.Context(), clientID)})
}

func serverTLS(cfg *config.TLSConfig) (*tls.Config, error) {
	cert, pool, err := loadTLS(cfg)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func clientTLS(cfg *config.TLSConfig) (*tls.Config, error) {
	cert, pool, err := loadTLS(cfg)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func loadTLS(cfg *config.TLSConfig) (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.X509KeyPair([]byte(cfg.CertPEM), []byte(cfg.KeyPEM))
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(cfg.CAPEM)) {
		return tls.Certificate{}, nil, errors.New("failed to parse CA certificate")
	}
	return cert, pool, nil
}
