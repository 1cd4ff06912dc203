package netprobe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/devrev/adaptivenet/internal/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// BackendPinger performs one lightweight round trip to the primary backend
type BackendPinger interface {
	Ping(ctx context.Context) error
}

// HTTPPinger pings the backend with a GET on a lightweight endpoint.
// Any response below 500 means the backend answered.
type HTTPPinger struct {
	client *http.Client
	url    string
}

// NewHTTPPinger creates an HTTP backend pinger
func NewHTTPPinger(client *http.Client, url string) *HTTPPinger {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPPinger{client: client, url: url}
}

// Ping issues the request and classifies the outcome
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build backend probe: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return apierrors.NewRemoteError(resp.StatusCode, "backend probe failed", nil)
	}
	return nil
}

// GRPCPinger pings the backend with the standard gRPC health check
type GRPCPinger struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// NewGRPCPinger dials target and returns a health-check pinger
func NewGRPCPinger(target, service string) (*GRPCPinger, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to backend: %w", err)
	}

	return NewGRPCPingerFromConn(conn, service), nil
}

// NewGRPCPingerFromConn wraps an existing connection
func NewGRPCPingerFromConn(conn *grpc.ClientConn, service string) *GRPCPinger {
	return &GRPCPinger{
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
		service: service,
	}
}

// Ping runs a health check and requires SERVING
func (p *GRPCPinger) Ping(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apierrors.NewRemoteError(http.StatusServiceUnavailable,
			fmt.Sprintf("backend reports %s", resp.GetStatus()), nil)
	}
	return nil
}

// Close closes the gRPC connection
func (p *GRPCPinger) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
