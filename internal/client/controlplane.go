package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/savebox/savebox/internal/client/middleware"
	"github.com/savebox/savebox/internal/utils"
)

// ControlPlaneServer is the loopback HTTP API a desktop UI talks to.
type ControlPlaneServer struct {
	config *ControlPlaneConfig
	server *http.Server
	daemon *Daemon
}

func NewControlPlaneServer(config *ControlPlaneConfig, daemon *Daemon) (*ControlPlaneServer, error) {
	if _, err := addrToURL(config.Addr); err != nil {
		return nil, fmt.Errorf("control plane address: %w", err)
	}

	routes := SetupRoutes(daemon, &RouteConfig{
		Auth: middleware.TokenAuthConfig{
			Token: config.AuthToken,
		},
	})

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Connection control
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return &ControlPlaneServer{
		config: config,
		server: httpServer,
		daemon: daemon,
	}, nil
}

func (s *ControlPlaneServer) Start(ctx context.Context) error {
	url, _ := addrToURL(s.config.Addr)
	slog.Info("control plane start", "url", url, "token", utils.MaskSecret(s.config.AuthToken))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control plane listen: %w", err)
	}

	return nil
}

func (s *ControlPlaneServer) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}

// addrToURL turns a bare listen address into a browsable http URL.
// Addresses must be host:port without a scheme; a blank host becomes
// 0.0.0.0.
func addrToURL(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.Contains(addr, "://") {
		return "", fmt.Errorf("address %q must not carry a scheme", addr)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("address %q missing port", addr)
	}
	if host == "" {
		host = "0.0.0.0"
	}

	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port)), nil
}
