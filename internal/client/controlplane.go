package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openmined/kbsync/internal/client/controlplane"
	"github.com/openmined/kbsync/internal/utils"
)

type ControlPlaneServer struct {
	config *controlplane.CPServerConfig
	server *http.Server
}

func NewControlPlaneServer(config *controlplane.CPServerConfig, deps *RouteDeps) (*ControlPlaneServer, error) {
	routes, err := SetupRoutes(deps, config)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// the events stream is long lived, so no write timeout
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &ControlPlaneServer{
		config: config,
		server: httpServer,
	}, nil
}

func (s *ControlPlaneServer) Start(ctx context.Context) error {
	addr, err := addrToURL(s.config.Addr)
	if err != nil {
		return err
	}
	slog.Info("control plane start", "addr", addr, utils.SecretAttr("token", s.config.AuthToken))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *ControlPlaneServer) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}

// addrToURL turns a listen address into the url clients use to reach it.
func addrToURL(addr string) (string, error) {
	if strings.Contains(addr, "://") {
		return "", fmt.Errorf("address %q must not have a scheme", addr)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("address %q has no port", addr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
