// Package server assembles a Coordinator, Handler, and miekg/dns server
// into a running leshy process: startup, live reload, and graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/vishvananda/netlink"

	"github.com/leshy-dns/leshy/internal/backend"
	"github.com/leshy-dns/leshy/internal/config"
	"github.com/leshy-dns/leshy/internal/logging"
	"github.com/leshy-dns/leshy/internal/reload"
	"github.com/leshy-dns/leshy/internal/route"
	"github.com/leshy-dns/leshy/internal/routemanager"
)

// shutdownGrace bounds how long the server waits for in-flight queries
// to drain before forcing the listeners closed.
const shutdownGrace = 5 * time.Second

// Exit-code sentinels (0=clean shutdown, 1=config error, 2=bind
// failure, 3=unrecoverable backend initialization failure). cmd/leshy
// classifies errors against these with errors.Is to pick the process
// exit code; they carry no data of their own, only identity.
var (
	ErrConfig      = errors.New("invalid configuration")
	ErrBind        = errors.New("listener bind failure")
	ErrBackendInit = errors.New("route backend initialization failure")
)

// Server is a running leshy instance: one UDP and one TCP miekg/dns
// server sharing a Handler, plus the reload machinery that rebuilds the
// Handler on config changes.
type Server struct {
	configPath string

	coord   *reload.Coordinator
	udp     *dns.Server
	tcp     *dns.Server
	watcher *reload.Watcher

	log zerolog.Logger
}

// New loads configPath, wires the full pipeline, and returns a Server
// ready for Run. It does not bind sockets yet — that happens in Run so
// bind failures surface at the moment the caller expects a listen error.
func New(configPath string) (*Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if err := logging.Configure(logging.Config(cfg.Log)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	rb, err := selectBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendInit, err)
	}

	coord := reload.New(cfg.CacheSize, defaultAttemptTimeout, routemanager.FailureMode(cfg.RouteFailureMode), rb)
	h, err := coord.Reload(cfg.Zones, cfg.DefaultUpstream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	s := &Server{
		configPath: configPath,
		coord:      coord,
		udp:        &dns.Server{Addr: cfg.ListenAddress, Net: "udp", Handler: h},
		tcp:        &dns.Server{Addr: cfg.ListenAddress, Net: "tcp", Handler: h},
		log:        logging.With("server"),
	}

	if cfg.AutoReload {
		w, err := reload.WatchConfig(configPath, s.reloadFromDisk)
		if err != nil {
			return nil, fmt.Errorf("%w: watch config: %v", ErrConfig, err)
		}
		s.watcher = w
	}

	return s, nil
}

const defaultAttemptTimeout = 2 * time.Second

// selectBackend picks the route.Backend implementation: netlink on
// Linux, the portable `ip route` shell-out everywhere else. On Linux it
// probes the netlink socket once up front; a permission or namespace
// problem here is an unrecoverable backend initialization failure
// rather than something route_failure_mode can paper over.
func selectBackend() (route.Backend, error) {
	if runtime.GOOS != "linux" {
		return &backend.Shell{}, nil
	}
	if _, err := netlink.LinkList(); err != nil {
		return nil, err
	}
	return &backend.Netlink{}, nil
}

func (s *Server) reloadFromDisk() {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		s.log.Error().Err(err).Msg("config reload failed, keeping previous configuration")
		return
	}

	h, err := s.coord.Reload(cfg.Zones, cfg.DefaultUpstream)
	if err != nil {
		s.log.Error().Err(err).Msg("reload failed, keeping previous handler")
		return
	}

	s.udp.Handler = h
	s.tcp.Handler = h
	s.log.Info().Msg("configuration reloaded")
}

// Run starts serving until ctx is cancelled, then shuts down gracefully:
// stop accepting new connections, drain in-flight queries for up to
// shutdownGrace, then withdraw every route leshy installed, dynamic and
// static. Abrupt
// termination (no graceful Run exit) skips this and leaves routes in the
// kernel, which is an accepted failure mode: they are idempotently
// reinstalled on the next startup.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.udp.ListenAndServe() }()
	go func() { errCh <- s.tcp.ListenAndServe() }()

	s.log.Info().Str("addr", s.udp.Addr).Msg("listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("%w: %v", ErrBind, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Close()
	}

	var shutdownErr error
	if err := s.udp.ShutdownContext(shutdownCtx); err != nil {
		shutdownErr = err
	}
	if err := s.tcp.ShutdownContext(shutdownCtx); err != nil && shutdownErr == nil {
		shutdownErr = err
	}

	s.coord.Shutdown()
	logging.Close()
	return shutdownErr
}

