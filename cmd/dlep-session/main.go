// dlep-session is a demo entrypoint wiring the DLEP session-state core to a
// real TCP transport. It is deliberately small: TCP bootstrap, peer
// discovery, and the XML protocol-definition parser are all out of scope
// for the core (spec.md §1) and are stood up here only as the external
// collaborators the core expects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/go-dlep/dlep/internal/config"
	"github.com/go-dlep/dlep/internal/dlep"
	"github.com/go-dlep/dlep/internal/dlepmetrics"
	appversion "github.com/go-dlep/dlep/internal/version"
)

// shutdownTimeout bounds graceful HTTP server drain on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	peerAddr := flag.String("peer", "", "router role only: address of the modem to dial (host:port)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("dlep-session starting",
		slog.String("version", appversion.Version),
		slog.Bool("is_modem", cfg.Session.IsModem),
		slog.String("listen_addr", cfg.Session.ListenAddr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := dlepmetrics.NewCollector(reg)

	mgrCfg, err := sessionManagerConfig(cfg, logger)
	if err != nil {
		logger.Error("invalid session configuration", slog.String("error", err.Error()))
		return 1
	}

	mgr := dlep.NewManager(mgrCfg, collector)
	defer mgr.Close()

	if err := runServers(cfg, mgr, reg, logger, *peerAddr); err != nil {
		logger.Error("dlep-session exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("dlep-session stopped")
	return 0
}

// runServers starts the metrics HTTP endpoint and the peer transport
// (listener for the modem role, dialer for the router role) under a
// signal-aware errgroup, mirroring the teacher's runServers shutdown shape.
func runServers(cfg *config.Config, mgr *dlep.Manager, reg *prometheus.Registry, logger *slog.Logger, peerAddr string) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	if cfg.Session.IsModem {
		g.Go(func() error {
			return runModemListener(gCtx, cfg, mgr, logger)
		})
	} else {
		if peerAddr == "" {
			return errors.New("router role requires -peer host:port")
		}
		g.Go(func() error {
			return runRouterDialer(gCtx, cfg, mgr, logger, peerAddr)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runModemListener accepts inbound TCP connections and registers each as a
// Peer with dlep.RoleModem.
func runModemListener(ctx context.Context, cfg *config.Config, mgr *dlep.Manager, logger *slog.Logger) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", cfg.Session.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Session.ListenAddr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go acceptPeer(ctx, mgr, logger, conn)
	}
}

// runRouterDialer dials a single modem peer and registers it with
// dlep.RoleRouter. Blocks until ctx is cancelled; a closed connection ends
// the read loop but not this call.
func runRouterDialer(ctx context.Context, cfg *config.Config, mgr *dlep.Manager, logger *slog.Logger, peerAddr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", peerAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", peerAddr, err)
	}

	remote, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		conn.Close()
		return fmt.Errorf("dial %s: unexpected remote address type", peerAddr)
	}

	peer, err := mgr.AddPeer(ctx, tcpAddrToAddrPort(remote), conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("add peer %s: %w", peerAddr, err)
	}

	runReadLoop(ctx, peer, conn, logger)
	<-ctx.Done()
	return nil
}

// acceptPeer registers an inbound connection as a Peer and runs its read
// loop until the connection closes or ctx is cancelled.
func acceptPeer(ctx context.Context, mgr *dlep.Manager, logger *slog.Logger, conn net.Conn) {
	remote, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		logger.Warn("rejecting connection: unexpected remote address type")
		conn.Close()
		return
	}

	peer, err := mgr.AddPeer(ctx, tcpAddrToAddrPort(remote), conn)
	if err != nil {
		logger.Warn("failed to add peer", slog.String("remote", remote.String()), slog.String("error", err.Error()))
		conn.Close()
		return
	}

	runReadLoop(ctx, peer, conn, logger)
}

// runReadLoop feeds inbound bytes from conn to peer.Feed until the
// connection closes or ctx is cancelled (spec.md §1: the core consumes an
// already-established byte stream; reading from it is the transport
// layer's job).
func runReadLoop(ctx context.Context, peer *dlep.Peer, conn net.Conn, logger *slog.Logger) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := peer.Feed(buf[:n]); ferr != nil {
				logger.Warn("peer feed error", slog.String("peer_id", peer.ID()), slog.String("error", ferr.Error()))
				peer.Terminate(ferr)
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("connection closed", slog.String("peer_id", peer.ID()), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func tcpAddrToAddrPort(addr *net.TCPAddr) netip.AddrPort {
	ip, _ := netip.AddrFromSlice(addr.IP)
	return netip.AddrPortFrom(ip.Unmap(), uint16(addr.Port))
}

// sessionManagerConfig translates the declarative config into a
// dlep.ManagerConfig using the reference StaticCatalogue and TLV codec
// (cfg.Session.SupportedExtensions names the extension ids this deployment
// advertises).
func sessionManagerConfig(cfg *config.Config, logger *slog.Logger) (dlep.ManagerConfig, error) {
	role := dlep.RoleRouter
	if cfg.Session.IsModem {
		role = dlep.RoleModem
	}

	extensions := make([]dlep.ExtensionID, 0, len(cfg.Session.SupportedExtensions))
	for _, id := range cfg.Session.SupportedExtensions {
		if id < 0 || id > 0xFFFF {
			return dlep.ManagerConfig{}, fmt.Errorf("extension id %d out of range", id)
		}
		extensions = append(extensions, dlep.ExtensionID(id))
	}

	return dlep.ManagerConfig{
		Role:                     role,
		Catalogue:                dlep.NewStaticCatalogue(),
		Codec:                    dlep.NewTLVCodec(),
		Clock:                    clockwork.NewRealClock(),
		Callbacks:                dlep.NopCallbacks{},
		Logger:                   logger,
		HeartbeatInterval:        cfg.Session.HeartbeatInterval,
		RetryInterval:            cfg.Session.RetryInterval,
		MaxRetries:               cfg.Session.MaxRetries,
		MissedHeartbeatThreshold: cfg.Session.MissedHeartbeatThreshold,
		SupportedExtensions:      extensions,
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func gracefulShutdown(ctx context.Context, servers ...*http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}
