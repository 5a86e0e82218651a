package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/control"
	"github.com/jmylchreest/vodarr/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/vodarr/internal/http"
	"github.com/jmylchreest/vodarr/internal/http/handlers"
	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/scheduler"
	"github.com/jmylchreest/vodarr/internal/session"
	"github.com/jmylchreest/vodarr/internal/stream"
	"github.com/jmylchreest/vodarr/internal/transcode"
	"github.com/jmylchreest/vodarr/internal/version"
	"github.com/jmylchreest/vodarr/pkg/format"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vodarr server",
	Long: `Start the vodarr streaming server.

The server provides:
- A control channel for clients to browse the catalog and request streams
- TCP, UDP, and RTP stream senders on dedicated ports
- FFmpeg transcoding of missing resolution variants
- A read-only status API with OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("video-dir", "", "Video library directory")
	serveCmd.Flags().String("host", "", "Host to bind all listeners to")
	serveCmd.Flags().Int("control-port", 0, "Control channel port")
	serveCmd.Flags().String("advertise-host", "", "Host placed in stream endpoints handed to clients")
	serveCmd.Flags().Int("transcode-parallelism", 0, "Concurrent FFmpeg transcodes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The library directory must exist and scan cleanly before anything
	// else starts.
	catalog := library.New(cfg.Library.VideoDir, logger)
	scanResult, err := catalog.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scanning video library: %w", err)
	}
	logger.Info("video library scanned",
		slog.String("dir", cfg.Library.VideoDir),
		slog.Int("videos", scanResult.Added),
	)

	// FFmpeg is required: missing variants cannot be synthesized without it.
	detector := ffmpeg.NewBinaryDetector()
	if cfg.Transcode.FFmpegPath != "" {
		detector = detector.WithFFmpegPath(cfg.Transcode.FFmpegPath)
	}
	binInfo, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}
	logger.Info("ffmpeg detected",
		slog.String("path", binInfo.FFmpegPath),
		slog.String("version", binInfo.Version),
	)

	executor := transcode.NewExecutor(catalog, binInfo.FFmpegPath,
		cfg.Transcode.Parallelism, cfg.Transcode.QueueSize, logger)
	planner := transcode.NewPlanner(catalog, executor, logger)

	dispatcher, err := stream.NewDispatcher(stream.Config{
		TCPAddr:        cfg.Server.TCPStreamAddress(),
		UDPAddr:        cfg.Server.UDPStreamAddress(),
		RTPAddr:        cfg.Server.RTPStreamAddress(),
		TCPBufferSize:  int(cfg.Stream.TCPBufferSize),
		UDPChunkSize:   int(cfg.Stream.UDPChunkSize),
		RTPPayloadSize: int(cfg.Stream.RTPPayloadSize),
		UDPPacing:      cfg.Stream.UDPPacing,
		RTPPacing:      cfg.Stream.RTPPacing,
		AcceptTimeout:  cfg.Stream.AcceptTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("binding stream ports: %w", err)
	}
	defer dispatcher.Close()

	registry := session.NewRegistry(logger)

	controlServer := control.NewServer(control.ServerConfig{
		Addr:          cfg.Server.ControlAddress(),
		AdvertiseHost: cfg.Server.AdvertiseHost,
		IdleTimeout:   cfg.Server.IdleTimeout,
	}, catalog, registry, dispatcher, logger)
	if err := controlServer.Listen(); err != nil {
		return fmt.Errorf("binding control port: %w", err)
	}

	sched := scheduler.New(catalog, logger)
	if cfg.Library.RescanEnabled {
		if err := sched.AddRescan(cfg.Library.RescanCron); err != nil {
			return fmt.Errorf("scheduling library rescan: %w", err)
		}
		logger.Info("library rescan scheduled",
			slog.String("schedule", format.CronDescription(cfg.Library.RescanCron)),
		)
	}

	logger.Info("starting vodarr server",
		slog.String("control", cfg.Server.ControlAddress()),
		slog.String("version", version.Version),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return executor.Run(ctx) })
	g.Go(func() error { return planner.Run(ctx) })
	g.Go(func() error { return registry.Sweep(ctx, cfg.Session.SweepInterval) })
	g.Go(func() error { return controlServer.Serve(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	if cfg.Server.HTTPEnabled {
		httpConfig := internalhttp.DefaultServerConfig()
		httpConfig.Addr = cfg.Server.HTTPAddress()
		httpConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
		httpServer := internalhttp.NewServer(httpConfig, logger, version.Version)

		handlers.NewHealthHandler(version.Version, catalog, registry, executor).
			WithScheduler(sched).
			Register(httpServer.API())
		handlers.NewVideoHandler(catalog).Register(httpServer.API())
		handlers.NewSessionHandler(registry).Register(httpServer.API())
		handlers.NewJobHandler(executor).Register(httpServer.API())

		g.Go(func() error { return httpServer.ListenAndServe(ctx) })
	}

	// Seed the transcode queue from the initial scan.
	if queued := planner.PlanOnce(ctx); queued > 0 {
		logger.Info("queued transcodes for missing variants", slog.Int("count", queued))
	}

	err = g.Wait()
	dispatcher.Wait()
	if err != nil && !isShutdown(err) {
		return err
	}
	logger.Info("vodarr server stopped")
	return nil
}

// applyServeFlags overrides loaded config values with flags the user
// explicitly set.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("video-dir") {
		cfg.Library.VideoDir, _ = cmd.Flags().GetString("video-dir")
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("control-port") {
		cfg.Server.ControlPort, _ = cmd.Flags().GetInt("control-port")
	}
	if cmd.Flags().Changed("advertise-host") {
		cfg.Server.AdvertiseHost, _ = cmd.Flags().GetString("advertise-host")
	}
	if cmd.Flags().Changed("transcode-parallelism") {
		cfg.Transcode.Parallelism, _ = cmd.Flags().GetInt("transcode-parallelism")
	}
}

// isShutdown reports whether err is the normal result of signal-driven
// cancellation rather than a component failure.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
