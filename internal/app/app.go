// Package app wires the Mixer core, structured logging, settings loading,
// and the HTTP/websocket transport into a runnable process (SPEC_FULL.md
// §6). Grounded on the teacher's internal/app orchestration shape.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	server "avatarmixer/server"
	"avatarmixer/server/internal/net/ws"
	"avatarmixer/server/internal/observability"
	"avatarmixer/server/internal/telemetry"
	"avatarmixer/server/logging"
	loggingSinks "avatarmixer/server/logging/sinks"
)

// Config collects the process-level knobs Run needs. Every field except
// Logger has an environment-variable fallback so the binary is configurable without a
// settings file for local development (spec §6's settings retrieval is
// still the source of truth for avatar_mixer.*/avatars.* keys).
type Config struct {
	Logger telemetry.Logger

	Addr          string
	SettingsPath  string
	AdminKey      string
	AdminToken    string
	Observability observability.Config
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = envOr("AVATARMIXER_ADDR", ":8080")
	}
	if c.SettingsPath == "" {
		c.SettingsPath = os.Getenv("AVATARMIXER_SETTINGS_PATH")
	}
	if c.AdminKey == "" {
		c.AdminKey = os.Getenv("AVATARMIXER_ADMIN_KEY")
	}
	if c.AdminToken == "" {
		c.AdminToken = os.Getenv("AVATARMIXER_ADMIN_TOKEN")
	}
	if !c.Observability.EnablePprofTrace {
		if v, err := strconv.ParseBool(os.Getenv("ENABLE_PPROF_TRACE")); err == nil {
			c.Observability.EnablePprofTrace = v
		}
	}
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Run constructs the mixer and serves it until ctx is canceled or the HTTP
// listener fails.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()

	fallbackLogger := log.Default()
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(fallbackLogger)
	}

	router, err := newRouter(fallbackLogger)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	settings, err := loadSettings(cfg.SettingsPath)
	if err != nil {
		// Startup-fatal per SPEC_FULL.md §4.11: "Settings retrieval
		// failure at startup: fatal; process exits before entering the
		// loop."
		return fmt.Errorf("settings unavailable: %w", err)
	}

	whitelist := server.NewAvatarWhitelist(settings.Avatars.AvatarWhitelist, settings.Avatars.ReplacementAvatar)

	var admin *server.AdminVerifier
	if cfg.AdminKey != "" && cfg.AdminToken != "" {
		admin, err = server.NewAdminVerifier([]byte(cfg.AdminKey), cfg.AdminToken)
		if err != nil {
			return fmt.Errorf("failed to construct admin verifier: %w", err)
		}
	} else {
		telemetryLogger.Printf("no admin capability configured: AdjustAvatarSorting will always be dropped")
	}

	threads := server.ResolveThreadCount(settings.AvatarMixer, runtime.NumCPU())

	mixer := server.NewMixer(server.MixerConfig{
		Rate:             server.DefaultBroadcastRateHz,
		Threads:          threads,
		MaxBandwidthMBps: settings.AvatarMixer.MaxNodeSendBandwidth,
		Whitelist:        whitelist,
		Publisher:        router,
		AdminVerifier:    admin,
		Replication:      server.AlwaysReplicate{},
	})

	if err := mixer.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go mixer.Run(runCtx)

	mux := http.NewServeMux()
	mux.Handle("/", ws.NewHandler(mixer, ws.HandlerConfig{Logger: fallbackLogger}))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	cfg.Observability.RegisterPprof(mux)

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	telemetryLogger.Printf("avatar mixer listening on %s (threads=%d rate=%.1fHz)", cfg.Addr, threads, server.DefaultBroadcastRateHz)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

func newRouter(fallback *log.Logger) (*logging.Router, error) {
	cfg := logging.DefaultConfig()

	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console)},
	}

	if zapLogger, err := zap.NewProduction(); err == nil {
		namedSinks = append(namedSinks, logging.NamedSink{Name: "zap", Sink: loggingSinks.NewZap(zapLogger)})
	} else {
		fallback.Printf("failed to construct zap logger, continuing with console sink only: %v", err)
	}

	if path := os.Getenv("AVATARMIXER_JSON_LOG_PATH"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open json log path %q: %w", path, err)
		}
		namedSinks = append(namedSinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(f, cfg.JSON.FlushInterval)})
	}

	return logging.NewRouter(logging.ClockFunc(time.Now), cfg, namedSinks)
}

func loadSettings(path string) (server.Settings, error) {
	if path == "" {
		return server.DefaultSettings(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return server.Settings{}, fmt.Errorf("failed to read settings file %q: %w", path, err)
	}
	return server.LoadSettings(raw)
}
