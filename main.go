package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
	"github.com/leslieo2/go-probe-toggle/internal/health"
	"github.com/leslieo2/go-probe-toggle/internal/hotreload"
	"github.com/leslieo2/go-probe-toggle/internal/observability"
	"github.com/leslieo2/go-probe-toggle/internal/security"
	"github.com/leslieo2/go-probe-toggle/internal/server"
)

func main() {
	defaults := config.DefaultConfig()

	configFile := pflag.String("config", "", "Path to configuration file (YAML or JSON)")
	generateKey := pflag.String("generate-key", "", "Generate a new API key with given name and exit")

	cliFlags := &config.CLIFlags{
		FlagSet: pflag.CommandLine,

		// Server configuration
		Host:            pflag.String("host", defaults.Server.Host, "Host to listen on"),
		Port:            pflag.String("port", defaults.Server.Port, "Port to listen on (also PORT)"),
		MetricsPort:     pflag.String("metrics-port", defaults.Server.MetricsPort, "Dedicated metrics port (empty serves metrics on the main port only)"),
		ReadTimeout:     pflag.Duration("read-timeout", defaults.Server.ReadTimeout, "HTTP server read timeout"),
		WriteTimeout:    pflag.Duration("write-timeout", defaults.Server.WriteTimeout, "HTTP server write timeout"),
		IdleTimeout:     pflag.Duration("idle-timeout", defaults.Server.IdleTimeout, "HTTP server idle timeout"),
		MaxRequestSize:  pflag.Int64("max-request-size", defaults.Server.MaxRequestSize, "Maximum request size in bytes"),
		ShutdownTimeout: pflag.Duration("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout"),
		MaxDelay:        pflag.Duration("max-delay", defaults.Server.MaxDelay, "Upper bound for the __delay probe parameter (0 disables it)"),

		// Observability
		LogLevel:       pflag.String("log-level", defaults.Observability.Logging.Level, "Log level: debug, info, warn, error"),
		LogFormat:      pflag.String("log-format", defaults.Observability.Logging.Format, "Log format: json, console"),
		TracingEnabled: pflag.Bool("tracing-enabled", defaults.Observability.Tracing.Enabled, "Export OpenTelemetry spans to stdout"),

		// Security
		AuthEnabled:       pflag.Bool("auth-enabled", defaults.Security.Auth.Enabled, "Require an API key on the toggle endpoints"),
		RateLimitEnabled:  pflag.Bool("rate-limit-enabled", defaults.Security.RateLimit.Enabled, "Rate limit the toggle endpoints"),
		RateLimitStrategy: pflag.String("rate-limit-strategy", defaults.Security.RateLimit.Strategy, "Rate limiting strategy: ip, api_key, both"),
		RateLimitRPS:      pflag.Int("rate-limit-rps", defaults.Security.RateLimit.Global.RequestsPerSecond, "Global rate limit requests per second"),

		// Hot reload and events
		HotReload:         pflag.Bool("hot-reload", defaults.HotReload.Enabled, "Reload the configuration file when it changes"),
		HotReloadDebounce: pflag.Duration("hot-reload-debounce", defaults.HotReload.Debounce, "Debounce time for hot reload events"),
		EventsEnabled:     pflag.Bool("events-enabled", defaults.Events.Enabled, "Serve probe state changes as server-sent events"),
	}

	pflag.Usage = printUsage
	pflag.Parse()

	cfg, err := config.LoadConfig(*configFile, cliFlags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *generateKey != "" {
		apiKey, err := security.NewAuthManager(cfg.Security.Auth).GenerateAPIKey(*generateKey)
		if err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}

		fmt.Printf("Generated API key for '%s':\n", apiKey.Name)
		fmt.Printf("Key: %s\n", apiKey.Key)
		fmt.Printf("Created: %s\n", apiKey.CreatedAt.Format(time.RFC3339))
		fmt.Printf("\nAdd this to your security configuration:\n")
		fmt.Printf("security:\n")
		fmt.Printf("  auth:\n")
		fmt.Printf("    enabled: true\n")
		fmt.Printf("    keys:\n")
		fmt.Printf("      - key: %s\n", apiKey.Key)
		fmt.Printf("        name: %s\n", apiKey.Name)
		fmt.Printf("        enabled: true\n")
		os.Exit(0)
	}

	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	probeServer, err := server.New(cfg, health.NewState(),
		server.WithLogger(logger),
		server.WithConfigSource(*configFile, cliFlags),
	)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configFile != "" && cfg.HotReload.Enabled {
		hotReloadManager, err := hotreload.NewManager(logger.Logger)
		if err != nil {
			log.Fatalf("Failed to create hot reload manager: %v", err)
		}
		defer hotReloadManager.Stop()

		hotReloadManager.SetDebounceTime(cfg.HotReload.Debounce)

		if err := hotReloadManager.AddWatch(*configFile); err != nil {
			log.Fatalf("Failed to watch config file: %v", err)
		}
		if err := hotReloadManager.RegisterReloadable(probeServer); err != nil {
			log.Fatalf("Failed to register server for hot reload: %v", err)
		}
		if err := hotReloadManager.Start(); err != nil {
			log.Fatalf("Failed to start hot reload: %v", err)
		}

		go reloadOnHangup(ctx, hotReloadManager)

		logger.Info("Hot reload enabled", zap.String("config_file", *configFile))
	}

	if err := probeServer.Start(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// reloadOnHangup turns SIGHUP into a manual reload until ctx is done.
func reloadOnHangup(ctx context.Context, manager *hotreload.Manager) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			manager.Trigger()
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nServes %s and %s probes whose outcome can be flipped with %s and %s.\n",
		constants.PathReadiness, constants.PathLiveness, constants.PathToggleReadiness, constants.PathToggleLiveness)
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	pflag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
	fmt.Fprintf(os.Stderr, "  %s (default 5000), %s, %s, %s\n",
		constants.EnvPort, constants.EnvServicePort, constants.EnvHost, constants.EnvMetricsPort)
	fmt.Fprintf(os.Stderr, "  %s, %s, %s, %s\n",
		constants.EnvReadTimeout, constants.EnvWriteTimeout, constants.EnvIdleTimeout, constants.EnvShutdownTimeout)
	fmt.Fprintf(os.Stderr, "  %s, %s, %s, %s\n",
		constants.EnvMaxRequestSize, constants.EnvMaxDelay, constants.EnvLogLevel, constants.EnvLogFormat)
	fmt.Fprintf(os.Stderr, "  %s, %s, %s\n",
		constants.EnvAuthEnabled, constants.EnvRateLimitEnabled, constants.EnvRateLimitRPS)
	fmt.Fprintf(os.Stderr, "  %s, %s, %s, %s\n",
		constants.EnvHotReload, constants.EnvHotReloadDebounce, constants.EnvTracingEnabled, constants.EnvEventsEnabled)
	fmt.Fprintf(os.Stderr, "\nExample usage:\n")
	fmt.Fprintf(os.Stderr, "  PORT=8080 %s\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --config ./probe-toggle.yaml --auth-enabled --rate-limit-enabled\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --generate-key ci\n", os.Args[0])
}
