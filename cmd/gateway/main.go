// Package main is the entry point for the service gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/middleware"
	"github.com/vyrodovalexey/svcgw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configDir     string
	env           string
	logLevel      string
	logFormat     string
	showVersion   bool
	hashKey       string
	hashAlgorithm string
}

func main() {
	flags, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	if flags.hashKey != "" {
		if err := printHash(os.Stdout, flags.hashKey, flags.hashAlgorithm); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	bootstrap := initLogger(resolveLogConfig(flags, config.LoggingConfig{}))
	bootstrap.Info("starting svcgw",
		observability.String("version", version),
		observability.String("config_dir", flags.configDir),
		observability.String("environment", config.ResolveEnvironment(flags.env)),
	)

	cfg, err := loadConfig(flags)
	if err != nil {
		fatalWithSync(bootstrap, "failed to load configuration", observability.Error(err))
	}
	_ = bootstrap.Sync()

	logger := initLogger(resolveLogConfig(flags, cfg.Observability.Logging))

	logger.Info("configuration loaded",
		observability.String("name", cfg.App.Name),
		observability.String("api_prefix", cfg.App.APIPrefix),
		observability.Strings("services", cfg.ServiceNames()),
		observability.Bool("mtls_enabled", cfg.MTLS.Enabled),
	)

	app, err := buildApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize gateway", observability.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app); err != nil {
		logger.Error("gateway exited with error", observability.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// parseFlags parses args. Unset flags fall back to environment variables.
func parseFlags(args []string, output io.Writer) (cliFlags, error) {
	var flags cliFlags

	fs := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.configDir, "config-dir", getEnvOrDefault("GATEWAY_CONFIG_DIR", "configs"),
		"Directory holding base.yaml and <env>.yaml")
	fs.StringVar(&flags.env, "env", getEnvOrDefault(config.EnvironmentVariable, ""),
		"Environment overlay to apply (default development)")
	fs.StringVar(&flags.logLevel, "log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides configuration")
	fs.StringVar(&flags.logFormat, "log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", ""),
		"Log format (json, console); overrides configuration")
	fs.BoolVar(&flags.showVersion, "version", false, "Show version information")
	fs.StringVar(&flags.hashKey, "hash-api-key", "", "Print the hashed form of an API key and exit")
	fs.StringVar(&flags.hashAlgorithm, "hash-algorithm", "sha256", "Hash algorithm for --hash-api-key (sha256, bcrypt)")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if fs.NArg() > 0 {
		return cliFlags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "svcgw version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

func printHash(w io.Writer, key, algorithm string) error {
	hashed, err := middleware.HashKey(key, algorithm)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hashed)
	return err
}

// resolveLogConfig lets command line settings win over the file.
func resolveLogConfig(flags cliFlags, fromFile config.LoggingConfig) observability.LogConfig {
	cfg := observability.DefaultLogConfig()
	if fromFile.Level != "" {
		cfg.Level = fromFile.Level
	}
	if fromFile.Format != "" {
		cfg.Format = fromFile.Format
	}
	if fromFile.Output != "" {
		cfg.Output = fromFile.Output
	}
	if flags.logLevel != "" {
		cfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Format = flags.logFormat
	}
	return cfg
}

// initLogger initializes the logger.
func initLogger(cfg observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadConfig loads the layered configuration and validates it.
func loadConfig(flags cliFlags) (*config.GatewayConfig, error) {
	cfg, err := config.Load(flags.configDir, flags.env)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// fatalWithSync logs at error level, flushes and exits.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	logger.Error(msg, fields...)
	_ = logger.Sync()
	os.Exit(1)
}
