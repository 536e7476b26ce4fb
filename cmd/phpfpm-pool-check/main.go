package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cboxdk/phpfpm-pool-check/internal/app"
	"github.com/cboxdk/phpfpm-pool-check/internal/check"
	"github.com/cboxdk/phpfpm-pool-check/internal/config"
	"github.com/cboxdk/phpfpm-pool-check/internal/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	Version = "1.0.0-dev"
)

// CLI represents the command line interface
type CLI struct {
	args []string
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

func main() {
	cli := &CLI{args: os.Args[1:]}

	commands := map[string]*Command{
		"check":    {Name: "check", Description: "Run one pool check and exit with the verdict code", Usage: "check [options]", Run: cli.checkCommand},
		"serve":    {Name: "serve", Description: "Poll the pool continuously and serve Prometheus metrics", Usage: "serve [--config path]", Run: cli.serveCommand},
		"validate": {Name: "validate", Description: "Validate configuration file", Usage: "validate [--config path]", Run: cli.validateCommand},
		"version":  {Name: "version", Description: "Show version information", Usage: "version", Run: cli.versionCommand},
		"help":     {Name: "help", Description: "Show help information", Usage: "help [command]", Run: cli.helpCommand},
	}

	if len(cli.args) == 0 {
		cli.printUsage(commands)
		os.Exit(check.SeverityUnknown.ExitCode())
	}

	commandName := cli.args[0]

	if commandName == "--help" || commandName == "-h" {
		cli.printUsage(commands)
		return
	}

	// Default to the check command so the binary drops into a monitoring
	// system's command slot without a subcommand.
	if _, exists := commands[commandName]; !exists {
		if strings.HasPrefix(commandName, "--") || strings.HasPrefix(commandName, "-") {
			commandName = "check"
		} else {
			fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", commandName)
			cli.printUsage(commands)
			os.Exit(check.SeverityUnknown.ExitCode())
		}
	} else {
		cli.args = cli.args[1:]
	}

	cmd := commands[commandName]
	if err := cmd.Run(cli.args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(check.SeverityUnknown.ExitCode())
	}
}

func (cli *CLI) printUsage(commands map[string]*Command) {
	fmt.Printf("PHP-FPM Pool Check v%s\n", Version)
	fmt.Println("A monitoring plugin and Prometheus exporter for PHP-FPM pool health over FastCGI.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Printf("  %s <command> [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("COMMANDS:")

	commandOrder := []string{"check", "serve", "validate", "version", "help"}
	for _, name := range commandOrder {
		if cmd, exists := commands[name]; exists {
			fmt.Printf("  %-10s %s\n", cmd.Name, cmd.Description)
		}
	}

	fmt.Println()
	fmt.Println("EXIT CODES (check command):")
	fmt.Println("  0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Printf("  %s check --socket-path /run/php-fpm/www.sock\n", os.Args[0])
	fmt.Printf("  %s check --queue-warning 5 --queue-critical 10\n", os.Args[0])
	fmt.Printf("  %s serve --config /etc/phpfpm-pool-check.yaml\n", os.Args[0])
}

func (cli *CLI) parseFlags(args []string, flags map[string]*string) []string {
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Handle --flag=value format
			if strings.Contains(flagName, "=") {
				parts := strings.SplitN(flagName, "=", 2)
				flagName = parts[0]
				if flagVar, exists := flags[flagName]; exists {
					*flagVar = parts[1]
				}
				continue
			}

			// Handle --flag value format
			if flagVar, exists := flags[flagName]; exists {
				if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
					*flagVar = args[i+1]
					i++ // Skip the value
				} else {
					// Boolean flag or missing value
					*flagVar = "true"
				}
				continue
			}
		}

		remaining = append(remaining, arg)
	}

	return remaining
}

// loadConfig loads the file config (or defaults) and applies flag
// overrides on top.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.LoadDefault()
	}
	return config.Load(configPath)
}

func (cli *CLI) checkCommand(args []string) error {
	var configPath, socketPath, statusPath, timeout string
	var queueWarn, queueCrit, procWarn, procCrit string
	var dumpStr string
	logLevel := "warn"

	flags := map[string]*string{
		"config":             &configPath,
		"socket-path":        &socketPath,
		"status-path":        &statusPath,
		"timeout":            &timeout,
		"queue-warning":      &queueWarn,
		"queue-critical":     &queueCrit,
		"processes-warning":  &procWarn,
		"processes-critical": &procCrit,
		"log-level":          &logLevel,
		"dump":               &dumpStr,
	}

	remaining := cli.parseFlags(args, flags)
	for _, arg := range remaining {
		if arg == "--help" || arg == "-h" {
			cli.printCheckHelp()
			return nil
		}
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := applyCheckOverrides(cfg, socketPath, statusPath, timeout, queueWarn, queueCrit, procWarn, procCrit); err != nil {
		return err
	}

	// Plugin output goes to stdout; logs stay on stderr.
	logger, err := cli.createLogger(logLevel, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	telemetryService, err := telemetry.NewService(cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	checker, err := check.NewChecker(
		cfg.Pool.SocketPath,
		cfg.Pool.StatusPath,
		cfg.Pool.Timeout,
		cfg.Thresholds.Thresholds(),
		logger.Named("checker"),
	)
	if err != nil {
		return err
	}

	snapshot, verdict := checker.Run(context.Background())

	if dumpStr == "true" && snapshot != nil {
		data, err := json.Marshal(snapshot)
		if err == nil {
			fmt.Println(string(data))
		}
	}

	fmt.Println(verdict.String())

	// os.Exit skips deferred calls; flush explicitly.
	telemetryService.Stop(context.Background())
	logger.Sync()
	os.Exit(verdict.Severity.ExitCode())
	return nil
}

// applyCheckOverrides layers explicit flag values over the loaded config.
func applyCheckOverrides(cfg *config.Config, socketPath, statusPath, timeout, queueWarn, queueCrit, procWarn, procCrit string) error {
	if socketPath != "" {
		cfg.Pool.SocketPath = socketPath
	}
	if statusPath != "" {
		cfg.Pool.StatusPath = statusPath
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout value %q: %w", timeout, err)
		}
		cfg.Pool.Timeout = d
	}

	overrides := []struct {
		raw    string
		flag   string
		target *int
	}{
		{queueWarn, "--queue-warning", &cfg.Thresholds.QueueWarning},
		{queueCrit, "--queue-critical", &cfg.Thresholds.QueueCritical},
		{procWarn, "--processes-warning", &cfg.Thresholds.UtilizationWarning},
		{procCrit, "--processes-critical", &cfg.Thresholds.UtilizationCritical},
	}
	for _, o := range overrides {
		if o.raw == "" {
			continue
		}
		n, err := strconv.Atoi(o.raw)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", o.flag, o.raw, err)
		}
		*o.target = n
	}
	return nil
}

func (cli *CLI) serveCommand(args []string) error {
	var configPath string
	var logLevel string

	flags := map[string]*string{
		"config":    &configPath,
		"log-level": &logLevel,
	}

	remaining := cli.parseFlags(args, flags)
	for _, arg := range remaining {
		if arg == "--help" || arg == "-h" {
			cli.printServeHelp()
			return nil
		}
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}

	logger, err := cli.createLogger(logLevel, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	manager, err := app.NewManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("Starting PHP-FPM pool check exporter",
		zap.String("version", Version),
		zap.String("socket", cfg.Pool.SocketPath),
		zap.String("bind_address", cfg.Server.BindAddress))

	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("manager stopped with error: %w", err)
	}
	return nil
}

func (cli *CLI) validateCommand(args []string) error {
	var configPath string

	flags := map[string]*string{
		"config": &configPath,
	}

	remaining := cli.parseFlags(args, flags)
	for _, arg := range remaining {
		if arg == "--help" || arg == "-h" {
			fmt.Println("USAGE: phpfpm-pool-check validate [--config path]")
			fmt.Println("Validate a configuration file without touching the pool.")
			return nil
		}
	}

	var cfg *config.Config
	var err error
	if configPath == "" {
		fmt.Println("Validating built-in defaults")
		cfg, err = config.LoadDefault()
	} else {
		fmt.Printf("Validating configuration file: %s\n", configPath)
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	result := config.GetValidationResult(cfg)
	if !result.Valid {
		for i, verr := range result.Errors {
			fmt.Printf("  %d. Field: %s\n", i+1, verr.Field)
			fmt.Printf("     Error: %s\n", verr.Message)
			if verr.Suggestion != "" {
				fmt.Printf("     Fix: %s\n", verr.Suggestion)
			}
		}
		return fmt.Errorf("configuration validation failed with %d error(s)", len(result.Errors))
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Pool socket:  %s\n", cfg.Pool.SocketPath)
	fmt.Printf("  Status path:  %s\n", cfg.Pool.StatusPath)
	fmt.Printf("  Thresholds:   queue %d/%d, utilization %d%%/%d%%\n",
		cfg.Thresholds.QueueWarning, cfg.Thresholds.QueueCritical,
		cfg.Thresholds.UtilizationWarning, cfg.Thresholds.UtilizationCritical)
	return nil
}

func (cli *CLI) versionCommand(args []string) error {
	fmt.Printf("phpfpm-pool-check version %s\n", Version)
	fmt.Println("Built with Go")
	fmt.Println("https://github.com/cboxdk/phpfpm-pool-check")
	return nil
}

func (cli *CLI) helpCommand(args []string) error {
	commands := map[string]*Command{
		"check":    {Name: "check", Description: "Run one pool check and exit with the verdict code", Usage: "check [options]", Run: cli.checkCommand},
		"serve":    {Name: "serve", Description: "Poll the pool continuously and serve Prometheus metrics", Usage: "serve [--config path]", Run: cli.serveCommand},
		"validate": {Name: "validate", Description: "Validate configuration file", Usage: "validate [--config path]", Run: cli.validateCommand},
		"version":  {Name: "version", Description: "Show version information", Usage: "version", Run: cli.versionCommand},
		"help":     {Name: "help", Description: "Show help information", Usage: "help [command]", Run: cli.helpCommand},
	}

	if len(args) == 0 {
		cli.printUsage(commands)
		return nil
	}

	switch args[0] {
	case "check":
		cli.printCheckHelp()
	case "serve":
		cli.printServeHelp()
	case "validate":
		fmt.Println("USAGE: phpfpm-pool-check validate [--config path]")
		fmt.Println("Validate a configuration file without touching the pool.")
	case "version":
		fmt.Println("USAGE: phpfpm-pool-check version")
		fmt.Println("Show version information.")
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		cli.printUsage(commands)
	}

	return nil
}

func (cli *CLI) createLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg.Encoding = "console"
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}

func (cli *CLI) printCheckHelp() {
	fmt.Println("USAGE: phpfpm-pool-check check [options]")
	fmt.Println("Query the pool's status endpoint once and exit with the monitoring verdict.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Printf("  --socket-path path        Unix socket of the php-fpm pool (default: %s)\n", check.DefaultSocketPath)
	fmt.Printf("  --status-path path        pm.status_path of the pool (default: %s)\n", check.DefaultStatusPath)
	fmt.Printf("  --timeout duration        Connect/read timeout (default: %s)\n", check.DefaultTimeout)
	fmt.Printf("  --queue-warning n         Listen queue warning threshold (default: %d)\n", check.DefaultQueueWarning)
	fmt.Printf("  --queue-critical n        Listen queue critical threshold (default: %d)\n", check.DefaultQueueCritical)
	fmt.Printf("  --processes-warning n     Worker utilization warning percent (default: %d)\n", check.DefaultUtilizationWarning)
	fmt.Printf("  --processes-critical n    Worker utilization critical percent (default: %d)\n", check.DefaultUtilizationCritical)
	fmt.Println("  --config path             YAML config file; flags override its values")
	fmt.Println("  --dump                    Also print the parsed status snapshot as JSON")
	fmt.Println("  --log-level level         Log level for stderr diagnostics (default: warn)")
	fmt.Println("  --help, -h                Show this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  phpfpm-pool-check check")
	fmt.Println("  phpfpm-pool-check check --socket-path /run/php-fpm/api.sock --queue-critical 20")
}

func (cli *CLI) printServeHelp() {
	fmt.Println("USAGE: phpfpm-pool-check serve [options]")
	fmt.Println("Poll the pool on an interval and expose Prometheus metrics.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  --config path      YAML config file (default: built-in defaults)")
	fmt.Println("  --log-level level  Log level: debug, info, warn, error")
	fmt.Println("  --help, -h         Show this help message")
	fmt.Println()
	fmt.Println("SIGNALS:")
	fmt.Println("  SIGINT/SIGTERM    Graceful shutdown")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  phpfpm-pool-check serve")
	fmt.Println("  phpfpm-pool-check serve --config /etc/phpfpm-pool-check.yaml")
}
