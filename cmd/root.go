package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"manualqa/internal"
	"manualqa/telemetry"
)

const version = "v1.0.0"

var (
	configPath string
	apiURL     string
	timeout    int
	quiet      bool
	proxyURL   string
	debug      bool
	logLevel   string
	logFile    string
	runtimeEnv string
	trace      bool
	config     *internal.Config

	shutdownTracer func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:     "manualqa",
	Short:   "Ask questions about your product manuals",
	Version: version,
	Long: `manualqa is the terminal client for the ManualQA service: upload product
manuals, ask questions about them by text or voice, and keep an eye on your
usage quota.

Examples:
  manualqa login --email you@example.com
  manualqa manuals upload ~/Downloads/dishwasher.pdf
  manualqa ask "How do I clear error E4?"
  manualqa ask --voice --manual man-42
  manualqa usage --output yaml

Environment Variables:
  MANUALQA_API_URL              API origin
  MANUALQA_TIMEOUT              Request timeout in seconds
  MANUALQA_UPLOAD_TIMEOUT       Upload timeout in seconds
  MANUALQA_MAX_REQUEST_SIZE     Largest request body (e.g. 25M)
  MANUALQA_RATE_LIMIT_MAX_WAIT  Longest 429 back-off in seconds
  MANUALQA_RUNTIME              Force the runtime (terminal, mobile, browser)
  MANUALQA_PROXY                HTTP/SOCKS proxy URL
  MANUALQA_RECORDER             Recorder command, e.g. "arecord -f S16_LE -r {rate} -c {channels} {output}"

A .env file in the working directory is read first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if config.Trace {
			shutdown, err := telemetry.InitTracer("manualqa", version, os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			shutdownTracer = shutdown
		}

		internal.LogDebug("Configuration loaded: api=%s, timeout=%ds, upload_timeout=%ds, max_request=%s, runtime=%q",
			config.APIBaseURL, config.RequestTimeout, config.UploadTimeout, config.MaxRequestSize, config.Runtime)
		return nil
	},
}

// loadConfiguration layers file and environment configuration, then the
// flags the user actually set
func loadConfiguration(cmd *cobra.Command) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIBaseURL = apiURL
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = timeout
		if cfg.UploadTimeout < timeout {
			cfg.UploadTimeout = timeout
		}
	}
	if flags.Changed("proxy") {
		cfg.ProxyURL = proxyURL
	}
	if flags.Changed("runtime") {
		cfg.Runtime = runtimeEnv
	}
	if trace {
		cfg.Trace = true
	}

	if debug {
		cfg.EnableDebug = true
		cfg.LogLevel = "debug"
	}
	if quiet {
		cfg.QuietMode = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	if err := cfg.ValidateConfig(); err != nil {
		return err
	}
	config = cfg
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", fmt.Sprintf("Config file (default %s)", internal.DefaultConfigPath()))
	flags.StringVar(&apiURL, "api-url", "", "API origin (env: MANUALQA_API_URL)")
	flags.IntVar(&timeout, "timeout", 0, "Request timeout in seconds (env: MANUALQA_TIMEOUT)")
	flags.StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: MANUALQA_PROXY)")
	flags.StringVar(&runtimeEnv, "runtime", "", "Force the runtime: terminal, mobile or browser (env: MANUALQA_RUNTIME)")
	flags.BoolVar(&trace, "trace", false, "Print request traces to stderr (env: MANUALQA_TRACE)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars and informational output")

	// Logging flags
	flags.BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: MANUALQA_DEBUG)")
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: MANUALQA_LOG_LEVEL)")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: MANUALQA_LOG_FILE)")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, askCmd, manualsCmd, usageCmd, recordCmd)

	rootCmd.SetUsageTemplate(`Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`)
}

// Execute runs the CLI until the command finishes or SIGINT/SIGTERM arrives.
// Recordings and other transient state are released either way.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	closeApp()
	if shutdownTracer != nil {
		if terr := shutdownTracer(context.Background()); terr != nil {
			internal.LogWarn("Failed to flush traces: %v", terr)
		}
	}
	if err != nil {
		reportError(os.Stderr, err)
	}
	internal.CloseLogger()
	return err
}
