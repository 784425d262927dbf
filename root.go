package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagctl/gtm-go/internal/auth"
	"github.com/tagctl/gtm-go/internal/config"
	"github.com/tagctl/gtm-go/internal/gtm"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg config.Config

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gtm-go",
		Short:   "Google Tag Manager CLI client",
		Long:    "A CLI for browsing and editing Google Tag Manager accounts, containers, workspaces, and their tags, triggers, and variables.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads the config file before every command so
		// subcommands see the effective settings without re-reading it.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newContainersCmd())
	cmd.AddCommand(newWorkspacesCmd())
	cmd.AddCommand(newTagsCmd())
	cmd.AddCommand(newTriggersCmd())
	cmd.AddCommand(newVariablesCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newSetupCmd())

	return cmd
}

// loadConfig reads the TOML config file (explicit --config path or the
// platform default) and overlays environment variables. The result lands in
// resolvedCfg for use by subcommands.
func loadConfig() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = config.ApplyEnv(cfg)

	return nil
}

// tokenPath returns the effective credential file location.
func tokenPath() string {
	if resolvedCfg.TokenPath != "" {
		return resolvedCfg.TokenPath
	}

	return config.DefaultTokenPath()
}

// newSession builds an auth session from the environment-provided OAuth
// client identity. withConsent controls whether an expired or absent
// credential may open the browser; only login sets it.
func newSession(withConsent bool, logger *slog.Logger) (*auth.Session, error) {
	creds, ok := config.CredentialsFromEnv()
	if !ok {
		return nil, fmt.Errorf("OAuth client credentials missing: set %s and %s (run 'gtm-go setup' for instructions)",
			config.EnvClientID, config.EnvClientSecret)
	}

	opts := auth.Options{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenPath:    tokenPath(),
		Logger:       logger,
	}

	if withConsent {
		opts.Consent = &auth.BrowserFlow{OpenURL: openBrowser, Logger: logger}
	}

	return auth.NewSession(opts), nil
}

// newAPIClient builds a Tag Manager client on top of a valid token source,
// applying any configured rate limit override.
func newAPIClient(ts gtm.TokenSource, logger *slog.Logger) *gtm.Client {
	client := gtm.NewClient(gtm.DefaultBaseURL, defaultHTTPClient(), ts, logger)

	if resolvedCfg.RateQPS != 0 {
		client.SetRateLimit(resolvedCfg.RateQPS, resolvedCfg.RateBurst)
	}

	return client
}

// openBrowser opens a URL in the platform's default browser.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	switch resolvedCfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
