// Package cmd provides the command-line interface for seosnap.
// It handles command parsing, configuration loading, and crawl execution.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gsn/DigitalStoreSeo/internal/config"
	"github.com/gsn/DigitalStoreSeo/internal/crawler"
	"github.com/gsn/DigitalStoreSeo/internal/logging"
	"github.com/gsn/DigitalStoreSeo/internal/storage"
)

const (
	appName      = "seosnap"
	envPrefix    = "SEOSNAP"
	defaultAgent = "seosnap/1.0"
)

var (
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seosnap <site-url> [site-id]",
		Short: "Render a client-side site and write static SEO snapshots",
		Long: `seosnap renders a JavaScript storefront in a headless browser, follows
its same-site links and writes one sanitized HTML snapshot per page,
together with sitemap.xml and sitemap.txt.

The optional site id becomes a subdirectory of the output directory.`,
		Args:          cobra.MaximumNArgs(2),
		RunE:          runCrawler,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if version != "" {
		cmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
	}

	cmd.PersistentFlags().String("config", "", "config file (default is ./seosnap.yml or $XDG_CONFIG_HOME/seosnap/seosnap.yml)")
	addCrawlFlags(cmd.Flags())
	return cmd
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

// flagBinding maps a config key to the flag that sets it
type flagBinding struct {
	viperKey string
	flagName string
}

var flagBindings = []flagBinding{
	{"seeds", "seed"},
	{"recursive", "recursive"},
	{"page_wait", "page-wait"},
	{"first_page_wait", "first-page-wait"},
	{"navigation_timeout", "timeout"},
	{"request_delay", "delay"},
	{"render_retries", "retries"},
	{"renderer", "renderer"},
	{"client_router", "client-router"},
	{"user_agent", "user-agent"},
	{"respect_robots", "respect-robots"},
	{"output_dir", "output"},
	{"initial_query", "initial-query"},
	{"file_name_prefix", "prefix"},
	{"exclude_patterns", "exclude-patterns"},
	{"database_path", "database"},
	{"log.level", "log-level"},
	{"log.format", "log-format"},
	{"log.file", "log-file"},
}

// Keys that have no flag but may still come from the environment
var envOnlyKeys = []string{"base_url", "site_id", "excluded_query"}

func addCrawlFlags(flags *pflag.FlagSet) {
	d := config.DefaultConfig()

	flags.Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Crawl scope
	flags.StringSliceP("seed", "s", d.Seeds, "Site path crawled in the first round (repeatable)")
	flags.BoolP("recursive", "R", d.Recursive, "Follow discovered links round after round")
	flags.StringSlice("exclude-patterns", d.ExcludePatterns, "Glob patterns for paths to skip")
	flags.Bool("respect-robots", d.RespectRobots, "Obey robots.txt rules and crawl-delay")

	// Rendering
	flags.Duration("page-wait", d.PageWait, "Settle delay after each navigation")
	flags.Duration("first-page-wait", d.FirstPageWait, "Settle delay for the first page")
	flags.DurationP("timeout", "t", d.NavigationTimeout, "Navigation timeout")
	flags.DurationP("delay", "r", d.RequestDelay, "Minimum delay between navigations")
	flags.Int("retries", d.RenderRetries, "Extra render attempts before a page is skipped")
	flags.String("renderer", d.Renderer, "Render host: 'chrome' or 'http'")
	flags.String("client-router", d.ClientRouter, "In-page router function used instead of navigating, e.g. window.gsn.goUrl")
	flags.StringP("user-agent", "u", d.UserAgent, "User-Agent for navigations")

	// Output
	flags.StringP("output", "o", d.OutputDir, "Directory that receives snapshots and sitemaps")
	flags.String("initial-query", d.InitialQuery, "Query appended to the site URL for the first page")
	flags.String("prefix", d.FileNamePrefix, "Prefix for snapshot file names")
	flags.StringP("database", "d", d.DatabasePath, "Path to SQLite database file")

	// Logging
	flags.String("log-level", d.Log.Level, "Log level: debug, info, warn, error")
	flags.String("log-format", d.Log.Format, "Log format: text or json")
	flags.String("log-file", d.Log.File, "Write logs to this file, rotated by size")
}

// newViper layers flags, SEOSNAP_ environment variables and the config file.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()

	for _, bind := range flagBindings {
		if err := v.BindPFlag(bind.viperKey, cmd.Flags().Lookup(bind.flagName)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", bind.flagName, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
		v.SetConfigType("yaml")
		v.SetConfigName(appName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
	}
	return v, nil
}

// loadConfig builds the effective configuration. Positional arguments win
// over every other source.
func loadConfig(cmd *cobra.Command, args []string) (*config.CrawlConfig, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(args) > 0 {
		cfg.BaseURL = args[0]
	}
	if len(args) > 1 {
		cfg.SiteID = args[1]
	}

	if !cmd.Flags().Changed("user-agent") && cfg.UserAgent == defaultAgent {
		cfg.UserAgent = generateUserAgent()
	}
	return cfg, nil
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("%s/%s", appName, version)
	}
	return defaultAgent
}

func showCurrentConfig(w, errW io.Writer, cfg *config.CrawlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(errW, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(errW, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current seosnap configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./seosnap.yml, %s\n", filepath.Join(xdg.ConfigHome, appName, "seosnap.yml"))
	fmt.Fprintf(w, "# Environment variables prefix: %s_\n\n", envPrefix)

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (%s_ prefix)\n", envPrefix)
	fmt.Fprintf(w, "# 3. Configuration file (seosnap.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func runCrawler(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.SetDefault(logging.FromSettings(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	host, err := newRenderHost(cfg)
	if err != nil {
		return fmt.Errorf("failed to start renderer: %w", err)
	}
	defer func() { _ = host.Close() }()

	c, err := crawler.NewCrawler(cfg, host, store, crawler.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return c.Run(ctx)
}

// newRenderHost starts the render host selected by cfg.Renderer
func newRenderHost(cfg *config.CrawlConfig) (crawler.RenderHost, error) {
	if cfg.Renderer == config.RendererHTTP {
		return crawler.NewHTTPHost(crawler.NewHTTPClient(cfg.UserAgent, cfg.NavigationTimeout)), nil
	}

	host, err := crawler.NewChromeHost(crawler.ChromeHostConfig{
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout,
	})
	if err != nil {
		return nil, err
	}
	return host, nil
}
