package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/config"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/utils"
)

var (
	configPath        string
	outputDir         string
	connections       int
	probeAttempts     int
	timeout           time.Duration
	kaTimeout         time.Duration
	userAgent         string
	proxyURL          string
	proxyUsername     string
	proxyPassword     string
	headers           []string
	token             string
	s3Profile         string
	s3Region          string
	s3Endpoint        string
	s3PathStyle       bool
	breakpointBackend string
	breakpointDir     string
	metricsAddr       string
	logLevel          string
	debug             bool
	fileLog           bool
)

var RangedlVersion = "dev"

// cfg is the effective configuration once flags are applied.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rangedl",
	Short: "rangedl is a resumable segmented downloader",
	Long: `rangedl splits a resource into byte ranges, fetches them in parallel and
records a breakpoint when interrupted so the next run picks up where it stopped.

Examples:
  rangedl get https://example.com/big.iso -c 8
  rangedl get s3://bucket/path/archive.tar --s3-profile prod
  rangedl inspect big.iso`,
	Version:       RangedlVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, loaded)
		if err := config.Validate(loaded); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		cfg = loaded
		utils.InitLogger(cfg.Log.Level, debug)
		if fileLog {
			f, err := os.OpenFile(utils.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error opening log file: %v", err)
			}
			utils.SetLogOutput(f)
		}
		return nil
	},
}

// applyFlags overrides configuration values with flags the user set.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		c.OutputDir = outputDir
	}
	if flags.Changed("connections") {
		c.Connections = connections
	}
	if flags.Changed("probe-attempts") {
		c.ProbeAttempts = probeAttempts
	}
	if flags.Changed("timeout") {
		c.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		c.HTTP.KeepAlive = kaTimeout
	}
	if flags.Changed("user-agent") {
		c.HTTP.UserAgent = userAgent
	}
	if c.HTTP.UserAgent == "randomize" {
		c.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	if flags.Changed("proxy") {
		c.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		c.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		c.HTTP.ProxyPassword = proxyPassword
	}
	// Credentials embedded in the proxy URL
	if parsedProxy, err := u.Parse(c.HTTP.Proxy); err == nil && parsedProxy.User != nil && c.HTTP.ProxyUsername == "" {
		c.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			c.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		c.HTTP.Proxy = parsedProxy.String()
	}
	if flags.Changed("header") {
		c.HTTP.Headers = append(c.HTTP.Headers, headers...)
	}
	if flags.Changed("token") {
		c.HTTP.Token = token
	}
	if flags.Changed("s3-profile") {
		c.S3.Profile = s3Profile
	}
	if flags.Changed("s3-region") {
		c.S3.Region = s3Region
	}
	if flags.Changed("s3-endpoint") {
		c.S3.Endpoint = s3Endpoint
	}
	if flags.Changed("s3-path-style") {
		c.S3.PathStyle = s3PathStyle
	}
	if flags.Changed("breakpoint-backend") {
		c.Breakpoint.Backend = breakpointBackend
	}
	if flags.Changed("breakpoint-dir") {
		c.Breakpoint.Dir = breakpointDir
	}
	if flags.Changed("metrics-addr") {
		c.Metrics.Addr = metricsAddr
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, output.FError(err.Error()))
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default is "+config.DefaultPath()+")")
	pf.StringVarP(&outputDir, "output-dir", "o", "", "Directory for downloaded files and file breakpoints")
	pf.IntVarP(&connections, "connections", "c", 8, "Number of segments downloaded in parallel (1-15)")
	pf.IntVar(&probeAttempts, "probe-attempts", 3, "Attempts at reading the resource size")
	pf.DurationVarP(&timeout, "timeout", "t", time.Minute, "Time to wait for response headers (eg. 5s, 10m)")
	pf.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", time.Minute, "Keep-alive timeout for idle connections")
	pf.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	pf.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., http://proxy.example.com:8080)")
	pf.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	pf.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	pf.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Api-Key: abc'); can be specified multiple times")
	pf.StringVar(&token, "token", "", "Bearer token for HTTP sources")
	pf.StringVar(&s3Profile, "s3-profile", "", "AWS shared config profile for s3:// sources")
	pf.StringVar(&s3Region, "s3-region", "", "AWS region for s3:// sources")
	pf.StringVar(&s3Endpoint, "s3-endpoint", "", "Custom S3-compatible endpoint")
	pf.BoolVar(&s3PathStyle, "s3-path-style", false, "Use path-style S3 addressing")
	pf.StringVar(&breakpointBackend, "breakpoint-backend", "file", "Where breakpoints are kept (file or badger)")
	pf.StringVar(&breakpointDir, "breakpoint-dir", "", "Breakpoint directory (defaults to the output directory for file)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., 127.0.0.1:9090)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&fileLog, "file-log", false, "Write logs to "+utils.LogFile+" instead of stderr")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newConfigCmd())
}
