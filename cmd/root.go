package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/blitzdl/blitz/internal/output"
	"github.com/blitzdl/blitz/internal/scheduler"
	"github.com/blitzdl/blitz/internal/utils"
)

var (
	connections   int
	workers       int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	debug         bool
	fileLog       bool

	globalHTTPConfig  utils.HTTPClientConfig
	globalRetryPolicy utils.RetryPolicy
)

var BlitzVersion = "dev"

// envDefaults are flag defaults overridable via BLITZ_* environment
// variables (e.g. BLITZ_CONNECTIONS, BLITZ_PROXY).
type envDefaults struct {
	Connections int    `default:"8"`
	Workers     int    `default:"1"`
	UserAgent   string `default:""`
	Proxy       string `default:""`
	MaxRetries  int    `default:"5"`
}

var rootCmd = &cobra.Command{
	Use:     "blitz [URL]",
	Short:   "Blitz is a fast multi-connection download manager",
	Version: BlitzVersion,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if fileLog {
			if f, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				utils.SetLogOutput(f)
			}
		}
		// Pull auth out of the proxy URL if embedded there
		if parsedProxy, err := u.Parse(proxyURL); err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}
		globalHTTPConfig = utils.HTTPClientConfig{
			Timeout:       timeout,
			KATimeout:     kaTimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUsername,
			ProxyPassword: proxyPassword,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
		}
		globalRetryPolicy = utils.RetryPolicy{
			MaxRetries: maxRetries,
			BaseDelay:  baseDelay,
			MaxDelay:   maxDelay,
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
		// Bare URL defaults to the HTTP downloader
		runJobs([]utils.BlitzJob{newHTTPJob(args[0], "")})
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runJobs(jobs []utils.BlitzJob) {
	if err := scheduler.Run(jobs, workers); err != nil {
		output.PrintError("Encountered failed operation(s)")
		os.Exit(1)
	}
}

func init() {
	var defaults envDefaults
	envconfig.Process("blitz", &defaults)

	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&connections, "connections", "c", defaults.Connections, "Number of connections per download")
	pf.IntVarP(&workers, "workers", "w", defaults.Workers, "Number of jobs to run in parallel")
	pf.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	pf.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for the client")
	pf.StringVarP(&userAgent, "user-agent", "a", defaults.UserAgent, "User agent")
	pf.StringVarP(&proxyURL, "proxy", "p", defaults.Proxy, "HTTP/HTTPS proxy URL")
	pf.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	pf.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	pf.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers; can be specified multiple times")
	pf.IntVar(&maxRetries, "retries", defaults.MaxRetries, "Max attempts per chunk before the job fails")
	pf.DurationVar(&baseDelay, "base-delay", 500*time.Millisecond, "Initial retry backoff delay")
	pf.DurationVar(&maxDelay, "max-delay", 10*time.Second, "Retry backoff cap")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&fileLog, "filelog", false, "Also write logs to "+utils.LogFile)

	rootCmd.AddCommand(newHTTPCmd(), newS3Cmd(), newGitCloneCmd(), newBatchCmd(), newCleanCmd())
}
