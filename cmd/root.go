package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mlb/dezoomify-rs/internal/config"
	"github.com/mlb/dezoomify-rs/internal/dezoomer/registry"
	"github.com/mlb/dezoomify-rs/internal/download"
	"github.com/mlb/dezoomify-rs/internal/fetch"
	"github.com/mlb/dezoomify-rs/internal/tilecache"
)

var cfgFile string

// exitCodes: 0 success, 1 total failure, 2 partial success, 3 invalid
// arguments.
const (
	exitSuccess = iota
	exitFailure
	exitPartial
	exitUsage
)

var rootCmd = &cobra.Command{
	Use:   "dezoomify-rs [URI] [OUTFILE]",
	Short: "Download zoomable images from IIIF, Zoomify, DeepZoom and other tiled formats",
	Long: `dezoomify-rs downloads zoomable images (the kind used by virtual-tour and
high-resolution scan viewers) by fetching every tile of the requested zoom
level and stitching them into a single output image.

Examples:
  # Auto-detect the format and download the largest zoom level
  dezoomify-rs https://example.com/path/to/info.json output.png

  # Force a specific dezoomer and zoom level
  dezoomify-rs --dezoomer zoomify --zoom-level 3 https://example.com/ImageProperties.xml out.jpg

  # Download every image listed in a text file
  dezoomify-rs --bulk urls.txt out.png

  # Serve the same pipeline over HTTP
  dezoomify-rs serve --port 8080`,
	Args: cobra.MaximumNArgs(2),
	RunE: runDownload,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitUsage)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dezoomify-rs.yaml)")

	flags := rootCmd.Flags()
	flags.String("dezoomer", "auto", "force a specific dezoomer instead of auto-detecting")
	flags.Bool("largest", false, "always pick the largest available zoom level")
	flags.Int("max-width", 0, "largest zoom level whose width does not exceed this")
	flags.Int("max-height", 0, "largest zoom level whose height does not exceed this")
	flags.Int("zoom-level", -1, "pick a specific zoom level by index")
	flags.Int("image-index", -1, "pick a specific image by index when a URI resolves to several")
	flags.Int("parallelism", 16, "number of tiles downloaded concurrently")
	flags.Int("retries", 1, "number of times to retry a failed tile (excluding 404s)")
	flags.Duration("retry-delay", 2*time.Second, "base delay between retries")
	flags.Uint8("compression", 5, "PNG compression level, 0-100")
	flags.StringSlice("header", nil, "extra HTTP header \"Name: Value\", repeatable")
	flags.Int("max-idle-per-host", 32, "max idle HTTP connections kept per host")
	flags.Bool("accept-invalid-certs", false, "disable TLS certificate verification")
	flags.Duration("min-interval", 50*time.Millisecond, "minimum delay between requests to the same host")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.Duration("connect-timeout", 6*time.Second, "TCP connect timeout")
	flags.String("logging", "info", "log level: error, warn, info, debug")
	flags.String("tile-cache", "", "directory to cache downloaded tiles in")
	flags.String("bulk", "", "path or URL to a newline-separated list of images to download")

	viper.BindPFlags(flags)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dezoomify-rs")
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// argumentsFromFlags builds an Arguments from the bound flags. Interactive
// stays at config.Default()'s true: the plain CLI path always prompts on an
// ambiguous choice unless an explicit selecting flag (--image-index,
// --zoom-level, --max-width/--max-height, --largest) picks for it. Only the
// bulk driver overrides Interactive to false, since bulk runs unattended.
func argumentsFromFlags(args []string) (config.Arguments, error) {
	a := config.Default()

	if len(args) > 0 {
		a.InputURI = args[0]
	}
	if len(args) > 1 {
		a.Outfile = args[1]
	}

	a.Dezoomer = viper.GetString("dezoomer")
	a.Largest = viper.GetBool("largest")
	a.MaxWidth = viper.GetInt("max-width")
	a.MaxHeight = viper.GetInt("max-height")
	if z := viper.GetInt("zoom-level"); z >= 0 {
		a.HasZoom = true
		a.ZoomLevel = z
	}
	if i := viper.GetInt("image-index"); i >= 0 {
		a.HasImage = true
		a.ImageIndex = i
	}
	a.Parallelism = viper.GetInt("parallelism")
	a.Retries = viper.GetInt("retries")
	a.RetryDelay = viper.GetDuration("retry-delay")
	a.Compression = uint8(viper.GetInt("compression"))
	a.Headers = viper.GetStringSlice("header")
	a.MaxIdlePerHost = viper.GetInt("max-idle-per-host")
	a.AcceptInvalid = viper.GetBool("accept-invalid-certs")
	a.MinInterval = viper.GetDuration("min-interval")
	a.Timeout = viper.GetDuration("timeout")
	a.ConnectTimeout = viper.GetDuration("connect-timeout")
	a.Logging = viper.GetString("logging")
	a.TileCache = viper.GetString("tile-cache")
	a.Bulk = viper.GetString("bulk")

	if a.Bulk == "" && a.InputURI == "" {
		return a, fmt.Errorf("a URI to download is required (or use --bulk)")
	}
	return a, nil
}

func buildPipeline(a config.Arguments, out *os.File) (*download.Pipeline, error) {
	headers, err := config.ParseHeaders(a.Headers)
	if err != nil {
		return nil, err
	}

	client := fetch.New(fetch.Config{
		Headers:          headers,
		Timeout:          a.Timeout,
		ConnectTimeout:   a.ConnectTimeout,
		Retries:          a.Retries,
		RetryDelay:       a.RetryDelay,
		MinInterval:      a.MinInterval,
		MaxIdlePerHost:   a.MaxIdlePerHost,
		AcceptInvalidTLS: a.AcceptInvalid,
	}, nil)

	var cache *tilecache.Cache
	if a.TileCache != "" {
		cache = tilecache.New(a.TileCache)
	}

	return &download.Pipeline{
		Registry: registry.All(true),
		Client:   client,
		Cache:    cache,
		Args:     a,
		Out:      out,
		In:       os.Stdin,
	}, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	a, err := argumentsFromFlags(args)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(exitUsage)
		return nil
	}

	if a.Bulk != "" {
		return runBulk(cmd, a)
	}

	pipeline, err := buildPipeline(a, os.Stdout)
	if err != nil {
		os.Exit(exitUsage)
		return nil
	}

	ctx := context.Background()
	outcome, err := pipeline.Run(ctx, a.InputURI, a.Outfile)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(exitFailure)
		return nil
	}
	if len(outcome.Result.Failures) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "downloaded %s with %d failed tile(s) out of %d\n",
			outcome.Outfile, len(outcome.Result.Failures), outcome.Result.Successes+len(outcome.Result.Failures))
		os.Exit(exitPartial)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d tiles)\n", outcome.Outfile, outcome.Result.Successes)
	return nil
}
