package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/meigma/annul"
	"github.com/meigma/annul/internal/config"
	"github.com/meigma/annul/internal/fetch"
	"github.com/meigma/annul/internal/metrics"
	"github.com/meigma/annul/registry"
)

// flags holds the global command-line flags. A flag overrides the
// configuration only when it was set.
type flags struct {
	configPath      string
	logLevel        string
	logFormat       string
	level           int
	dictionaryDir   string
	maxDepth        int
	maxBytes        config.ByteSize
	metricsTextfile string
	registry        string
	plainHTTP       bool
}

// app is the state shared by every subcommand once configuration is loaded.
type app struct {
	env     func(string) (string, bool)
	flags   flags
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
}

func newRootCommand(env func(string) (string, bool)) *cobra.Command {
	cmd, _ := buildRoot(env)
	return cmd
}

// buildRoot returns the root command and the state its subcommands share.
func buildRoot(env func(string) (string, bool)) (*cobra.Command, *app) {
	a := &app{env: env}

	cmd := &cobra.Command{
		Use:           "annul",
		Short:         "Archive Debian source packages into searchable containers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Flags(), cmd.ErrOrStderr())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format: text or json")
	pf.IntVar(&a.flags.level, "level", annul.DefaultCompressionLevel, "zstd compression level (1-22)")
	pf.StringVar(&a.flags.dictionaryDir, "dictionary-dir", "", "directory of trained dictionaries replacing the embedded ones")
	pf.IntVar(&a.flags.maxDepth, "max-depth", 0, "nesting levels expanded before entries are reported too nested")
	pf.Var(&a.flags.maxBytes, "max-bytes", "per-file unpack budget, e.g. \"8 GiB\"")
	pf.StringVar(&a.flags.metricsTextfile, "metrics-textfile", "", "write run metrics to this node-exporter textfile")
	pf.StringVar(&a.flags.registry, "registry", "", "OCI repository to push published containers to")
	pf.BoolVar(&a.flags.plainHTTP, "plain-http", false, "use plain HTTP for the registry")

	cmd.AddCommand(
		newFetchCommand(a),
		newFileCommand(a),
		newInspectCommand(a),
	)
	return cmd, a
}

// setup loads configuration from the file, the environment and flags, in
// that order, and builds the logger.
func (a *app) setup(fs *pflag.FlagSet, stderr io.Writer) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(a.env); err != nil {
		return err
	}
	a.applyFlags(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(stderr, hopts)
	} else {
		handler = slog.NewTextHandler(stderr, hopts)
	}
	a.logger = slog.New(handler).With(slog.String("run", uuid.NewString()))
	a.metrics = metrics.New()
	return nil
}

func (a *app) applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	f := a.flags
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if fs.Changed("level") {
		cfg.Compression.Level = f.level
	}
	if fs.Changed("dictionary-dir") {
		cfg.Compression.DictionaryDir = f.dictionaryDir
	}
	if fs.Changed("max-depth") {
		cfg.Unpack.MaxDepth = f.maxDepth
	}
	if fs.Changed("max-bytes") {
		cfg.Unpack.MaxBytes = f.maxBytes
	}
	if fs.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = f.metricsTextfile
	}
	if fs.Changed("registry") {
		cfg.Registry.Repository = f.registry
	}
	if fs.Changed("plain-http") {
		cfg.Registry.PlainHTTP = f.plainHTTP
	}
}

// archiver builds an Archiver from the loaded configuration.
func (a *app) archiver() (*annul.Archiver, error) {
	cfg := a.cfg
	opts := []annul.Option{
		annul.WithLogger(a.logger),
		annul.WithFetcher(fetch.New(
			fetch.WithRetries(cfg.Fetch.Retries),
			fetch.WithTimeout(cfg.Fetch.Timeout),
			fetch.WithUserAgent(cfg.Fetch.UserAgent),
			fetch.WithLogger(a.logger),
		)),
		annul.WithCompressionLevel(cfg.Compression.Level),
		annul.WithDictionaryDir(cfg.Compression.DictionaryDir),
		annul.WithMaxDepth(cfg.Unpack.MaxDepth),
		annul.WithMaxBytes(int64(cfg.Unpack.MaxBytes)),
		annul.WithRecorder(a.metrics),
	}
	if cfg.Registry.Repository != "" {
		p, err := registry.NewPusher(cfg.Registry.Repository,
			registry.WithPlainHTTP(cfg.Registry.PlainHTTP),
			registry.WithUserAgent(cfg.Fetch.UserAgent),
			registry.WithDockerConfig(),
			registry.WithLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, annul.WithPusher(p))
	}
	return annul.New(opts...)
}

// finish writes the metrics textfile when one is configured and joins any
// failure with the run error.
func (a *app) finish(runErr error) error {
	if a.cfg.Metrics.Textfile == "" {
		return runErr
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		return errors.Join(runErr, fmt.Errorf("write metrics: %w", err))
	}
	return runErr
}
