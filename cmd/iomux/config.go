package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/oosawy/iomux"
)

// config is everything the command line and the config file can set.
type config struct {
	Listen      string   `yaml:"listen"`
	Block       bool     `yaml:"block"`
	Parallel    bool     `yaml:"parallel"`
	Workers     int      `yaml:"workers"`
	ExitOnEmpty bool     `yaml:"exit_on_empty"`
	ChunkSize   int      `yaml:"chunk_size"`
	Rate        int64    `yaml:"rate"`
	Announce    string   `yaml:"announce"`
	Command     []string `yaml:"command"`
	LogFormat   string   `yaml:"log_format"`
	Verbose     bool     `yaml:"verbose"`

	showVersion bool
}

func defaultConfig() *config {
	return &config{
		Listen:    iomux.DefaultListenAddr,
		ChunkSize: iomux.DefaultChunkSize,
		LogFormat: "text",
	}
}

var errUsage = errors.New("usage")

// parseArgs builds the configuration from the config file, if any, and
// the flags set on the command line, which take precedence. Arguments
// after the flags name the command to relay; none, or a lone "-",
// relays standard input.
func parseArgs(args []string, stderr io.Writer) (*config, error) {
	fs := pflag.NewFlagSet("iomux", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: iomux [flags] [-- command [args...] | -]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	def := defaultConfig()
	var (
		configPath  = fs.StringP("config", "c", "", "read settings from this YAML file")
		listen      = fs.StringP("listen", "l", def.Listen, "address to accept clients on, `ADDRESS:PORT`")
		block       = fs.BoolP("block", "b", false, "use blocking writes; every client gets every byte")
		parallel    = fs.BoolP("parallel", "p", false, "write each chunk to all clients concurrently")
		workers     = fs.Int("workers", 0, "concurrent writes in parallel mode (default GOMAXPROCS)")
		exitOnEmpty = fs.Bool("exit-on-empty", false, "stop once the last client disconnects")
		chunkSize   = fs.Int("chunk-size", def.ChunkSize, "bytes read from the source at a time")
		rate        = fs.Int64("rate", 0, "cap the source at this many bytes per second")
		announce    = fs.String("announce", "", "advertise the relay over mDNS under this name")
		logFormat   = fs.String("log-format", def.LogFormat, "log format, text or json")
		verbose     = fs.BoolP("verbose", "v", false, "log debug messages")
		showVersion = fs.Bool("version", false, "print the version and exit")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "block":
			cfg.Block = *block
		case "parallel":
			cfg.Parallel = *parallel
		case "workers":
			cfg.Workers = *workers
		case "exit-on-empty":
			cfg.ExitOnEmpty = *exitOnEmpty
		case "chunk-size":
			cfg.ChunkSize = *chunkSize
		case "rate":
			cfg.Rate = *rate
		case "announce":
			cfg.Announce = *announce
		case "log-format":
			cfg.LogFormat = *logFormat
		case "verbose":
			cfg.Verbose = *verbose
		}
	})
	cfg.showVersion = *showVersion

	switch rest := fs.Args(); {
	case len(rest) == 1 && rest[0] == "-":
		cfg.Command = nil
	case len(rest) > 0:
		cfg.Command = rest
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfig(path string) (*config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := defaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: empty listen address", errUsage)
	}
	if c.Workers < 0 || c.ChunkSize <= 0 || c.Rate < 0 {
		return fmt.Errorf("%w: workers and rate must not be negative, chunk size must be positive", errUsage)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: unknown log format %q", errUsage, c.LogFormat)
	}
	if len(c.Command) > 0 && c.Command[0] == "" {
		return fmt.Errorf("%w: empty command", errUsage)
	}
	return nil
}

func (c *config) options() *iomux.Options {
	opts := &iomux.Options{
		Blocking:  c.Block,
		Parallel:  c.Parallel,
		Workers:   c.Workers,
		ChunkSize: c.ChunkSize,
		RateLimit: c.Rate,
		Announce:  c.Announce,
	}
	if c.ExitOnEmpty {
		opts.OnEmpty = iomux.EmptyStop
	}
	if len(c.Command) > 0 {
		opts.Source = iomux.Command(c.Command[0], c.Command[1:]...)
	}
	return opts
}

func (c *config) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
