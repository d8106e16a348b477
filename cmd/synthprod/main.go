package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"synthprod/internal/app"
	"synthprod/internal/config"
)

const (
	exitCodeFailure = 1
	exitCodeUsage   = 2
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// options holds parsed command-line flags.
type options struct {
	configPath  string
	showVersion bool
	checkOnly   bool
}

// parseFlags reads command-line flags.
// Params: args without program name; stderr receives usage output.
// Returns: parsed options or flag error (flag.ErrHelp for -h).
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("synthprod", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "config.toml", "path to TOML config file or directory")
	fs.BoolVar(&opts.showVersion, "v", false, "show build information")
	fs.BoolVar(&opts.showVersion, "version", false, "show build information")
	fs.BoolVar(&opts.checkOnly, "check", false, "validate config, print the resolved producer settings, and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// checkConfig loads config and prints the settings the producer would run with.
// Params: path config file or directory; out summary destination.
// Returns: load/validation error.
func checkConfig(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	var cadence string
	if cfg.Producer.Cadence != nil {
		cadence = cfg.Producer.Cadence.Duration.String()
	}
	endpoint := "-"
	switch cfg.Sink.Kind {
	case config.SinkHTTP:
		endpoint = fmt.Sprintf("%s (%s, compression=%s)", cfg.Sink.HTTP.URL, cfg.Sink.HTTP.Encoding, cfg.Sink.HTTP.Compression)
	case config.SinkGRPC:
		endpoint = cfg.Sink.GRPC.Addr
	}

	fmt.Fprintf(out, "config ok: %s\n", path)
	fmt.Fprintf(out, "  host:       %s\n", cfg.Global.Host)
	fmt.Fprintf(out, "  sink:       %s %s\n", cfg.Sink.Kind, endpoint)
	fmt.Fprintf(out, "  cadence:    %s\n", cadence)
	fmt.Fprintf(out, "  batch_size: %d\n", cfg.Producer.BatchSize)
	fmt.Fprintf(
		out,
		"  retry:      %d attempts, %s..%s\n",
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialDelay.Duration,
		cfg.Retry.MaxDelay.Duration,
	)
	return nil
}

// reloadRequests turns SIGHUP deliveries into coalesced reload triggers.
// Params: ctx stops forwarding; signals raw signal channel.
// Returns: trigger channel holding at most one pending request.
func reloadRequests(ctx context.Context, signals <-chan os.Signal) <-chan struct{} {
	reload := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		}
	}()
	return reload
}

// run executes one CLI invocation.
// Params: args without program name; stdout/stderr output streams.
// Returns: process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCodeUsage
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "synthprod version=%s commit=%s date=%s\n", version, commit, date)
		return 0
	}
	if opts.checkOnly {
		if err := checkConfig(opts.configPath, stdout); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitCodeFailure
		}
		return 0
	}

	// SIGINT/SIGTERM cancel the producer; the buffered batch is flushed before exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)
	defer signal.Stop(hangups)

	runtime := app.Runtime{ConfigPath: opts.configPath, Reload: reloadRequests(ctx, hangups)}
	if err := app.Run(ctx, runtime); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCodeFailure
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
