// Package main provides the CLI entry point for videobot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/videobot/runtime/internal/config"
	"github.com/videobot/runtime/internal/logging"
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/reporter"
	"github.com/videobot/runtime/internal/runtime"
)

const (
	appName    = "videobot"
	appVersion = "0.1.0"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliArgs struct {
	input        string
	inputKind    string
	output       string
	outputKind   string
	loop         bool
	batch        bool
	frames       uint64
	maxTime      time.Duration
	configPath   string
	botID        string
	mode         string
	poolChannel  string
	verbose      bool
	noLog        bool
	logDir       string
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `%s - video-bot runtime

Usage:
  %s [options]

Input:
  -input <channel|path>   Broker channel, file path, url, or camera device
  -input-kind <kind>      broker|file|url|camera (default: broker)
  -loop                   Restart file/url input at EOF

Output:
  -output <channel|dir>   Broker channel, or directory for file output
  -output-kind <kind>     broker|file|stdout (default: broker)

Processing:
  -batch                  Drive the source as fast as possible, no pacing
  -frames <N>             Stop after N frames (0 = unlimited)
  -time <duration>        Stop after duration (e.g. 30s, 5m)

Bot:
  -bot-id <id>            Bot identity (required)
  -mode <live|batch>       Execution mode (default: live)
  -config <path>          JSON file merged into the bot's configure() call
  -pool-channel <channel> Join the pool controller's job protocol on channel

Debug:
  -v                      Verbose output
  -no-log                 Disable the file-backed run log
  -log-dir <path>         Log directory (defaults to XDG state dir)
  -log.level <level>      Structured log level: debug, info, warn, error

Environment:
  NODE_ID                 Overrides the pool controller's node identifier
`, appName, appName)
	}

	var a cliArgs
	fs.StringVar(&a.input, "input", "", "broker channel, file path, url, or camera device")
	fs.StringVar(&a.inputKind, "input-kind", "broker", "broker|file|url|camera")
	fs.StringVar(&a.output, "output", "", "broker channel or output directory")
	fs.StringVar(&a.outputKind, "output-kind", "broker", "broker|file|stdout")
	fs.BoolVar(&a.loop, "loop", false, "restart file/url input at EOF")
	fs.BoolVar(&a.batch, "batch", false, "drive the source without pacing")
	fs.Uint64Var(&a.frames, "frames", 0, "stop after N frames (0 = unlimited)")
	fs.DurationVar(&a.maxTime, "time", 0, "stop after duration")
	fs.StringVar(&a.configPath, "config", "", "JSON file merged into configure()")
	fs.StringVar(&a.botID, "bot-id", "", "bot identity (required)")
	fs.StringVar(&a.mode, "mode", "live", "live|batch")
	fs.StringVar(&a.poolChannel, "pool-channel", "", "join the pool controller on channel")
	fs.BoolVar(&a.verbose, "v", false, "verbose output")
	fs.BoolVar(&a.noLog, "no-log", false, "disable the file-backed run log")
	fs.StringVar(&a.logDir, "log-dir", "", "log directory")
	logLevel := fs.String("log.level", "", "log level (debug, info, warn, error)")
	brokerURL := fs.String("broker-url", "", "broker websocket url")
	jobCapacity := fs.String("job-capacity", "", "comma-separated type=count pairs for the pool controller")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.botID == "" {
		fs.Usage()
		return fmt.Errorf("-bot-id is required")
	}

	if *logLevel != "" {
		if err := logging.SetLevel(*logLevel); err != nil {
			return err
		}
	}
	structuredLogger := logging.Structured()

	logDir := a.logDir
	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	fileLog, err := logging.Setup(logDir, a.verbose, a.noLog, os.Args)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	if fileLog != nil {
		defer func() { _ = fileLog.Close() }()
	}

	cfg, err := buildConfig(a, *brokerURL, *jobCapacity)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rep := newReporter(a.verbose, fileLog)
	desc := runtime.EchoBot(model.PixelFormatBGR)
	rt := runtime.New(cfg, structuredLogger, rep, desc)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if cfg.MaxTime > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.MaxTime)
		defer timeoutCancel()
	}

	return rt.Run(ctx)
}

func buildConfig(a cliArgs, brokerURL, jobCapacityArg string) (*config.Config, error) {
	opts := []config.Option{
		config.WithBotID(a.botID),
		config.WithMode(a.mode),
		config.WithBatch(a.batch),
		config.WithLimits(a.frames, a.maxTime),
		config.WithConfigPath(a.configPath),
		config.WithVerbose(a.verbose),
		config.WithNoLog(a.noLog),
		config.WithLogDir(a.logDir),
	}

	switch a.inputKind {
	case "broker":
		opts = append(opts, config.WithBrokerInput(brokerURL, a.input))
	case "file":
		opts = append(opts, config.WithFileInput(a.input, a.loop))
	case "url":
		opts = append(opts, config.WithURLInput(a.input, a.loop))
	case "camera":
		opts = append(opts, config.WithCameraInput(a.input))
	default:
		return nil, fmt.Errorf("unknown -input-kind %q", a.inputKind)
	}

	switch a.outputKind {
	case "broker":
		opts = append(opts, config.WithBrokerOutput(brokerURL, a.output))
	case "file":
		opts = append(opts, config.WithFileOutput(a.output, "", ""))
	case "stdout":
		opts = append(opts, config.WithStdoutOutput())
	default:
		return nil, fmt.Errorf("unknown -output-kind %q", a.outputKind)
	}

	if a.poolChannel != "" {
		capacity, err := parseJobCapacity(jobCapacityArg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, config.WithPoolChannel(a.poolChannel, capacity))
	}

	return config.New(opts...), nil
}

func parseJobCapacity(s string) (map[string]int, error) {
	capacity := map[string]int{}
	if s == "" {
		return capacity, nil
	}
	for _, pair := range splitNonEmpty(s, ',') {
		kv := splitNonEmpty(pair, '=')
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid -job-capacity entry %q, expected type=count", pair)
		}
		var count int
		if _, err := fmt.Sscanf(kv[1], "%d", &count); err != nil {
			return nil, fmt.Errorf("invalid -job-capacity count in %q: %w", pair, err)
		}
		capacity[kv[0]] = count
	}
	return capacity, nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func newReporter(verbose bool, fileLog *logging.Logger) reporter.Reporter {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return reporter.NewTerminalReporterVerbose(verbose)
	}
	if fileLog != nil {
		return reporter.NewLogReporter(fileLog.Writer())
	}
	return reporter.NewLogReporter(os.Stderr)
}
