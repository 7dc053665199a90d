package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/internal/logging"
	intOtel "github.com/piracysim/piracysim/internal/otel"
	"github.com/piracysim/piracysim/internal/runctx"
)

// set with -ldflags at build time
var (
	CurrentVersion = "dev"
	BuildDate      = "unknown"
)

const AppName = "piracysim"

var SessionStartTime = time.Now()

var (
	SlogManager  *logging.SlogManager
	Logger       *slog.Logger
	Zlog         zerolog.Logger
	RunContext   *runctx.Context
	OTelProvider *intOtel.Provider

	logFile       *os.File
	graylogWriter *gelf.Writer
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func usage(fs *pflag.FlagSet, out io.Writer) {
	fmt.Fprintf(out, `Usage: %s [flags] [command] [args]

Commands:
  run                      run a simulation to completion (default)
  interactive              read control commands from stdin
  replay <file>            print every frame of an exported run
  inspect <file>           print the conditions and history of an exported run
  upload <file>            send an exported run to the configured viewer
  export-db <runID> <file> export a stored run to a file
  setupdb                  migrate the database schema
  status                   print the program status once

Flags:
`, AppName)
	fs.SetOutput(out)
	fs.PrintDefaults()
}

func run(args []string, in io.Reader, out io.Writer) int {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	configDir := fs.String("config", ".", "directory containing "+config.FileName)
	reverse := fs.Bool("reverse", false, "replay frames from last to first")
	verbose := fs.Bool("verbose", false, "list ships when printing frames")
	showVersion := fs.BoolP("version", "v", false, "print the version and exit")
	if err := config.BindFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	fs.Usage = func() { usage(fs, out) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintf(out, "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return 0
	}

	if err := config.Load(*configDir); err != nil {
		// defaults are already in place
		fmt.Fprintf(os.Stderr, "%v, using defaults\n", err)
	}

	if err := initLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer shutdownLogging()

	cmd, rest := "run", fs.Args()
	if len(rest) > 0 {
		cmd, rest = strings.ToLower(rest[0]), rest[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "run":
		err = runHeadless(ctx, out)
	case "interactive":
		err = runInteractive(ctx, in, out)
	case "replay":
		err = replayFile(rest, *reverse, *verbose, out)
	case "inspect":
		err = inspectFile(rest, out)
	case "upload":
		err = uploadFile(rest, out)
	case "export-db":
		err = exportDB(rest, out)
	case "setupdb":
		err = setupDB()
	case "status":
		err = printStatus(out)
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", cmd)
		usage(fs, out)
		return 2
	}

	if err != nil {
		Logger.Error("Command failed", "command", cmd, "error", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// initLogging opens the session log file and builds the slog and zerolog
// loggers on top of it, plus the OpenTelemetry and Graylog sinks when enabled.
func initLogging() error {
	SlogManager = logging.NewSlogManager()
	RunContext = runctx.NewContext()
	level := config.GetString("logLevel")

	f, err := logging.OpenLogFile(logging.LogFilePath(config.GetString("logsDir"), AppName, SessionStartTime))
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f

	otelCfg := config.GetOTelConfig()
	OTelProvider, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    f,
		MetricWriter: f,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up OpenTelemetry: %w", err)
	}

	opts := logging.Options{
		File:        f,
		Level:       level,
		Provider:    OTelProvider.LoggerProvider(),
		Context:     RunContext.LogAttrs,
		ServiceName: otelCfg.ServiceName,
	}
	var graylogErr error
	if config.GetBool("graylog.enabled") {
		if graylogWriter, graylogErr = logging.NewGraylogWriter(config.GetString("graylog.address")); graylogErr == nil {
			opts.Graylog = graylogWriter
		}
	}
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Zlog = logging.NewZerolog(f, level, RunContext.LogAttrs)

	if graylogErr != nil {
		Logger.Warn("Graylog disabled", "error", graylogErr)
	}
	Logger.Info("Starting", "app", AppName, "version", CurrentVersion, "buildDate", BuildDate,
		"logFile", f.Name(), "otel", OTelProvider.Enabled())
	return nil
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	Logger.Info("Shutting down")
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if err := OTelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to shut down OpenTelemetry: %v\n", err)
	}
	if graylogWriter != nil {
		_ = graylogWriter.Close()
	}
	if logFile != nil {
		_ = logFile.Close()
	}
}
