package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/api"
	"github.com/MiaMao0615/AR-Accompanied/internal/channel"
	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/internal/dispatcher"
	"github.com/MiaMao0615/AR-Accompanied/internal/engine"
	"github.com/MiaMao0615/AR-Accompanied/internal/influx"
	"github.com/MiaMao0615/AR-Accompanied/internal/logging"
	"github.com/MiaMao0615/AR-Accompanied/internal/monitor"
	intOtel "github.com/MiaMao0615/AR-Accompanied/internal/otel"
	"github.com/MiaMao0615/AR-Accompanied/internal/session"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage"
	wsstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/websocket"
	"github.com/MiaMao0615/AR-Accompanied/internal/worker"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"

	"github.com/spf13/pflag"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	ExtensionName string = "presence"
)

// file paths
var (
	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// SessionContext holds the session being recorded
	SessionContext *session.Context = session.NewContext()

	// running engine, read by the log context provider
	currentEngine atomic.Pointer[engine.Engine]
)

type options struct {
	configDir   string
	logLevel    string
	statusFile  string
	sessionName string
	input       string
	linger      time.Duration
	upload      bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var opts options

	flagSet := pflag.NewFlagSet(ExtensionName, pflag.ContinueOnError)
	flagSet.StringVar(&opts.configDir, "config-dir", ".", "directory containing "+config.FileName)
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override logLevel from the config file")
	flagSet.StringVar(&opts.statusFile, "status-file", "", "rewrite this file once per second with the status line")
	flagSet.StringVar(&opts.sessionName, "session", "", "session name (default session.name)")
	flagSet.StringVar(&opts.input, "input", "-", "command script to read, - for stdin")
	flagSet.DurationVar(&opts.linger, "linger", 0, "keep the loop running this long after the input ends")
	flagSet.BoolVar(&opts.upload, "upload", false, "upload the session export to api.serverUrl at the end")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	command := "run"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}

	switch command {
	case "version":
		fmt.Printf("%s %s (built %s)\n", ExtensionName, CurrentVersion, BuildDate)
		return nil
	case "run", "export":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	if err := config.Load(opts.configDir); err != nil {
		// defaults are still in place
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
	}
	if opts.logLevel == "" {
		opts.logLevel = config.GetString("logLevel")
	}
	setupLogging(opts.logLevel)
	defer shutdownLogging()

	if command == "export" {
		paths, err := exportSessions(args)
		if err != nil {
			return err
		}
		for _, path := range paths {
			fmt.Println(path)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runSession(ctx, opts)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `%[1]s runs the AR companion presence loop.

Commands are read one per line from --input, e.g.
  :TRACKING:STATUS:|bench|TRACKED
  :ANCHOR:POSE:|bench|1,0,2|0,0,0,1|1,1,1
  :SPOT:CYCLE:|bench
  :STATUS:

Usage:
  %[1]s [flags] [run]
  %[1]s [flags] export <db-path|dump-dir> [session-id]
  %[1]s version

Flags:
`, ExtensionName)
	flagSet.PrintDefaults()
}

// setupLogging opens the session log file and wires the slog manager to
// it, plus Graylog and OTel when enabled.
func setupLogging(level string) {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logs dir %s: %v\n", logsDir, err)
	}

	LogFilePath = logging.LogFilePath(logsDir, ExtensionName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		_ = os.Rename(LogFilePath, LogFilePath+".old")
	}

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", LogFilePath, err)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logWriter(),
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize OTel provider: %v\n", err)
			OTelProvider = nil
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var gelf logging.MessageWriter
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address, ExtensionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to graylog: %v\n", err)
		} else {
			gelf = w
		}
	}

	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	SlogManager.Setup(logging.Options{
		File:     file,
		Level:    level,
		Provider: otelLogProvider,
		GELF:     gelf,
		Context:  logContext,
	})
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion)
}

// logWriter is the sink shared by the zerolog managers and the OTel file exporter.
func logWriter() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stderr
}

func logContext() []slog.Attr {
	attrs := SessionContext.LogAttrs()
	if e := currentEngine.Load(); e != nil {
		attrs = append(attrs, e.LogAttrs()...)
	}
	return attrs
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		_ = OTelProvider.Shutdown(ctx)
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

// runSession records one session from start to the end of the input.
func runSession(ctx context.Context, opts options) error {
	storageCfg := config.GetStorageConfig()
	siteCfg := config.GetSiteConfig()
	env := storageEnv{
		Tag:       config.GetString("session.tag"),
		Site:      siteFromConfig(siteCfg),
		Logger:    Logger,
		LogWriter: logWriter(),
		LogLevel:  opts.logLevel,
		Start:     SessionStartTime,
	}

	backend, err := createStorageBackend(storageCfg, env)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	telemetry := createTelemetry(storageCfg, backend, env)
	separateTelemetry := telemetry != nil && storage.Backend(telemetry) != backend
	if separateTelemetry {
		if err := telemetry.Init(); err != nil {
			Logger.Warn("Telemetry disabled", "error", err)
			telemetry, separateTelemetry = nil, false
		} else {
			defer telemetry.Close()
		}
	}

	name := opts.sessionName
	if name == "" {
		name = config.GetString("session.name")
	}
	sess := core.Session{
		Name:      name,
		StartTime: SessionStartTime,
		Latitude:  siteCfg.Latitude,
		Longitude: siteCfg.Longitude,
		Version:   CurrentVersion,
	}
	if err := backend.StartSession(&sess); err != nil {
		Logger.Error("Failed to start session", "error", err)
		return err
	}
	if separateTelemetry {
		telemetrySession := sess
		if err := telemetry.StartSession(&telemetrySession); err != nil {
			Logger.Warn("Failed to tag telemetry session", "error", err)
		}
	}
	SessionContext.Start(sess)
	Logger.Info("Session started", "id", sess.ID, "name", sess.Name, "storage", storageCfg.Type)

	c := clock.Real()
	deps, err := engineDependencies(c, Logger)
	if err != nil {
		Logger.Error("Invalid configuration", "error", err)
		return err
	}
	statusFan := channel.NewFanout[core.Status]()
	defer statusFan.Close()
	deps.Recorder = backend
	deps.Status = statusFan

	eng, err := newEngine(deps, sess)
	if err != nil {
		Logger.Error("Failed to create engine", "error", err)
		return err
	}
	currentEngine.Store(eng)
	defer currentEngine.Store(nil)

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(
		logging.NewZerolog(logWriter(), opts.logLevel, "dispatcher"),
	))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	workerDeps := worker.Dependencies{Engine: eng, Logger: Logger}
	if telemetry != nil {
		workerDeps.Metrics = telemetry
	}
	if err := worker.NewManager(workerDeps).RegisterHandlers(eventDispatcher); err != nil {
		return err
	}
	Logger.Info("Worker handlers registered with dispatcher", "commands", eventDispatcher.Commands())

	var wg sync.WaitGroup
	if ws, ok := backend.(*wsstorage.Backend); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forwardStatus(statusFan.Subscribe(16), ws)
		}()
	}

	monitorService := monitor.NewService(monitorDependencies(eng, backend, telemetry, opts.statusFile))
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- eng.Run(loopCtx) }()

	if err := feedInput(ctx, opts, eventDispatcher); err != nil && !errors.Is(err, context.Canceled) {
		Logger.Error("Command input failed", "error", err)
	}
	if opts.linger > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(opts.linger):
		}
	}

	// shutdown: inputs first, then the loop, then the journal
	eventDispatcher.Close()
	monitorService.Stop()
	stopLoop()
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		Logger.Error("Presence loop failed", "error", err)
	}
	statusFan.Close()
	wg.Wait()

	ended := SessionContext.End(time.Now())
	if err := backend.EndSession(); err != nil {
		Logger.Error("Failed to end session", "error", err)
		return err
	}
	if separateTelemetry {
		if err := telemetry.EndSession(); err != nil {
			Logger.Warn("Failed to end telemetry session", "error", err)
		}
	}
	Logger.Info("Session ended", "id", ended.ID, "duration", ended.EndTime.Sub(ended.StartTime))

	if u, ok := backend.(storage.Uploadable); ok {
		Logger.Info("Session exported", "path", u.GetExportedFilePath())
		if opts.upload {
			if err := api.NewFromConfig(config.GetAPIConfig()).UploadExport(u); err != nil {
				Logger.Error("Failed to upload session", "error", err)
				return err
			}
			Logger.Info("Session uploaded", "server", config.GetAPIConfig().ServerURL)
		}
	}
	return nil
}

func feedInput(ctx context.Context, opts options, d *dispatcher.Dispatcher) error {
	var in io.Reader = os.Stdin
	if opts.input != "-" && opts.input != "" {
		f, err := os.Open(filepath.Clean(opts.input))
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	done := make(chan error, 1)
	go func() { done <- readCommands(ctx, in, d, os.Stdout) }()
	select {
	case <-ctx.Done():
		// stdin cannot be interrupted, the reader goroutine is abandoned
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func monitorDependencies(eng *engine.Engine, backend storage.Backend, telemetry *influx.Backend, statusFile string) monitor.Dependencies {
	deps := monitor.Dependencies{
		Engine:     eng,
		Session:    SessionContext,
		Logger:     Logger,
		StatusPath: statusFile,
	}
	if q, ok := backend.(monitor.QueueReporter); ok {
		deps.Queues = q
	}
	if telemetry != nil {
		deps.Performance = telemetry
	}
	return deps
}

// forwardStatus streams status snapshots to the live viewer until the
// fan-out is closed.
func forwardStatus(sub channel.Receiver[core.Status], ws *wsstorage.Backend) {
	for st := range sub.Receive() {
		if err := ws.PublishStatus(st); err != nil {
			Logger.Debug("Dropped status update", "error", err)
		}
	}
}
