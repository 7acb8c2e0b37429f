package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	logrusbackend "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xaionaro-go/audiosync/pkg/audiosync"
	"github.com/xaionaro-go/audiosync/pkg/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

type app struct {
	configFile  string
	loggerLevel logger.Level
	cfg         *config.Config
	ctx         context.Context
	closers     []io.Closer
}

func newApp() *app {
	return &app{
		loggerLevel: logger.LevelWarning,
	}
}

func (a *app) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audiosync TRACK",
		Short: "Find how far into a track the currently playing audio is",
		Long: `audiosync records what is playing right now and correlates it with
the beginning of TRACK (a local file, a URL, or a title to search for).
On success it prints the offset in milliseconds.

SIGUSR1 pauses the synchronization, SIGUSR2 resumes it, SIGINT and
SIGTERM abort it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (YAML or TOML)")
	flags.String("device", "", "device, sink or application name to record (default: the monitor of the default output)")
	flags.String("backend", "", "recorder backend to use: pulseaudio or portaudio (default: the best available)")
	flags.Var(&a.loggerLevel, "log-level", "Log level")
	flags.Bool("debug", false, "dump every correlation attempt and log decoder diagnostics")
	flags.Float64("threshold", audiosync.DefaultPolicy().Threshold, "minimal correlation coefficient of a match")

	cmd.AddCommand(
		newCorrelateCommand(a),
		newCaptureCommand(a),
	)
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range map[string]string{
		"capture.device":  "device",
		"capture.backend": "backend",
		"logging.level":   "log-level",
		"debug.enabled":   "debug",
		"sync.threshold":  "threshold",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("unable to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func (a *app) init(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	a.cfg, err = config.Load(v)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.ctx = a.initLogger(ctx)
	cmd.SetContext(a.ctx)
	return nil
}

func (a *app) initLogger(ctx context.Context) context.Context {
	var out io.Writer = os.Stderr
	if a.cfg.Logging.File != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   a.cfg.Logging.File,
			MaxSize:    a.cfg.Logging.MaxSizeMB,
			MaxBackups: a.cfg.Logging.MaxBackups,
		}
		a.closers = append(a.closers, fileLogger)
		out = fileLogger
	}

	backend := logrusbackend.New()
	backend.SetOutput(out)
	backend.Formatter = &logrusbackend.TextFormatter{FullTimestamp: true}

	l := logrus.New(backend).WithLevel(a.cfg.LogLevel())
	ctx = logger.CtxWithLogger(ctx, l)
	logger.Default = func() logger.Logger {
		return l
	}
	return ctx
}

func (a *app) close() {
	if a.ctx != nil {
		belt.Flush(a.ctx)
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

func (a *app) runSync(ctx context.Context, out io.Writer, track string) error {
	e, err := a.cfg.NewEngine()
	if err != nil {
		return err
	}
	audiosync.SetDefault(e)

	if device := a.cfg.Capture.Device; device != "" {
		if err := e.Setup(ctx, device); err != nil {
			logger.Warnf(ctx, "unable to set up %q, recording it as a device: %v", device, err)
		}
	}

	stop := handleSignals(ctx, e)
	defer stop()

	result, err := e.Run(ctx, track)
	logger.Infof(ctx, "result: %s", result)
	if err != nil {
		return exitCodeError{Code: exitCodeFault, Err: err}
	}
	if !result.Success {
		return exitCodeError{Code: exitCodeNoMatch, Err: fmt.Errorf("no match: %s", result.Outcome)}
	}
	fmt.Fprintln(out, result.LagMS)
	return nil
}
