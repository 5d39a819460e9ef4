/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	config "github.com/tupyy/camsetup/configuration"
	"github.com/tupyy/camsetup/internal/devices"
	"github.com/tupyy/camsetup/internal/provision"
	"github.com/tupyy/camsetup/internal/report"
	"github.com/tupyy/camsetup/internal/system"
	"github.com/tupyy/camsetup/internal/systemd"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile      string
	logLevel        string
	disableLogFile  bool
	videoNr         int
	skipPackages    bool
	skipModuleBuild bool
)

var rootCmd = &cobra.Command{
	Use:   "camsetup",
	Short: "Provision the Linux multimedia stack for OBS multicam capture",
	Long: `camsetup installs the required packages, builds and loads the
v4l2loopback virtual camera, repairs masked portal services and restarts
PipeWire so OBS can enumerate cameras. Safe to re-run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.InitConfiguration(cmd, configFile)
	},
	Run: func(cmd *cobra.Command, args []string) {
		logFile := ""
		if !disableLogFile {
			logFile = fmt.Sprintf("setup_log_%s.txt", time.Now().Format("20060102_150405"))
		}

		logger := setupLogger(logFile)
		defer logger.Sync()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		ctx, cancel := context.WithTimeout(context.Background(), config.GetRunTimeout())
		defer cancel()

		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt)
		go func() {
			<-done
			zap.S().Warn("interrupted, stopping")
			cancel()
		}()

		runner := system.New()
		units := systemd.NewManager(ctx)
		defer units.Close()

		provisioner := provision.New(runner, units, provision.Options{
			SkipPackages:    skipPackages,
			SkipModuleBuild: skipModuleBuild,
			LogFile:         logFile,
		})

		rep, runErr := provisioner.Run(ctx)

		probeHardware(ctx, runner, rep)

		fmt.Print(report.Text(rep))

		if runErr != nil {
			zap.S().Errorw("provisioning finished with failures", "error", runErr)
			os.Exit(1)
		}
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.Flags().BoolVar(&disableLogFile, "disable-log-file", false, "do not mirror output to a setup log file")
	rootCmd.Flags().IntVar(&videoNr, "video-nr", 10, "video device number for the virtual camera")
	rootCmd.Flags().BoolVar(&skipPackages, "skip-packages", false, "skip the package installation step")
	rootCmd.Flags().BoolVar(&skipModuleBuild, "skip-module-build", false, "skip building v4l2loopback from source")
}

// setupLogger builds a console logger on stdout, mirrored to logFile when
// one is given.
func setupLogger(logFile string) *zap.Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if parsed, err := zap.ParseAtomicLevel(logLevel); err == nil {
		level = parsed
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stdout), level),
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", logFile, err)
		} else {
			cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(f), level))
		}
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.DPanicLevel))
}

// probeHardware runs the camera diagnostics that belong next to the report:
// device listings when no cameras were found, capture tests otherwise.
func probeHardware(ctx context.Context, runner system.Runner, rep *provision.Report) {
	prober := devices.NewProber(runner)

	if len(rep.PhysicalDevices) == 0 {
		zap.S().Info("no physical cameras found, dumping hardware listings")
		zap.S().Infof("v4l2-ctl --list-devices:\n%s", prober.ListDevices(ctx))
		zap.S().Infof("lsusb:\n%s", prober.USBDevices(ctx))
		return
	}

	for _, dev := range rep.PhysicalDevices {
		name := prober.CardName(ctx, dev)
		if name == "" {
			name = "unknown"
		}
		zap.S().Infow("physical camera", "device", dev, "card", name)

		if prober.TestCapture(ctx, dev, config.GetCaptureDuration()) {
			zap.S().Infow("capture test passed", "device", dev)
		} else {
			zap.S().Warnw("capture test failed, the device may be busy or broken", "device", dev)
		}
	}
}
