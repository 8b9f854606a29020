// Command audata inspects audata files: tables of typed columns stored as
// HDF5 compound datasets.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robert-malhotra/go-audata/audata"
)

type app struct {
	out      io.Writer
	format   string
	logLevel string
	log      *zap.Logger
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, log: zap.NewNop()}
	root := &cobra.Command{
		Use:           "audata",
		Short:         "Inspect audata files",
		Version:       audata.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", a.format)
			}
			log, err := newLogger(a.logLevel)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.format, "format", "f", "text", "Output format (text, json, yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		a.lsCmd(),
		a.infoCmd(),
		a.catCmd(),
		a.metaCmd(),
		a.exportCmd(),
		a.h5Cmd(),
	)
	return root
}

// newLogger builds a console logger on stderr.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			MessageKey:     "message",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}
	return cfg.Build()
}

// open opens path read-only.
func (a *app) open(path string) (*audata.File, error) {
	return audata.Open(path, audata.WithLogger(a.log))
}
