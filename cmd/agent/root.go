package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petasbytes/toolloop/internal/config"
	"github.com/petasbytes/toolloop/internal/dependency"
	"github.com/petasbytes/toolloop/internal/telemetry"
)

const version = "0.2.0"

// app carries the global flags and the services resolved before each command.
type app struct {
	configPath    string
	model         string
	maxIterations int
	export        string

	out    io.Writer
	errOut io.Writer

	cfg       *config.Config
	log       zerolog.Logger
	container *dependency.Container
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "agent",
		Short:         "Tool-calling agent for content discovery and podcast research",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ./agent.yaml)")
	pf.StringVar(&a.model, "model", "", "model name override")
	pf.IntVar(&a.maxIterations, "max-iterations", 0, "iteration ceiling override")
	pf.StringVar(&a.export, "export", "", "write the final transcript to this path")

	root.AddCommand(
		newRunCmd(a),
		newDiscoverCmd(a),
		newBatchCmd(a),
		newToolsCmd(a),
		newScheduleCmd(a),
	)
	return root
}

// setup loads config, applies flag overrides and builds the container.
func (a *app) setup(cmd *cobra.Command) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("model") {
		overrides["model.name"] = a.model
	}
	if cmd.Flags().Changed("max-iterations") {
		overrides["loop.max_iterations"] = a.maxIterations
	}

	cfg, err := config.Load(a.configPath, overrides)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	a.log = newLogger(cfg.Telemetry, a.errOut)

	telemetry.Configure(telemetry.Options{
		Observe:      cfg.Telemetry.Observe,
		ArtifactsDir: cfg.Telemetry.ArtifactsDir,
	})

	a.container, err = dependency.BuildContainer(cfg, a.log)
	return err
}

// newLogger writes JSON lines to w, or console output when pretty is set.
func newLogger(tc config.TelemetryConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(tc.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if tc.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
