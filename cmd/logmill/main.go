// Command logmill runs a pipeline described by a YAML document.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/randalmurphal/logmill/pkg/logmill"
	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/modules"
	"github.com/randalmurphal/logmill/pkg/logmill/observability"
)

const (
	exitCodeFailure = 1
	exitCodeForced  = 130
)

var (
	version = "dev"
	commit  = "none"
)

type options struct {
	configPath string
	configTest bool
	showInfo   bool
}

// newRootCmd returns the logmill command bound to args.
func newRootCmd(args []string) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "logmill",
		Short:         "logmill runs an event processing pipeline.",
		Long:          "logmill reads a YAML pipeline document, builds the units it declares and runs them until every input has finished or a signal arrives.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.showInfo {
				fmt.Fprintf(cmd.OutOrStdout(), "logmill version=%s commit=%s\n", version, commit)
				return nil
			}
			return runPipeline(cmd, opts)
		},
	}

	rootCmd.SetArgs(args)
	opts.bind(rootCmd.Flags())
	return rootCmd
}

func (o *options) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&o.configPath, "config", "c", "logmill.yaml", "path to the pipeline document")
	flags.BoolVar(&o.configTest, "configtest", false, "validate the pipeline and exit")
	flags.BoolVarP(&o.showInfo, "version", "v", false, "show build information")
}

func loadDocument(path string) (*config.Document, error) {
	doc, err := config.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(config.EnvPrefix, &doc.Global); err != nil {
		return nil, err
	}
	if err := doc.Global.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func runPipeline(cmd *cobra.Command, opts options) error {
	doc, err := loadDocument(opts.configPath)
	if err != nil {
		return err
	}

	logger, closer, err := observability.NewLogger(observability.LogConfig{
		Level:    doc.Global.Logging.Level,
		Format:   doc.Global.Logging.Format,
		Filename: doc.Global.Logging.Filename,
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	p, err := logmill.Build(doc, modules.Builtin(), logmill.WithLogger(logger))
	if err != nil {
		return err
	}

	if opts.configTest {
		if err := p.Shutdown(context.Background()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: configuration ok (%d units)\n", opts.configPath, len(p.Units()))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		sig, ok := <-sigs
		if !ok {
			return
		}
		logger.Info("signal received, draining", slog.String("signal", sig.String()))
		cancel()
		if sig, ok = <-sigs; ok {
			logger.Warn("second signal received, exiting without drain", slog.String("signal", sig.String()))
			os.Exit(exitCodeForced)
		}
	}()

	if err := p.Run(ctx); err != nil {
		logger.Error("pipeline stopped with errors", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func main() {
	if err := newRootCmd(os.Args[1:]).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFailure)
	}
}
