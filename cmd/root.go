package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "pulsar [SINCE_REV]",
	Short: "Plan version bumps and changelogs for a Cargo workspace",
	Long: `Pulsar walks the commits since SINCE_REV (or the whole history with --root),
attributes them to the workspace packages they touch, asks a classifier how
each package should be bumped, and reconciles the verdicts across nested
packages and dependency edges.

By default it only prints the plan. With --execute it prepends changelog
entries and rewrites the version in each affected Cargo.toml.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPlan,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.New().Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .pulsar.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("work-dir", "", "directory containing the workspace Cargo.toml")
	rootCmd.PersistentFlags().String("classifier", "", "classifier script (.go) or executable")
	rootCmd.PersistentFlags().String("kind", "", "classifier kind: auto, script or exec")

	rootCmd.Flags().Bool("root", false, "consider the whole history instead of SINCE_REV..HEAD")
	rootCmd.Flags().Bool("execute", false, "write changelogs and manifests instead of only reporting")
	rootCmd.Flags().Bool("watch", false, "plan again whenever the classifier or .mailmap changes")
	rootCmd.Flags().StringP("output", "o", outputMarkdown, "report format: markdown or yaml")
	rootCmd.Flags().String("events", "", "append JSONL run events to this file")

	bindFlag("work_dir", rootCmd.PersistentFlags(), "work-dir")
	bindFlag("classifier.path", rootCmd.PersistentFlags(), "classifier")
	bindFlag("classifier.kind", rootCmd.PersistentFlags(), "kind")
	bindFlag("events_file", rootCmd.Flags(), "events")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".pulsar")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("PULSAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// loadConfig loads configuration after flags have been bound.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger. Verbose forces debug level.
func newLogger(c config.LogConfig, verbose bool) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return log, nil
}

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext(printer *ui.Printer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			printer.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
